package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

func newOpenAIProvider(t *testing.T, baseURL string) IEmbedProvider {
	t.Helper()
	provider, err := NewProvider("openai", map[string]interface{}{
		"api_key":  "test-key",
		"base_url": baseURL,
	})
	require.NoError(t, err)
	return provider
}

func TestOpenAIEmbed_SendsModelAndInput(t *testing.T) {
	var gotAuth string
	var gotBody openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer srv.Close()

	provider := newOpenAIProvider(t, srv.URL)
	vec, err := provider.Embed(context.Background(), "text-embedding-3-small", "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, "Bearer test-key", gotAuth)
	require.Equal(t, "text-embedding-3-small", gotBody.Model)
	require.Equal(t, "hello", gotBody.Input)
}

func TestOpenAIEmbed_EmptyDataIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer srv.Close()

	provider := newOpenAIProvider(t, srv.URL)
	_, err := provider.Embed(context.Background(), "m", "hello", "")
	require.Error(t, err)
	require.False(t, appErr.IsTransient(err))
}

func TestOpenAIEmbed_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	provider := newOpenAIProvider(t, srv.URL)
	_, err := provider.Embed(context.Background(), "m", "hello", "")
	require.Error(t, err)
	require.True(t, appErr.IsTransient(err))
}

func TestOpenAIEmbed_ClientFaultIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	provider := newOpenAIProvider(t, srv.URL)
	_, err := provider.Embed(context.Background(), "m", "hello", "")
	require.Error(t, err)
	require.False(t, appErr.IsTransient(err))
}

func TestOpenAIEmbed_MissingAPIKeyIsUnavailable(t *testing.T) {
	provider, err := NewProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = provider.Embed(context.Background(), "m", "hello", "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewProvider_UnknownNameRejected(t *testing.T) {
	_, err := NewProvider("abacus", nil)
	require.Error(t, err)
}
