package normalize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

func TestHTMLToText_StripsMarkupAndInvisibleContent(t *testing.T) {
	page := `<html><head><title>ignored</title></head><body>
<script>var x = 1;</script>
<style>.a { color: red; }</style>
<!-- a comment -->
<h1>Returns</h1>
<p>Items can be returned within <b>30 days</b>.</p>
<p>Contact support &amp; include your order id.</p>
</body></html>`
	text := HTMLToText(page)
	require.Contains(t, text, "Returns")
	require.Contains(t, text, "Items can be returned within 30 days")
	require.Contains(t, text, "Contact support & include your order id.")
	require.NotContains(t, text, "var x")
	require.NotContains(t, text, "color: red")
	require.NotContains(t, text, "a comment")
	require.NotContains(t, text, "<")
}

func TestHTMLToText_BlockBoundariesBecomeNewlines(t *testing.T) {
	text := HTMLToText("<p>first</p><p>second</p>line<br>break")
	require.Contains(t, text, "first\nsecond")
	require.Contains(t, text, "line\nbreak")
}

func TestHTTPFetcher_FetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>hello</p>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("", 5*time.Second)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<p>hello</p>", body)
}

func TestHTTPFetcher_UsesRenderEndpointWhenSet(t *testing.T) {
	var gotTarget string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		w.Write([]byte("rendered"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/render", 5*time.Second)
	body, err := f.Fetch(context.Background(), "https://example.com/docs?a=1")
	require.NoError(t, err)
	require.Equal(t, "rendered", body)
	require.Equal(t, "https://example.com/docs?a=1", gotTarget)
}

func TestHTTPFetcher_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher("", 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestNormalize_WebsiteSkipsFailedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok1":
			w.Write([]byte("<p>first page</p>"))
		case "/ok2":
			w.Write([]byte("<p>second page</p>"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	n, err := New(&fakeArchive{}, NewHTTPFetcher("", 5*time.Second), Config{MaxInflight: 2})
	require.NoError(t, err)
	defer n.Release()

	urls := []string{srv.URL + "/ok1", srv.URL + "/broken", srv.URL + "/ok2"}
	units, err := n.Normalize(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeWebsite,
		URLs:      urls,
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, "first page", units[0].Text)
	require.Equal(t, urls[0], units[0].OriginRef)
	require.Equal(t, "second page", units[1].Text)
	require.Equal(t, urls[2], units[1].OriginRef)
}

func TestNormalize_WebsiteAllPagesFailedRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n, err := New(&fakeArchive{}, NewHTTPFetcher("", 5*time.Second), Config{MaxInflight: 2})
	require.NoError(t, err)
	defer n.Release()

	_, err = n.Normalize(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeWebsite,
		URLs:      []string{srv.URL + "/a", srv.URL + "/b"},
	})
	require.Error(t, err)
}

func TestNormalize_WebsiteNoURLsRejected(t *testing.T) {
	n := newTestNormalizer(t, nil)
	_, err := n.Normalize(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeWebsite,
	})
	require.ErrorIs(t, err, appErr.ErrEmptySource)
}
