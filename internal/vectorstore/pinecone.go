package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

type pineconeConfig struct {
	Host        string `json:"host"`
	APIKey      string `json:"api_key"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// pineconeStore is a minimal REST client against a pinecone index host.
type pineconeStore struct {
	host   string
	apiKey string
	client *http.Client
}

func init() {
	Register("pinecone", createPineconeStore)
}

func createPineconeStore(args interface{}, deps Deps) (Store, error) {
	cfg := &pineconeConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Host == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone host/api_key are required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &pineconeStore{
		host:   strings.TrimRight(cfg.Host, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type pineconeUpsertRequest struct {
	Vectors   []model.VectorRecord `json:"vectors"`
	Namespace string               `json:"namespace"`
}

type pineconeQueryRequest struct {
	Namespace       string    `json:"namespace"`
	TopK            int       `json:"topK"`
	Vector          []float32 `json:"vector"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []model.ScoredMatch `json:"matches"`
}

func (s *pineconeStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	body := pineconeUpsertRequest{
		Vectors:   records,
		Namespace: namespace,
	}
	if err := s.postJSON(ctx, s.host+"/vectors/upsert", body, nil); err != nil {
		return fmt.Errorf("%w: upsert: %v", appErr.ErrVectorStore, err)
	}
	return nil
}

func (s *pineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	body := pineconeQueryRequest{
		Namespace:       namespace,
		TopK:            topK,
		Vector:          vector,
		IncludeMetadata: true,
	}
	var resp pineconeQueryResponse
	if err := s.postJSON(ctx, s.host+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: query: %v", appErr.ErrVectorStore, err)
	}
	return resp.Matches, nil
}

func (s *pineconeStore) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s failed: %s: %s", url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
