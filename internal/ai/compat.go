package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// compat talks to local OpenAI-compatible embedding services (ollama,
// llama.cpp server, vllm) through langchaingo.

type compatConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type compatEmbedProvider struct {
	baseURL string
	apiKey  string
}

func (p *compatEmbedProvider) Name() string {
	return "compat"
}

func (p *compatEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = taskType
	token := p.apiKey
	if token == "" {
		// many local services accept any token
		token = "none"
	}
	client, err := lcopenai.New(
		lcopenai.WithBaseURL(p.baseURL),
		lcopenai.WithToken(token),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("compat provider returned no embedding")
	}
	return vectors[0], nil
}

func createCompatEmbedProvider(args interface{}) (IEmbedProvider, error) {
	cfg := &compatConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("compat provider base_url is required")
	}
	return &compatEmbedProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
	}, nil
}

func init() {
	Register("compat", createCompatEmbedProvider)
}
