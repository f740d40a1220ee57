package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/config"
	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
	"github.com/forgeml/botkb/internal/vectorstore"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ContextService assembles a bounded context string from the most relevant
// chunks of one chatbot's namespace.
type ContextService struct {
	embedder QueryEmbedder
	store    vectorstore.Store
	cfg      config.RetrievalConfig
	queryLRU *expirable.LRU[string, []float32]
}

func NewContextService(embedder QueryEmbedder, store vectorstore.Store, cfg config.RetrievalConfig) *ContextService {
	return &ContextService{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		queryLRU: expirable.NewLRU[string, []float32](1024, nil, 10*time.Minute),
	}
}

// BuildContext embeds the query, fetches topK matches and concatenates the
// passing chunk texts. Matches at or below the score threshold are dropped;
// the joined text is truncated to the character budget afterwards, so the
// last used chunk may arrive cut off.
func (s *ContextService) BuildContext(ctx context.Context, chatbotID, query string) (*model.ContextResult, error) {
	if chatbotID == "" {
		return nil, fmt.Errorf("%w: chatbot id is required", appErr.ErrInvalid)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}

	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	namespace := vectorstore.Namespace(chatbotID)
	matches, err := s.store.Query(ctx, namespace, vec, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(matches))
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		if float64(match.Score) <= s.cfg.ScoreThreshold {
			continue
		}
		text, ok := match.Metadata["text"].(string)
		if !ok || text == "" {
			logutil.GetLogger(ctx).Warn("match has no text metadata, skipping", zap.String("id", match.ID))
			continue
		}
		texts = append(texts, text)
		ids = append(ids, match.ID)
	}
	if len(texts) == 0 {
		return &model.ContextResult{Text: "", UsedChunkIDs: []string{}}, nil
	}

	joined := strings.Join(texts, "\n")
	text, used := truncateWithUsage(joined, texts, ids, s.cfg.MaxContextChars)
	return &model.ContextResult{Text: text, UsedChunkIDs: used}, nil
}

// truncateWithUsage cuts the joined text at the rune budget and reports which
// chunks still contribute at least one rune.
func truncateWithUsage(joined string, texts, ids []string, budget int) (string, []string) {
	runes := []rune(joined)
	if budget <= 0 || len(runes) <= budget {
		return joined, ids
	}
	runes = runes[:budget]

	used := make([]string, 0, len(ids))
	offset := 0
	for i, text := range texts {
		if offset >= budget {
			break
		}
		used = append(used, ids[i])
		offset += len([]rune(text)) + 1
	}
	return string(runes), used
}

func (s *ContextService) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := s.queryLRU.Get(query); ok {
		return vec, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.queryLRU.Add(query, vec)
	return vec, nil
}
