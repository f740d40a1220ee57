package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgeml/botkb/internal/archive"
	"github.com/forgeml/botkb/internal/chunker"
	"github.com/forgeml/botkb/internal/config"
	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
	"github.com/forgeml/botkb/internal/normalize"
	"github.com/forgeml/botkb/internal/vectorstore"
)

// cannedEmbedder maps known texts onto fixed vectors so retrieval scores in
// the end-to-end tests are predictable.
type cannedEmbedder struct {
	docs    map[string][]float32
	queries map[string][]float32
}

func (c *cannedEmbedder) EmbedChunks(ctx context.Context, chunks []model.Chunk) ([]model.VectorRecord, error) {
	records := make([]model.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		vec, ok := c.docs[chunk.Text]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		records[i] = model.VectorRecord{
			ID:     chunk.ID,
			Values: vec,
			Metadata: map[string]interface{}{
				"text":        chunk.Text,
				"source_type": chunk.SourceType,
				"origin_ref":  chunk.OriginRef,
			},
		}
	}
	return records, nil
}

func (c *cannedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.queries[text]; ok {
		return vec, nil
	}
	return []float32{0, 1, 0}, nil
}

type memoryLedger struct {
	mu      sync.Mutex
	entries []*model.TrainingHistory
}

func (l *memoryLedger) Record(ctx context.Context, entry *model.TrainingHistory) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryLedger) ListByType(ctx context.Context, chatbotID, sourceType string, offset, limit int) ([]*model.TrainingHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.TrainingHistory
	for _, entry := range l.entries {
		if entry.ChatbotID != chatbotID {
			continue
		}
		if sourceType != "" && entry.SourceType != sourceType {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

type failingStore struct{}

func (failingStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	return fmt.Errorf("%w: connection refused", appErr.ErrVectorStore)
}

func (failingStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	return nil, fmt.Errorf("%w: connection refused", appErr.ErrVectorStore)
}

type recordCounter interface {
	Count(namespace string) int
}

func newTestPipeline(t *testing.T, store vectorstore.Store, ledger HistoryLedger) (*TrainService, archive.Store) {
	t.Helper()
	archiveStore := archive.NewLocal(t.TempDir())
	normalizer, err := normalize.New(archiveStore, nil, normalize.Config{MaxInflight: 2})
	require.NoError(t, err)
	t.Cleanup(normalizer.Release)

	embedder := &cannedEmbedder{
		docs: map[string][]float32{
			"Refunds are accepted within 30 days of purchase.": {1, 0, 0},
		},
		queries: map[string][]float32{
			"What is the refund window?": {0.95, 0.31, 0},
		},
	}
	svc := NewTrainService(TrainDeps{
		Normalizer: normalizer,
		Chunker:    chunker.New(chunker.Config{MaxChars: 2000}),
		Embedder:   embedder,
		Store:      store,
		Archive:    archiveStore,
		Ledger:     ledger,
	})
	return svc, archiveStore
}

func TestTrain_TextSourceEndToEnd(t *testing.T) {
	store := vectorstore.NewMemory()
	ledger := &memoryLedger{}
	svc, archiveStore := newTestPipeline(t, store, ledger)

	src := &model.Source{
		ChatbotID: "bot-1",
		UserID:    "u-1",
		Type:      model.SourceTypeText,
		Text:      "Refunds are accepted within 30 days of purchase.",
	}
	result, err := svc.Train(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, result.ChunkCount)
	require.NotEmpty(t, result.ArchiveKey)

	rc, err := archiveStore.Open(context.Background(), result.ArchiveKey)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	require.Contains(t, string(raw), "30 days")
	require.Contains(t, string(raw), `"chatbot_id":"bot-1"`)

	require.Len(t, ledger.entries, 1)
	require.Equal(t, "bot-1", ledger.entries[0].ChatbotID)
	require.Equal(t, model.SourceTypeText, ledger.entries[0].SourceType)
	require.Equal(t, result.ArchiveKey, ledger.entries[0].ArchiveKey)
	require.NotZero(t, ledger.entries[0].Ctime)

	require.Equal(t, 1, store.(recordCounter).Count("bot-1"))
}

func TestTrain_ReingestingSameContentIsIdempotent(t *testing.T) {
	store := vectorstore.NewMemory()
	ledger := &memoryLedger{}
	svc, _ := newTestPipeline(t, store, ledger)

	src := &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeText,
		Text:      "Refunds are accepted within 30 days of purchase.",
	}
	_, err := svc.Train(context.Background(), src)
	require.NoError(t, err)
	_, err = svc.Train(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, 1, store.(recordCounter).Count("bot-1"))
	require.Len(t, ledger.entries, 2)
}

func TestTrain_VectorStoreFailureLeavesNoLedgerEntry(t *testing.T) {
	ledger := &memoryLedger{}
	svc, _ := newTestPipeline(t, failingStore{}, ledger)

	_, err := svc.Train(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeText,
		Text:      "Refunds are accepted within 30 days of purchase.",
	})
	require.ErrorIs(t, err, appErr.ErrVectorStore)
	require.Empty(t, ledger.entries)
}

func TestTrain_InvalidRequestsRejected(t *testing.T) {
	svc, _ := newTestPipeline(t, vectorstore.NewMemory(), &memoryLedger{})

	_, err := svc.Train(context.Background(), &model.Source{Type: model.SourceTypeText, Text: "x"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = svc.Train(context.Background(), &model.Source{ChatbotID: "bot-1"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = svc.Train(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestTrainThenBuildContext_RetrievesIngestedKnowledge(t *testing.T) {
	store := vectorstore.NewMemory()
	ledger := &memoryLedger{}
	svc, _ := newTestPipeline(t, store, ledger)

	_, err := svc.Train(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeText,
		Text:      "Refunds are accepted within 30 days of purchase.",
	})
	require.NoError(t, err)
	_, err = svc.Train(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeText,
		Text:      "Our office dog is named Biscuit.",
	})
	require.NoError(t, err)

	embedder := &cannedEmbedder{queries: map[string][]float32{
		"What is the refund window?": {0.95, 0.31, 0},
	}}
	contextSvc := NewContextService(embedder, store,
		config.RetrievalConfig{TopK: 5, ScoreThreshold: 0.7, MaxContextChars: 3000})

	result, err := contextSvc.BuildContext(context.Background(), "bot-1", "What is the refund window?")
	require.NoError(t, err)
	require.Contains(t, result.Text, "30 days")
	require.NotContains(t, result.Text, "Biscuit")
	require.Len(t, result.UsedChunkIDs, 1)

	other, err := contextSvc.BuildContext(context.Background(), "bot-2", "What is the refund window?")
	require.NoError(t, err)
	require.Empty(t, other.Text)
	require.Empty(t, other.UsedChunkIDs)
}

func TestHistory_FiltersBySourceType(t *testing.T) {
	ledger := &memoryLedger{}
	svc, _ := newTestPipeline(t, vectorstore.NewMemory(), ledger)

	_, err := svc.Train(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeText,
		Text:      "Refunds are accepted within 30 days of purchase.",
	})
	require.NoError(t, err)
	_, err = svc.Train(context.Background(), &model.Source{
		ChatbotID: "bot-1",
		Type:      model.SourceTypeQA,
		Pairs:     []model.QAPair{{Question: "Hours?", Answer: "9-5"}},
	})
	require.NoError(t, err)

	entries, err := svc.History(context.Background(), "bot-1", model.SourceTypeQA, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.SourceTypeQA, entries[0].SourceType)

	_, err = svc.History(context.Background(), "", "", 0, 10)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
