package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgeml/botkb/internal/config"
	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

type fakeQueryEmbedder struct {
	vec   []float32
	calls int
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, nil
}

type fixedMatchStore struct {
	matches      []model.ScoredMatch
	gotNamespace string
	gotTopK      int
}

func (f *fixedMatchStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	return nil
}

func (f *fixedMatchStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	f.gotNamespace = namespace
	f.gotTopK = topK
	return f.matches, nil
}

func match(id string, score float32, text string) model.ScoredMatch {
	return model.ScoredMatch{
		ID:       id,
		Score:    score,
		Metadata: map[string]interface{}{"text": text},
	}
}

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 5, ScoreThreshold: 0.7, MaxContextChars: 3000}
}

func TestBuildContext_ThresholdIsStrict(t *testing.T) {
	store := &fixedMatchStore{matches: []model.ScoredMatch{
		match("high", 0.9, "high match"),
		match("barely", 0.70001, "barely above"),
		match("boundary", 0.7, "exactly at threshold"),
		match("low", 0.3, "low match"),
	}}
	svc := NewContextService(&fakeQueryEmbedder{vec: []float32{1, 0, 0}}, store, retrievalConfig())

	result, err := svc.BuildContext(context.Background(), "bot-1", "any question")
	require.NoError(t, err)
	require.Equal(t, []string{"high", "barely"}, result.UsedChunkIDs)
	require.Equal(t, "high match\nbarely above", result.Text)
	require.Equal(t, "bot-1", store.gotNamespace)
	require.Equal(t, 5, store.gotTopK)
}

func TestBuildContext_NoPassingMatchesYieldsEmptyResult(t *testing.T) {
	store := &fixedMatchStore{matches: []model.ScoredMatch{
		match("low", 0.2, "irrelevant"),
	}}
	svc := NewContextService(&fakeQueryEmbedder{vec: []float32{1, 0, 0}}, store, retrievalConfig())

	result, err := svc.BuildContext(context.Background(), "bot-1", "any question")
	require.NoError(t, err)
	require.Empty(t, result.Text)
	require.Empty(t, result.UsedChunkIDs)
}

func TestBuildContext_TruncatesAfterConcatenation(t *testing.T) {
	store := &fixedMatchStore{matches: []model.ScoredMatch{
		match("c1", 0.95, strings.Repeat("a", 10)),
		match("c2", 0.9, strings.Repeat("b", 10)),
		match("c3", 0.85, strings.Repeat("c", 10)),
	}}
	cfg := retrievalConfig()
	cfg.MaxContextChars = 15
	svc := NewContextService(&fakeQueryEmbedder{vec: []float32{1, 0, 0}}, store, cfg)

	result, err := svc.BuildContext(context.Background(), "bot-1", "any question")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 10)+"\n"+strings.Repeat("b", 4), result.Text)
	require.Equal(t, 15, len([]rune(result.Text)))
	require.Equal(t, []string{"c1", "c2"}, result.UsedChunkIDs)
}

func TestBuildContext_MatchWithoutTextIsSkipped(t *testing.T) {
	store := &fixedMatchStore{matches: []model.ScoredMatch{
		{ID: "broken", Score: 0.95, Metadata: map[string]interface{}{}},
		match("ok", 0.9, "usable text"),
	}}
	svc := NewContextService(&fakeQueryEmbedder{vec: []float32{1, 0, 0}}, store, retrievalConfig())

	result, err := svc.BuildContext(context.Background(), "bot-1", "any question")
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, result.UsedChunkIDs)
	require.Equal(t, "usable text", result.Text)
}

func TestBuildContext_QueryEmbeddingIsCached(t *testing.T) {
	embedder := &fakeQueryEmbedder{vec: []float32{1, 0, 0}}
	svc := NewContextService(embedder, &fixedMatchStore{}, retrievalConfig())

	_, err := svc.BuildContext(context.Background(), "bot-1", "same question")
	require.NoError(t, err)
	_, err = svc.BuildContext(context.Background(), "bot-1", "same question")
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)
}

func TestBuildContext_MissingInputsRejected(t *testing.T) {
	svc := NewContextService(&fakeQueryEmbedder{vec: []float32{1, 0, 0}}, &fixedMatchStore{}, retrievalConfig())

	_, err := svc.BuildContext(context.Background(), "", "question")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = svc.BuildContext(context.Background(), "bot-1", "  ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
