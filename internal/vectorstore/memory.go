package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/forgeml/botkb/internal/model"
)

// memoryStore keeps vectors per namespace in process memory. It backs
// tests and single-node deployments without an external store.
type memoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]model.VectorRecord
}

func init() {
	Register("memory", func(args interface{}, deps Deps) (Store, error) {
		return NewMemory(), nil
	})
}

func NewMemory() Store {
	return &memoryStore{
		namespaces: make(map[string]map[string]model.VectorRecord),
	}
}

func (s *memoryStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaces[namespace]
	if ns == nil {
		ns = make(map[string]model.VectorRecord, len(records))
		s.namespaces[namespace] = ns
	}
	for _, rec := range records {
		ns[rec.ID] = rec
	}
	return nil
}

func (s *memoryStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.namespaces[namespace]
	matches := make([]model.ScoredMatch, 0, len(ns))
	for id, rec := range ns {
		matches = append(matches, model.ScoredMatch{
			ID:       id,
			Score:    cosineSimilarity(vector, rec.Values),
			Metadata: rec.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Count reports stored records in a namespace; used by tests to check
// idempotent re-ingestion.
func (s *memoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
