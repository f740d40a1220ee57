package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/forgeml/botkb/internal/config"
	"github.com/forgeml/botkb/internal/model"
)

// Store writes and queries vectors inside a single namespace per call.
// There is deliberately no operation spanning namespaces: the namespace is
// the tenant-isolation boundary.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error)
}

// Deps carries shared handles a backend may need beyond its JSON config.
type Deps struct {
	DB *sql.DB
}

type Factory func(args interface{}, deps Deps) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.BackendConfig, deps Deps) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
	store, err := factory(cfg.Data, deps)
	if err != nil {
		return nil, err
	}
	// every backend gets the same metadata coercion in front of it
	return &sanitizingStore{inner: store}, nil
}

// Namespace maps a chatbot id onto an ASCII-safe vector store partition.
func Namespace(chatbotID string) string {
	var b strings.Builder
	for _, r := range chatbotID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("vector store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}

type sanitizingStore struct {
	inner Store
}

func (s *sanitizingStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	cleaned := make([]model.VectorRecord, 0, len(records))
	for _, rec := range records {
		rec.Metadata = SanitizeMetadata(ctx, rec.Metadata)
		cleaned = append(cleaned, rec)
	}
	return s.inner.Upsert(ctx, namespace, cleaned)
}

func (s *sanitizingStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	return s.inner.Query(ctx, namespace, vector, topK)
}
