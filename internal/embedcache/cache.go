package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/model"
)

// Store is the persistent layer behind the in-process LRU, keyed by
// (model, task type, content hash).
type Store interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// Cache layers an expirable LRU in front of an optional persistent store.
// Store errors are logged and treated as cache misses; the cache never
// fails an embedding call.
type Cache struct {
	lru   *expirable.LRU[string, []float32]
	store Store
}

func New(store Store) *Cache {
	return &Cache{
		lru:   expirable.NewLRU[string, []float32](8192, nil, 2*time.Hour),
		store: store,
	}
}

func (c *Cache) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool) {
	key := cacheKey(modelName, taskType, contentHash)
	if vec, ok := c.lru.Get(key); ok {
		return vec, true
	}
	if c.store == nil {
		return nil, false
	}
	vec, ok, err := c.store.Get(ctx, modelName, taskType, contentHash)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.lru.Add(key, vec)
	return vec, true
}

func (c *Cache) Put(ctx context.Context, modelName, taskType, contentHash string, embedding []float32) {
	c.lru.Add(cacheKey(modelName, taskType, contentHash), embedding)
	if c.store == nil {
		return
	}
	item := &model.EmbeddingCache{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   embedding,
		Ctime:       time.Now().Unix(),
	}
	if err := c.store.Save(ctx, item); err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache save failed", zap.Error(err))
	}
}

func cacheKey(modelName, taskType, contentHash string) string {
	return modelName + ":" + taskType + ":" + contentHash
}
