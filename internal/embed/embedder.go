package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/embedcache"
	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

// Provider is the single-text embedding call the fan-out is built on.
type Provider interface {
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type Config struct {
	Model         string
	Dimension     int
	DocTaskType   string
	QueryTaskType string
	Timeout       time.Duration
	MaxInflight   int
	MaxRetries    int
}

// Embedder turns chunks into vector records with a bounded concurrent
// fan-out over the provider, joining all calls before returning.
type Embedder struct {
	provider Provider
	cache    *embedcache.Cache
	pool     *ants.Pool
	cfg      Config
}

func New(provider Provider, cache *embedcache.Cache, cfg Config) (*Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embed provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	inflight := cfg.MaxInflight
	if inflight < 1 {
		inflight = 4
	}
	pool, err := ants.NewPool(inflight)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		provider: provider,
		cache:    cache,
		pool:     pool,
		cfg:      cfg,
	}, nil
}

// Release frees the worker pool. The embedder must not be used afterwards.
func (e *Embedder) Release() {
	e.pool.Release()
}

// EmbedChunks embeds every chunk and returns one record per chunk in input
// order. Any failed call fails the whole invocation; retries on transient
// provider errors happen per chunk before that.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []model.Chunk) ([]model.VectorRecord, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make([]model.VectorRecord, len(chunks))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := range chunks {
		i := i
		chunk := chunks[i]
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, err := e.embedText(ctx, chunk.Text, e.cfg.DocTaskType)
			if err != nil {
				fail(fmt.Errorf("chunk %s: %w", chunk.ID, err))
				return
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
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// EmbedQuery embeds read-path query text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedText(ctx, text, e.cfg.QueryTaskType)
}

func (e *Embedder) embedText(ctx context.Context, text string, taskType string) ([]float32, error) {
	clean := collapseWhitespace(text)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty text", appErr.ErrInvalid)
	}
	hash := contentHash(clean)
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, e.cfg.Model, taskType, hash); ok {
			return vec, nil
		}
	}

	vec, err := e.callProvider(ctx, clean, taskType)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(ctx, e.cfg.Model, taskType, hash, vec)
	}
	return vec, nil
}

func (e *Embedder) callProvider(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			logger.Info("retrying embedding call", zap.Int("attempt", attempt), zap.Error(lastErr))
		}
		vec, err := e.embedOnce(ctx, text, taskType)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingService, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	vec, err := e.provider.Embed(ctx, e.cfg.Model, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("provider returned empty vector")
	}
	if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
		return nil, fmt.Errorf("provider returned %d-dim vector, want %d", len(vec), e.cfg.Dimension)
	}
	return vec, nil
}

func retryable(err error) bool {
	return appErr.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func collapseWhitespace(text string) string {
	replaced := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(text)
	return strings.TrimSpace(strings.Join(strings.Fields(replaced), " "))
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
