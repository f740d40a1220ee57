package normalize

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

// ArchiveReader reads back archived file payloads for file sources.
type ArchiveReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Fetcher retrieves the rendered HTML of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type Config struct {
	MaxInflight int
}

// Normalizer converts a source-specific payload into plain-text units.
type Normalizer struct {
	archive ArchiveReader
	fetcher Fetcher
	pool    *ants.Pool
}

func New(archive ArchiveReader, fetcher Fetcher, cfg Config) (*Normalizer, error) {
	inflight := cfg.MaxInflight
	if inflight < 1 {
		inflight = 4
	}
	pool, err := ants.NewPool(inflight)
	if err != nil {
		return nil, err
	}
	return &Normalizer{
		archive: archive,
		fetcher: fetcher,
		pool:    pool,
	}, nil
}

// Release frees the fetch worker pool.
func (n *Normalizer) Release() {
	n.pool.Release()
}

func (n *Normalizer) Normalize(ctx context.Context, src *model.Source) ([]model.NormalizedUnit, error) {
	switch src.Type {
	case model.SourceTypeText:
		return n.normalizeText(src)
	case model.SourceTypeQA:
		return n.normalizeQA(src)
	case model.SourceTypeFile:
		return n.normalizeFile(ctx, src)
	case model.SourceTypeWebsite:
		return n.normalizeWebsite(ctx, src)
	default:
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedSourceType, src.Type)
	}
}

func (n *Normalizer) normalizeText(src *model.Source) ([]model.NormalizedUnit, error) {
	if strings.TrimSpace(src.Text) == "" {
		return nil, fmt.Errorf("%w: text source has no content", appErr.ErrEmptySource)
	}
	return []model.NormalizedUnit{{
		Text:       src.Text,
		SourceType: model.SourceTypeText,
	}}, nil
}

func (n *Normalizer) normalizeQA(src *model.Source) ([]model.NormalizedUnit, error) {
	if len(src.Pairs) == 0 {
		return nil, fmt.Errorf("%w: qa source has no pairs", appErr.ErrEmptySource)
	}
	units := make([]model.NormalizedUnit, 0, len(src.Pairs))
	for _, pair := range src.Pairs {
		if strings.TrimSpace(pair.Question) == "" && strings.TrimSpace(pair.Answer) == "" {
			continue
		}
		units = append(units, model.NormalizedUnit{
			Text:       fmt.Sprintf("Q: %s\nA: %s", pair.Question, pair.Answer),
			SourceType: model.SourceTypeQA,
		})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: qa source has only empty pairs", appErr.ErrEmptySource)
	}
	return units, nil
}

func (n *Normalizer) normalizeWebsite(ctx context.Context, src *model.Source) ([]model.NormalizedUnit, error) {
	if len(src.URLs) == 0 {
		return nil, fmt.Errorf("%w: website source has no urls", appErr.ErrEmptySource)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("chatbot_id", src.ChatbotID))

	type fetchResult struct {
		text string
		err  error
	}
	results := make([]fetchResult, len(src.URLs))
	var wg sync.WaitGroup
	for i, pageURL := range src.URLs {
		i, pageURL := i, pageURL
		wg.Add(1)
		if err := n.pool.Submit(func() {
			defer wg.Done()
			start := time.Now()
			html, err := n.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				results[i] = fetchResult{err: err}
				return
			}
			results[i] = fetchResult{text: HTMLToText(html)}
			logger.Debug("page fetched", zap.String("url", pageURL), zap.Duration("elapsed", time.Since(start)))
		}); err != nil {
			wg.Done()
			results[i] = fetchResult{err: err}
		}
	}
	wg.Wait()

	// a single bad URL must not sink its siblings
	units := make([]model.NormalizedUnit, 0, len(src.URLs))
	failed := 0
	for i, res := range results {
		if res.err != nil {
			failed++
			logger.Warn("page fetch failed, skipping", zap.String("url", src.URLs[i]), zap.Error(res.err))
			continue
		}
		units = append(units, model.NormalizedUnit{
			Text:       res.text,
			SourceType: model.SourceTypeWebsite,
			OriginRef:  src.URLs[i],
		})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("all %d page fetches failed", failed)
	}
	return units, nil
}
