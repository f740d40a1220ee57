package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// CachePruner deletes persisted embedding cache rows older than the cutoff.
type CachePruner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type CachePruneJob struct {
	pruner CachePruner
	maxAge time.Duration
}

func NewCachePruneJob(pruner CachePruner, maxAgeDays int) *CachePruneJob {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &CachePruneJob{
		pruner: pruner,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

func (j *CachePruneJob) Name() string {
	return "embedding_cache_prune"
}

func (j *CachePruneJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.maxAge).Unix()
	removed, err := j.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache pruned", zap.Int64("removed", removed))
	return nil
}
