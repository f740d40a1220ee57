package repo

import (
	"context"
	"database/sql"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/forgeml/botkb/internal/model"
)

// EmbedCacheRepo persists computed embeddings so re-ingesting unchanged
// content never re-calls the provider.
type EmbedCacheRepo struct {
	db *sql.DB
}

func NewEmbedCacheRepo(db *sql.DB) *EmbedCacheRepo {
	return &EmbedCacheRepo{db: db}
}

func (r *EmbedCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	const query = `SELECT embedding FROM embedding_cache WHERE model_name = $1 AND task_type = $2 AND content_hash = $3`
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, modelName, taskType, contentHash).Scan(&vec)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query embedding cache: %w", err)
	}
	return vec.Slice(), true, nil
}

func (r *EmbedCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName, item.TaskType, item.ContentHash, pgvector.NewVector(item.Embedding), item.Ctime)
	if err != nil {
		return fmt.Errorf("save embedding cache: %w", err)
	}
	return nil
}

// DeleteBefore removes cache rows created before the cutoff (unix seconds)
// and returns the number removed.
func (r *EmbedCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune embedding cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
