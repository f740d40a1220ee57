package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

// pgvectorStore keeps vectors in the service's own Postgres with the
// pgvector extension, one row per (namespace, chunk id).
type pgvectorStore struct {
	db *sql.DB
}

func init() {
	Register("pgvector", func(args interface{}, deps Deps) (Store, error) {
		if deps.DB == nil {
			return nil, fmt.Errorf("pgvector store requires a database handle")
		}
		return &pgvectorStore{db: deps.DB}, nil
	})
}

func (s *pgvectorStore) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	const query = `
		INSERT INTO chunk_embeddings (namespace, chunk_id, embedding, metadata, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, chunk_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime
	`
	now := time.Now().UnixMilli()
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("%w: encode metadata for %s: %v", appErr.ErrVectorStore, rec.ID, err)
		}
		if _, err := s.db.ExecContext(ctx, query,
			namespace,
			rec.ID,
			pgvector.NewVector(rec.Values),
			meta,
			now,
		); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", appErr.ErrVectorStore, rec.ID, err)
		}
	}
	return nil
}

func (s *pgvectorStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.ScoredMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	// cosine distance; similarity = 1 - distance
	const query = `
		SELECT chunk_id, 1 - (embedding <=> $2) AS score, metadata
		FROM chunk_embeddings
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, namespace, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", appErr.ErrVectorStore, err)
	}
	defer rows.Close()
	var matches []model.ScoredMatch
	for rows.Next() {
		var item model.ScoredMatch
		var score float64
		var meta []byte
		if err := rows.Scan(&item.ID, &score, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", appErr.ErrVectorStore, err)
		}
		item.Score = float32(score)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("%w: decode metadata for %s: %v", appErr.ErrVectorStore, item.ID, err)
			}
		}
		matches = append(matches, item)
	}
	return matches, rows.Err()
}
