package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/forgeml/botkb/internal/model"
	"github.com/forgeml/botkb/internal/pkg/dbutil"
)

const trainingHistoryTable = "training_history"

// TrainingHistoryRepo is the append-only ingestion ledger. Entries are never
// updated or deleted.
type TrainingHistoryRepo struct {
	db *sqlx.DB
}

func NewTrainingHistoryRepo(db *sql.DB) *TrainingHistoryRepo {
	return &TrainingHistoryRepo{db: sqlx.NewDb(db, "postgres")}
}

func (r *TrainingHistoryRepo) Record(ctx context.Context, entry *model.TrainingHistory) error {
	data := []map[string]interface{}{
		{
			"chatbot_id":  entry.ChatbotID,
			"source_type": entry.SourceType,
			"archive_key": entry.ArchiveKey,
			"user_id":     entry.UserID,
			"ctime":       entry.Ctime,
		},
	}
	query, args, err := builder.BuildInsert(trainingHistoryTable, data)
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}
	query, args = dbutil.Finalize(query, args)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record training history: %w", err)
	}
	return nil
}

// ListByType returns ledger entries for one chatbot and source type, newest
// first.
func (r *TrainingHistoryRepo) ListByType(ctx context.Context, chatbotID, sourceType string, offset, limit int) ([]*model.TrainingHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	where := map[string]interface{}{
		"chatbot_id": chatbotID,
		"_orderby":   "ctime desc",
		"_limit":     []uint{uint(offset), uint(limit)},
	}
	if sourceType != "" {
		where["source_type"] = sourceType
	}
	query, args, err := builder.BuildSelect(trainingHistoryTable,
		where, []string{"id", "chatbot_id", "source_type", "archive_key", "user_id", "ctime"})
	if err != nil {
		return nil, fmt.Errorf("build history select: %w", err)
	}
	query, args = dbutil.Finalize(query, args)
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query training history: %w", err)
	}
	defer rows.Close()
	var entries []*model.TrainingHistory
	for rows.Next() {
		entry := &model.TrainingHistory{}
		if err := rows.StructScan(entry); err != nil {
			return nil, fmt.Errorf("scan training history: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
