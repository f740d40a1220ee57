package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/archive"
	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
	"github.com/forgeml/botkb/internal/vectorstore"
)

type Normalizer interface {
	Normalize(ctx context.Context, src *model.Source) ([]model.NormalizedUnit, error)
}

type Chunker interface {
	Split(units []model.NormalizedUnit) ([]model.Chunk, error)
}

type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []model.Chunk) ([]model.VectorRecord, error)
}

// HistoryLedger records completed ingestion runs. Append-only.
type HistoryLedger interface {
	Record(ctx context.Context, entry *model.TrainingHistory) error
	ListByType(ctx context.Context, chatbotID, sourceType string, offset, limit int) ([]*model.TrainingHistory, error)
}

type TrainResult struct {
	ChunkCount int    `json:"chunk_count"`
	ArchiveKey string `json:"archive_key"`
}

// TrainService runs the ingestion pipeline: archive the raw payload, then
// normalize, chunk, embed and upsert. The ledger entry is written last, only
// once everything else succeeded.
type TrainService struct {
	normalizer Normalizer
	chunker    Chunker
	embedder   Embedder
	store      vectorstore.Store
	archive    archive.Store
	ledger     HistoryLedger
	now        func() time.Time
}

type TrainDeps struct {
	Normalizer Normalizer
	Chunker    Chunker
	Embedder   Embedder
	Store      vectorstore.Store
	Archive    archive.Store
	Ledger     HistoryLedger
}

func NewTrainService(deps TrainDeps) *TrainService {
	return &TrainService{
		normalizer: deps.Normalizer,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		store:      deps.Store,
		archive:    deps.Archive,
		ledger:     deps.Ledger,
		now:        time.Now,
	}
}

func (s *TrainService) Train(ctx context.Context, src *model.Source) (*TrainResult, error) {
	if src == nil || src.ChatbotID == "" {
		return nil, fmt.Errorf("%w: chatbot id is required", appErr.ErrInvalid)
	}
	if src.Type == "" {
		return nil, fmt.Errorf("%w: source type is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("chatbot_id", src.ChatbotID),
		zap.String("source_type", src.Type),
	)

	archiveKey, err := s.archiveSource(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("archive source: %w", err)
	}

	units, err := s.normalizer.Normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunker.Split(units)
	if err != nil {
		return nil, fmt.Errorf("split source: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: source produced no indexable content", appErr.ErrEmptySource)
	}

	records, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	namespace := vectorstore.Namespace(src.ChatbotID)
	if err := s.store.Upsert(ctx, namespace, records); err != nil {
		return nil, err
	}

	entry := &model.TrainingHistory{
		ChatbotID:  src.ChatbotID,
		SourceType: src.Type,
		ArchiveKey: archiveKey,
		UserID:     src.UserID,
		Ctime:      s.now().UnixMilli(),
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("record training history: %w", err)
	}
	logger.Info("ingestion complete",
		zap.Int("chunks", len(chunks)), zap.String("archive_key", archiveKey))
	return &TrainResult{ChunkCount: len(chunks), ArchiveKey: archiveKey}, nil
}

// History lists ledger entries for one chatbot, newest first.
func (s *TrainService) History(ctx context.Context, chatbotID, sourceType string, offset, limit int) ([]*model.TrainingHistory, error) {
	if chatbotID == "" {
		return nil, fmt.Errorf("%w: chatbot id is required", appErr.ErrInvalid)
	}
	return s.ledger.ListByType(ctx, chatbotID, sourceType, offset, limit)
}

func (s *TrainService) archiveSource(ctx context.Context, src *model.Source) (string, error) {
	payload, err := json.Marshal(src)
	if err != nil {
		return "", err
	}
	key := archive.Key(src.ChatbotID, src.Type, s.now())
	if err := s.archive.Save(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return "", err
	}
	return key, nil
}
