package model

// TrainingHistory is one append-only ledger entry, written after an
// ingestion run fully succeeds.
type TrainingHistory struct {
	ID         int64  `json:"id" db:"id"`
	ChatbotID  string `json:"chatbot_id" db:"chatbot_id"`
	SourceType string `json:"source_type" db:"source_type"`
	ArchiveKey string `json:"archive_key" db:"archive_key"`
	UserID     string `json:"user_id" db:"user_id"`
	Ctime      int64  `json:"ctime" db:"ctime"`
}
