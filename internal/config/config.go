package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	CORSOrigins []string          `json:"cors_origins"`
	Database    DatabaseConfig    `json:"database"`
	Archive     BackendConfig     `json:"archive"`
	VectorStore BackendConfig     `json:"vector_store"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	Chunk       ChunkConfig       `json:"chunk"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Normalize   NormalizeConfig   `json:"normalize"`
}

// BackendConfig selects a pluggable backend by type; Data carries the
// backend-specific options and is decoded by the backend factory.
type BackendConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type EmbeddingConfig struct {
	Provider      string                 `json:"provider"`
	Data          map[string]interface{} `json:"data"`
	Model         string                 `json:"model"`
	Dimension     int                    `json:"dimension"`
	TimeoutSecs   int                    `json:"timeout_secs"`
	MaxInflight   int                    `json:"max_inflight"`
	MaxRetries    int                    `json:"max_retries"`
	DocTaskType   string                 `json:"doc_task_type"`
	QueryTaskType string                 `json:"query_task_type"`
	Cache         EmbedCacheConfig       `json:"cache"`
}

type EmbedCacheConfig struct {
	Enable      bool   `json:"enable"`
	MaxAgeDays  int    `json:"max_age_days"`
	CleanupCron string `json:"cleanup_cron"`
}

type ChunkConfig struct {
	MaxChars     int `json:"max_chars"`
	OverlapChars int `json:"overlap_chars"`
}

type RetrievalConfig struct {
	TopK            int     `json:"top_k"`
	ScoreThreshold  float64 `json:"score_threshold"`
	MaxContextChars int     `json:"max_context_chars"`
}

type NormalizeConfig struct {
	RenderEndpoint   string `json:"render_endpoint"`
	FetchTimeoutSecs int    `json:"fetch_timeout_secs"`
	MaxInflight      int    `json:"max_inflight"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Archive.Type == "" {
		return nil, fmt.Errorf("archive.type is required")
	}
	if cfg.VectorStore.Type == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	if cfg.Embedding.Provider == "" {
		return nil, fmt.Errorf("embedding.provider is required")
	}
	if cfg.Embedding.Model == "" {
		return nil, fmt.Errorf("embedding.model is required")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.MaxInflight == 0 {
		cfg.Embedding.MaxInflight = 4
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 2
	}
	if cfg.Embedding.DocTaskType == "" {
		cfg.Embedding.DocTaskType = "RETRIEVAL_DOCUMENT"
	}
	if cfg.Embedding.QueryTaskType == "" {
		cfg.Embedding.QueryTaskType = "RETRIEVAL_QUERY"
	}
	if cfg.Embedding.Cache.MaxAgeDays == 0 {
		cfg.Embedding.Cache.MaxAgeDays = 30
	}
	if cfg.Embedding.Cache.CleanupCron == "" {
		cfg.Embedding.Cache.CleanupCron = "30 3 * * *"
	}
	if cfg.Chunk.MaxChars == 0 {
		cfg.Chunk.MaxChars = 2000
	}
	if cfg.Chunk.OverlapChars < 0 {
		cfg.Chunk.OverlapChars = 0
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.7
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 3000
	}
	if cfg.Normalize.FetchTimeoutSecs == 0 {
		cfg.Normalize.FetchTimeoutSecs = 20
	}
	if cfg.Normalize.MaxInflight == 0 {
		cfg.Normalize.MaxInflight = 4
	}
}
