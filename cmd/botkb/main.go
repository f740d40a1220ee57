package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/ai"
	"github.com/forgeml/botkb/internal/archive"
	"github.com/forgeml/botkb/internal/chunker"
	"github.com/forgeml/botkb/internal/config"
	"github.com/forgeml/botkb/internal/embed"
	"github.com/forgeml/botkb/internal/embedcache"
	"github.com/forgeml/botkb/internal/handler"
	"github.com/forgeml/botkb/internal/job"
	"github.com/forgeml/botkb/internal/middleware"
	"github.com/forgeml/botkb/internal/normalize"
	"github.com/forgeml/botkb/internal/repo"
	"github.com/forgeml/botkb/internal/schedule"
	"github.com/forgeml/botkb/internal/service"
	"github.com/forgeml/botkb/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "botkb",
		Short: "chatbot knowledge base server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run botkb server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			ctx := context.Background()
			db, err := repo.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(ctx, db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("archive", cfg.Archive.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	archiveStore, err := archive.New(cfg.Archive)
	if err != nil {
		return fmt.Errorf("init archive store: %w", err)
	}
	vecStore, err := vectorstore.New(cfg.VectorStore, vectorstore.Deps{DB: db})
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}

	provider, err := ai.NewProvider(cfg.Embedding.Provider, cfg.Embedding.Data)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	var cacheRepo *repo.EmbedCacheRepo
	var cache *embedcache.Cache
	if cfg.Embedding.Cache.Enable {
		cacheRepo = repo.NewEmbedCacheRepo(db)
		cache = embedcache.New(cacheRepo)
	} else {
		cache = embedcache.New(nil)
	}
	embedder, err := embed.New(provider, cache, embed.Config{
		Model:         cfg.Embedding.Model,
		Dimension:     cfg.Embedding.Dimension,
		DocTaskType:   cfg.Embedding.DocTaskType,
		QueryTaskType: cfg.Embedding.QueryTaskType,
		Timeout:       time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		MaxInflight:   cfg.Embedding.MaxInflight,
		MaxRetries:    cfg.Embedding.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	defer embedder.Release()

	fetcher := normalize.NewHTTPFetcher(cfg.Normalize.RenderEndpoint,
		time.Duration(cfg.Normalize.FetchTimeoutSecs)*time.Second)
	normalizer, err := normalize.New(archiveStore, fetcher, normalize.Config{
		MaxInflight: cfg.Normalize.MaxInflight,
	})
	if err != nil {
		return fmt.Errorf("init normalizer: %w", err)
	}
	defer normalizer.Release()

	ledger := repo.NewTrainingHistoryRepo(db)
	trainService := service.NewTrainService(service.TrainDeps{
		Normalizer: normalizer,
		Chunker: chunker.New(chunker.Config{
			MaxChars:     cfg.Chunk.MaxChars,
			OverlapChars: cfg.Chunk.OverlapChars,
		}),
		Embedder: embedder,
		Store:    vecStore,
		Archive:  archiveStore,
		Ledger:   ledger,
	})
	contextService := service.NewContextService(embedder, vecStore, cfg.Retrieval)

	deps := handler.RouterDeps{
		Train:   handler.NewTrainHandler(trainService),
		Context: handler.NewContextHandler(contextService),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Embedding.Cache.Enable {
		pruneJob := job.NewCachePruneJob(cacheRepo, cfg.Embedding.Cache.MaxAgeDays)
		if err := scheduler.AddJob(pruneJob, cfg.Embedding.Cache.CleanupCron); err != nil {
			return fmt.Errorf("schedule cache prune: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
