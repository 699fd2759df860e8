package app

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/config"
	"github.com/docsmith-ai/docsmith/internal/core/chunker"
	db "github.com/docsmith-ai/docsmith/internal/core/database"
	"github.com/docsmith-ai/docsmith/internal/core/embed"
	"github.com/docsmith-ai/docsmith/internal/core/extract"
	"github.com/docsmith-ai/docsmith/internal/core/objectstore"
	"github.com/docsmith-ai/docsmith/internal/core/pipeline"
	"github.com/docsmith-ai/docsmith/internal/metrics"
)

type App struct {
	DBClient    *db.DatabaseClient
	Embedder    *embed.GeminiEmbedder
	Pool        *ants.Pool
	Coordinator *pipeline.Coordinator
	Server      *Server
	Log         *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized")

	objClient, err := objectstore.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	dispatcher := extract.NewDefaultDispatcher(cfg.OCRLanguages, log)
	batcher := embed.NewBatcher(embedder, dbClient, cfg.EmbedBatchSize, cfg.EmbedBatchDelay, cfg.CallTimeout, log)

	processor := pipeline.NewProcessor(dbClient, objClient, dispatcher, batcher, pipeline.Config{
		ChunkSize:   firstPositive(cfg.ChunkSize, chunker.DefaultChunkSize),
		Overlap:     cfg.ChunkOverlap,
		CallTimeout: cfg.CallTimeout,
	}, log)

	issuer := pipeline.NewTokenIssuer(cfg.JwtSecret, pipeline.DefaultTokenTTL)

	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("init worker pool: %w", err)
	}

	var remote pipeline.RemoteIngestor
	if cfg.ServerIngestURL != "" {
		remote = pipeline.NewHTTPServerProcessor(cfg.ServerIngestURL, issuer, cfg.CallTimeout)
	}

	coordinator := pipeline.NewCoordinator(log,
		pipeline.NewServerStrategy(remote),
		pipeline.NewWorkerStrategy(processor, issuer, pool, 10*time.Second, log),
		pipeline.NewSyncStrategy(processor),
	)

	server := NewServer(cfg, log, dbClient, objClient, processor, issuer, coordinator, registry)

	return &App{
		DBClient:    dbClient,
		Embedder:    embedder,
		Pool:        pool,
		Coordinator: coordinator,
		Server:      server,
		Log:         log,
	}, nil
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Release()
	}
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func firstPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
