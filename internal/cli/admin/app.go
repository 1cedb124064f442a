package admin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/config"
	"github.com/cloo-solutions/reposcout/internal/database"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/cloo-solutions/reposcout/internal/github"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/cloo-solutions/reposcout/internal/repository"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/cloo-solutions/reposcout/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app is the wired dependency graph shared by serve and resume.
type app struct {
	cfg  *config.Config
	pool *pgxpool.Pool

	requests    *repository.SearchRequestRepository
	items       *repository.ReviewItemRepository
	results     *repository.AnalysisResultRepository
	configs     *repository.ConfigurationRepository
	enrichments *repository.EnrichmentRepository
	txRunner    *repository.TxRunner

	llm      *openai.Client
	registry *agent.Registry
	enricher *agent.Enricher
	archive  service.ReportArchive
	bus      events.Bus
	engine   *service.Engine

	closers []func()
}

func buildApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("REPOSCOUT_OPENAI_API_KEY is required: every phase after submission calls the model")
	}

	a := &app{
		cfg:         cfg,
		pool:        pool,
		requests:    repository.NewSearchRequestRepository(pool),
		items:       repository.NewReviewItemRepository(pool),
		results:     repository.NewAnalysisResultRepository(pool),
		configs:     repository.NewConfigurationRepository(pool),
		enrichments: repository.NewEnrichmentRepository(pool),
		txRunner:    repository.NewTxRunner(pool),
	}

	host, err := github.NewClient(ctx, github.Config{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}
	if cfg.GitHubToken == "" {
		log.Println("github: no token configured, using unauthenticated rate limits")
	}

	a.llm = openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ChatModel:   cfg.OpenAIModel,
		MaxAttempts: cfg.GenerationMaxAttempts,
	})

	a.registry = agent.NewRegistry(agent.Deps{
		Store:    a.results,
		Host:     host,
		Gen:      a.llm,
		Embedder: a.llm,
		NewID:    uuid.NewString,
		Timeout:  cfg.AnalystTimeout,
	})
	a.enricher = agent.NewEnricher(a.requests, a.results, host, a.llm)

	if cfg.HasS3() {
		bucket, err := storage.OpenBucket(ctx, storage.BucketConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Name:            cfg.S3Bucket,
			LinkTTL:         cfg.ReportURLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open report bucket: %w", err)
		}
		log.Printf("report bucket '%s' ready", bucket.Name())
		a.archive = storage.NewReportArchive(bucket)
	}

	if cfg.HasRedis() {
		bus, err := events.NewRedisBus(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.bus = bus
		a.closers = append(a.closers, func() {
			if err := bus.Close(); err != nil {
				log.Printf("redis: close failed: %v", err)
			}
		})
		log.Println("events: publishing phase changes through redis")
	} else {
		a.bus = events.NewMemoryBus()
	}

	a.engine = service.NewEngine(service.EngineDeps{
		Requests: a.requests,
		Items:    a.items,
		Results:  a.results,
		Configs:  a.configs,
		TxRunner: a.txRunner,
		Searcher: host,
		Gen:      a.llm,
		Registry: a.registry,
		Judge:    agent.NewJudge(a.llm),
		Archive:  a.archive,
		Bus:      a.bus,
	}, service.EngineConfig{
		PreviewSize:          cfg.PreviewSize,
		DefaultAnalysisCount: cfg.DefaultAnalysisCount,
		Concurrency:          cfg.AnalystConcurrency,
		MonitorInterval:      cfg.MonitorInterval,
		CorrectionThreshold:  cfg.CorrectionThreshold,
		SynthesisTopN:        cfg.SynthesisTopN,
	})

	return a, nil
}

// close releases what buildApp opened, except the pool which the caller owns.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return database.NewPool(ctx, database.Config{
		URL:              cfg.DatabaseURL,
		MaxConns:         cfg.DatabaseMaxConns,
		MaxConnLifetime:  time.Hour,
		ConnectAttempts:  cfg.DatabaseConnectAttempts,
		StatementTimeout: cfg.DatabaseStatementTimeout,
	})
}
