package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/reposcout/internal/api/handlers"
	"github.com/cloo-solutions/reposcout/internal/api/middleware"
	"github.com/cloo-solutions/reposcout/internal/config"
	"github.com/cloo-solutions/reposcout/internal/database"
	"github.com/cloo-solutions/reposcout/internal/jobs"
	"github.com/cloo-solutions/reposcout/internal/server"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/cloo-solutions/reposcout/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 30 * time.Second

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the reposcout API server, the enrichment worker and the resume sweeper",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on (overrides REPOSCOUT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	defer initTelemetry(cfg)()

	// Runs outlive the signal: the engine is stopped explicitly below so
	// that its in-flight phases get the shutdown grace period.
	base := context.Background()

	pool, err := openPool(base, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	if skip, _ := cmd.Flags().GetBool("no-migrate"); !skip {
		source, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, source); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := buildApp(base, cfg, pool)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		jobs.New("enrichment", jobs.NewEnrichmentWorker(a.enrichments, a.enricher), cfg.EnrichmentPollInterval).Start(ctx)
		return nil
	})
	g.Go(func() error {
		// requests that were mid-flight when the last process died resume at boot
		jobs.New("resume", jobs.NewResumeWorker(a.requests, a.engine), cfg.ResumePollInterval, jobs.Immediately()).Start(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(base, shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		// In-flight phases are cancelled; the store keeps their last committed phase.
		if err := a.engine.Shutdown(shutdownCtx); err != nil {
			log.Printf("engine: shutdown incomplete: %v", err)
		}
		return nil
	})

	err = g.Wait()
	log.Println("server exited")
	return err
}

// router wires the services over the app's stores and engine.
func (a *app) router() http.Handler {
	ids := &service.DefaultUUIDGenerator{}
	search := service.NewSearchServiceWithUUIDGen(a.requests, a.configs, a.engine, ids)

	cfg := server.RouterConfig{
		SearchHandler:  handlers.NewSearchHandler(search),
		HITLHandler:    handlers.NewHITLHandler(service.NewReviewService(a.items, a.requests, a.engine)),
		ResultsHandler: handlers.NewResultsHandler(
			service.NewResultsService(a.requests, a.results),
			service.NewReportService(a.requests, a.archive),
			service.NewEnrichmentService(a.requests, a.enrichments),
		),
		ConfigurationHandler: handlers.NewConfigurationHandler(
			service.NewConfigurationServiceWithUUIDGen(a.configs, a.txRunner, ids),
		),
		WebsocketHandler: handlers.NewWebsocketHandler(
			a.registry, service.NewChatService(a.requests, a.results, a.llm, a.llm), search, a.bus,
		),
	}
	if a.cfg.APIKey != "" {
		cfg.AuthValidator = middleware.NewStaticKey(a.cfg.APIKey)
	} else {
		log.Println("auth: REPOSCOUT_API_KEY not set, API is open")
	}
	return server.NewRouter(cfg)
}

func initTelemetry(cfg *config.Config) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}
	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.SampleRate(),
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	log.Printf("telemetry: reporting to sentry as %s", cfg.Environment)
	return shutdown
}
