package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/reposcout/internal/config"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/repository"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage search configurations",
		Long:  "Create and list search configurations, and print the effective daemon settings",
	}

	cmd.AddCommand(ConfigListCmd())
	cmd.AddCommand(ConfigCreateCmd())
	cmd.AddCommand(ConfigShowCmd())

	return cmd
}

func ConfigCreateCmd() *cobra.Command {
	var (
		target    int
		isDefault bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a search configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runConfigCreate(args[0], target, isDefault, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&target, "target", "t", 20, "Number of repositories to analyze")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Make this the default configuration")

	return cmd
}

func runConfigCreate(name string, target int, isDefault bool, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := service.NewConfigurationService(repository.NewConfigurationRepository(pool), repository.NewTxRunner(pool))
	c, err := svc.Create(ctx, service.ConfigurationInput{
		Name:                name,
		TargetAnalysisCount: target,
		IsDefault:           isDefault,
	})
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(c, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}
	fmt.Printf("Configuration created: %s (%s)\n", c.Name, c.ID)
	return nil
}

func ConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List search configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runConfigList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runConfigList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	configs, err := repository.NewConfigurationRepository(pool).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list configurations: %w", err)
	}

	if outputFormat == "json" {
		if configs == nil {
			configs = []*domain.SearchConfiguration{}
		}
		jsonBytes, _ := json.MarshalIndent(map[string]interface{}{"items": configs}, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(configs) == 0 {
		fmt.Println("No configurations found")
		return nil
	}
	fmt.Println("Configurations:")
	for _, c := range configs {
		marker := ""
		if c.IsDefault {
			marker = " [default]"
		}
		fmt.Printf("  %s: %s v%d target=%d%s\n", c.ID, c.Name, c.Version, c.TargetAnalysisCount, marker)
	}
	return nil
}

// ConfigShowCmd prints the settings the daemon would run with. Secrets are
// reported as set or unset only.
func ConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective daemon settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			jsonBytes, _ := json.MarshalIndent(effectiveSettings(cfg), "", "  ")
			fmt.Println(string(jsonBytes))
			return nil
		},
	}
}

func effectiveSettings(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"port":                     cfg.Port,
		"debug":                    cfg.Debug,
		"database_url":             redact(cfg.DatabaseURL),
		"database_max_conns":       cfg.DatabaseMaxConns,
		"s3_enabled":               cfg.HasS3(),
		"s3_bucket":                cfg.S3Bucket,
		"openai_api_key":           redact(cfg.OpenAIAPIKey),
		"openai_model":             cfg.OpenAIModel,
		"openai_base_url":          cfg.OpenAIBaseURL,
		"generation_max_attempts":  cfg.GenerationMaxAttempts,
		"github_token":             redact(cfg.GitHubToken),
		"github_base_url":          cfg.GitHubBaseURL,
		"redis_enabled":            cfg.HasRedis(),
		"api_key":                  redact(cfg.APIKey),
		"sentry_dsn":               redact(cfg.SentryDSN),
		"environment":              cfg.Environment,
		"traces_sample_rate":       cfg.SampleRate(),
		"preview_size":             cfg.PreviewSize,
		"default_analysis_count":   cfg.DefaultAnalysisCount,
		"analyst_concurrency":      cfg.AnalystConcurrency,
		"analyst_timeout":          cfg.AnalystTimeout.String(),
		"monitor_interval":         cfg.MonitorInterval.String(),
		"correction_threshold":     cfg.CorrectionThreshold,
		"synthesis_top_n":          cfg.SynthesisTopN,
		"enrichment_poll_interval": cfg.EnrichmentPollInterval.String(),
		"resume_poll_interval":     cfg.ResumePollInterval.String(),
	}
}

func redact(secret string) string {
	if secret == "" {
		return "unset"
	}
	return "set"
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openPool(ctx, cfg)
}
