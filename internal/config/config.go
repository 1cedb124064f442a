package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL              string        `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns         int32         `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseConnectAttempts  int           `envconfig:"DATABASE_CONNECT_ATTEMPTS" default:"5"`
	DatabaseStatementTimeout time.Duration `envconfig:"DATABASE_STATEMENT_TIMEOUT" default:"30s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"reposcout-reports"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Lifetime of presigned report download links.
	ReportURLTTL time.Duration `envconfig:"REPORT_URL_TTL" default:"1h"`

	OpenAIAPIKey          string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel           string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL         string `envconfig:"OPENAI_BASE_URL"`
	GenerationMaxAttempts int    `envconfig:"GENERATION_MAX_ATTEMPTS" default:"3"`

	GitHubToken   string `envconfig:"GITHUB_TOKEN"`
	GitHubBaseURL string `envconfig:"GITHUB_BASE_URL"`

	// Phase events fan out through Redis when set, otherwise in-process only.
	RedisURL string `envconfig:"REDIS_URL"`

	// Static bearer key for the HTTP API. Empty disables auth.
	APIKey string `envconfig:"API_KEY"`

	// Tracing and error reporting are off without a DSN. A negative sample
	// rate means 1.0 in development and 0.1 everywhere else.
	SentryDSN        string  `envconfig:"SENTRY_DSN"`
	Environment      string  `envconfig:"ENVIRONMENT" default:"development"`
	TracesSampleRate float64 `envconfig:"TRACES_SAMPLE_RATE" default:"-1"`

	PreviewSize            int           `envconfig:"PREVIEW_SIZE" default:"5"`
	DefaultAnalysisCount   int           `envconfig:"DEFAULT_ANALYSIS_COUNT" default:"20"`
	AnalystConcurrency     int           `envconfig:"ANALYST_CONCURRENCY" default:"5"`
	AnalystTimeout         time.Duration `envconfig:"ANALYST_TIMEOUT" default:"3m"`
	MonitorInterval        time.Duration `envconfig:"MONITOR_INTERVAL" default:"15s"`
	CorrectionThreshold    int           `envconfig:"CORRECTION_THRESHOLD" default:"10"`
	SynthesisTopN          int           `envconfig:"SYNTHESIS_TOP_N" default:"12"`
	EnrichmentPollInterval time.Duration `envconfig:"ENRICHMENT_POLL_INTERVAL" default:"5s"`
	ResumePollInterval     time.Duration `envconfig:"RESUME_POLL_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("REPOSCOUT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.AnalystConcurrency <= 0 {
		return fmt.Errorf("REPOSCOUT_ANALYST_CONCURRENCY must be positive, got %d", c.AnalystConcurrency)
	}
	if c.PreviewSize <= 0 {
		return fmt.Errorf("REPOSCOUT_PREVIEW_SIZE must be positive, got %d", c.PreviewSize)
	}
	if c.SynthesisTopN <= 0 {
		return fmt.Errorf("REPOSCOUT_SYNTHESIS_TOP_N must be positive, got %d", c.SynthesisTopN)
	}
	if c.TracesSampleRate > 1 {
		return fmt.Errorf("REPOSCOUT_TRACES_SAMPLE_RATE must be at most 1, got %v", c.TracesSampleRate)
	}
	if c.GenerationMaxAttempts <= 0 {
		return fmt.Errorf("REPOSCOUT_GENERATION_MAX_ATTEMPTS must be positive, got %d", c.GenerationMaxAttempts)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// SampleRate resolves TracesSampleRate against the environment.
func (c *Config) SampleRate() float64 {
	switch {
	case c.TracesSampleRate >= 0:
		return min(c.TracesSampleRate, 1)
	case c.Environment == "development":
		return 1
	default:
		return 0.1
	}
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}
