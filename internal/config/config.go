package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuthJWTSecret  string   `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	DefaultTenant  string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// RequestTimeout bounds every API request, advisor round trip included.
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Recommendation advisor (OpenAI-compatible chat completions).
	AdvisorAPIKey      string        `mapstructure:"ADVISOR_API_KEY"`
	AdvisorBaseURL     string        `mapstructure:"ADVISOR_BASE_URL"`
	AdvisorModel       string        `mapstructure:"ADVISOR_MODEL"`
	AdvisorTimeout     time.Duration `mapstructure:"ADVISOR_TIMEOUT"`
	AdvisorTemperature float64       `mapstructure:"ADVISOR_TEMPERATURE"`
	AdvisorMaxTokens   int           `mapstructure:"ADVISOR_MAX_TOKENS"`

	// TriageAutoApply controls whether a vitals-driven recommendation is
	// applied immediately or recorded as an unapplied advisory entry.
	TriageAutoApply bool `mapstructure:"TRIAGE_AUTO_APPLY"`

	// Background jobs.
	JobsBackend  string   `mapstructure:"JOBS_BACKEND"`
	JobsAPIURL   string   `mapstructure:"JOBS_API_URL"`
	JobsAPIKey   string   `mapstructure:"JOBS_API_KEY"`
	SQSQueueURL  string   `mapstructure:"SQS_QUEUE_URL"`
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	// AWS (SQS jobs, S3 monitor images).
	AWSRegion      string `mapstructure:"AWS_REGION"`
	AWSEndpointURL string `mapstructure:"AWS_ENDPOINT_URL"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "DEFAULT_TENANT", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"ADVISOR_API_KEY", "ADVISOR_BASE_URL", "ADVISOR_MODEL", "ADVISOR_TIMEOUT",
	"ADVISOR_TEMPERATURE", "ADVISOR_MAX_TOKENS",
	"TRIAGE_AUTO_APPLY",
	"JOBS_BACKEND", "JOBS_API_URL", "JOBS_API_KEY",
	"SQS_QUEUE_URL", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"AWS_REGION", "AWS_ENDPOINT_URL", "S3_BUCKET",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("ADVISOR_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("ADVISOR_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("ADVISOR_TIMEOUT", "8s")
	v.SetDefault("ADVISOR_TEMPERATURE", 0.3)
	v.SetDefault("ADVISOR_MAX_TOKENS", 1024)
	v.SetDefault("TRIAGE_AUTO_APPLY", true)
	v.SetDefault("JOBS_BACKEND", "log")
	v.SetDefault("JOBS_API_URL", "https://api.trigger.dev")
	v.SetDefault("KAFKA_TOPIC", "ercc.notifications")
	v.SetDefault("AWS_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalizes a comma separated env value. Viper may already have
// decoded it into a slice, so both forms are accepted.
func splitList(decoded []string, raw string) []string {
	if raw == "" {
		raw = strings.Join(decoded, ",")
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AdvisorEnabled reports whether the remote LLM advisor is configured. When it
// is not, the rule-based advisor is used.
func (c *Config) AdvisorEnabled() bool {
	return c.AdvisorAPIKey != ""
}

// Validate checks that the configuration is safe to run. Outside development a
// signing secret is mandatory, and the selected jobs backend must have the
// settings it needs.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters in production")
	}
	if c.AdvisorTimeout <= 0 {
		return fmt.Errorf("ADVISOR_TIMEOUT must be positive, got %s", c.AdvisorTimeout)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.AdvisorTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed ADVISOR_TIMEOUT (%s)", c.RequestTimeout, c.AdvisorTimeout)
	}

	switch c.JobsBackend {
	case "log":
	case "http":
		if c.JobsAPIURL == "" {
			return fmt.Errorf("JOBS_API_URL is required when JOBS_BACKEND is \"http\"")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when JOBS_BACKEND is \"sqs\"")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when JOBS_BACKEND is \"kafka\"")
		}
	default:
		return fmt.Errorf("JOBS_BACKEND must be \"log\", \"http\", \"sqs\", or \"kafka\", got %q", c.JobsBackend)
	}

	return nil
}
