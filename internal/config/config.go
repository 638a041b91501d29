package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"dev"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	AuthJWTSecret   string `env:"AUTH_JWT_SECRET,required"`
	AuthJWTIssuer   string `env:"AUTH_JWT_ISSUER"`
	AuthJWTAudience string `env:"AUTH_JWT_AUDIENCE"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"noop"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"noreply@therapii.app"`
	EmailFromName string `env:"EMAIL_FROM_NAME" envDefault:"Therapii"`
	SupportEmail  string `env:"SUPPORT_EMAIL" envDefault:"support@therapii.com"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	AWSRegion     string `env:"AWS_REGION" envDefault:"us-east-1"`

	NotifyWaitTimeoutMs int `env:"NOTIFY_WAIT_TIMEOUT_MS" envDefault:"3000"`
	NotifySendTimeoutMs int `env:"NOTIFY_SEND_TIMEOUT_MS" envDefault:"15000"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripeDefaultPriceID string `env:"STRIPE_DEFAULT_PRICE_ID"`
	BillingSuccessURL    string `env:"BILLING_SUCCESS_URL" envDefault:"https://therapii.app/success"`
	BillingCancelURL     string `env:"BILLING_CANCEL_URL" envDefault:"https://therapii.app/billing"`

	PreviewRateLimitPerMin  int `env:"PREVIEW_RATE_LIMIT_PER_MIN" envDefault:"30"`
	RedeemRateLimitPerMin   int `env:"REDEEM_RATE_LIMIT_PER_MIN" envDefault:"10"`
	InvitationRetentionDays int `env:"INVITATION_RETENTION_DAYS" envDefault:"30"`

	// MaxBodyBytes caps request bodies; AI transcripts are the largest payloads.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func (c *Config) NotifyWaitTimeout() time.Duration {
	return time.Duration(c.NotifyWaitTimeoutMs) * time.Millisecond
}

func (c *Config) NotifySendTimeout() time.Duration {
	return time.Duration(c.NotifySendTimeoutMs) * time.Millisecond
}

// InvitationRetention is how long an expired, unused invitation is kept
// before the cleanup job removes it.
func (c *Config) InvitationRetention() time.Duration {
	return time.Duration(c.InvitationRetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	switch c.EmailProvider {
	case "noop", "smtp", "ses":
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be one of noop, smtp, ses (got %q)", c.EmailProvider)
	}

	if c.EmailProvider == "smtp" && c.SMTPHost == "" {
		return errors.New("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
	}

	if c.IsProduction() {
		if err := validateSecret("AUTH_JWT_SECRET", c.AuthJWTSecret); err != nil {
			return err
		}

		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: rate limits are per instance")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.StripeSecretKey == "" {
			log.Warn().Msg("STRIPE_SECRET_KEY is empty in production: billing endpoints will fail")
		}
		if c.EmailProvider == "noop" {
			log.Warn().Msg("EMAIL_PROVIDER is noop in production: invitation emails will not be delivered")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads .env (when present) into the process environment and parses
// the configuration from it. Variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.OpenAIBaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	return &cfg, nil
}
