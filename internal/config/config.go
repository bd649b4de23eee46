package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config aggregates runtime configuration for the API, the bot and supporting services.
type Config struct {
	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseDSN string `mapstructure:"DATABASE_DSN"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	HTTPListenAddr string `mapstructure:"HTTP_LISTEN_ADDR"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AdminUsername  string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword  string `mapstructure:"ADMIN_PASSWORD"`

	DefaultPlanCredits  int    `mapstructure:"DEFAULT_PLAN_CREDITS"`
	DefaultProductPrice string `mapstructure:"DEFAULT_PRODUCT_PRICE"`
	ProductCurrency     string `mapstructure:"PRODUCT_CURRENCY"`
	PromoBonusCredits   int    `mapstructure:"PROMO_BONUS_CREDITS"`
	RefillSchedule      string `mapstructure:"REFILL_SCHEDULE"`

	ImageProvider      string `mapstructure:"IMAGE_PROVIDER"`
	KIEAPIKey          string `mapstructure:"KIE_API_KEY"`
	KIEBaseURL         string `mapstructure:"KIE_BASE_URL"`
	KIEModel           string `mapstructure:"KIE_MODEL"`
	HTTPTimeoutSeconds int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`

	BotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	S3Endpoint      string `mapstructure:"S3_ENDPOINT"`
	S3Region        string `mapstructure:"S3_REGION"`
	S3AccessKey     string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey     string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket        string `mapstructure:"S3_BUCKET"`
	S3PublicBaseURL string `mapstructure:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle  bool   `mapstructure:"S3_USE_PATH_STYLE"`
	S3Prefix        string `mapstructure:"S3_PREFIX"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

const defaultKIEBaseURL = "https://api.kie.ai"

// Load reads configuration from an optional .env file and the environment.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_LISTEN_ADDR", ":8080")
	viper.SetDefault("ADMIN_USERNAME", "admin")
	viper.SetDefault("ADMIN_PASSWORD", "change-me")
	viper.SetDefault("DEFAULT_PLAN_CREDITS", 50)
	viper.SetDefault("DEFAULT_PRODUCT_PRICE", "29.99")
	viper.SetDefault("PRODUCT_CURRENCY", "USD")
	viper.SetDefault("PROMO_BONUS_CREDITS", 100)
	viper.SetDefault("REFILL_SCHEDULE", "0 3 1 * *") // 03:00 on day-of-month 1.
	viper.SetDefault("IMAGE_PROVIDER", "stub")
	viper.SetDefault("KIE_BASE_URL", defaultKIEBaseURL)
	viper.SetDefault("KIE_MODEL", "flux-2/pro-text-to-image")
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 60)
	viper.SetDefault("S3_PREFIX", "references")
	viper.SetDefault("S3_USE_PATH_STYLE", false)
	viper.SetDefault("EVENTS_EXCHANGE", "designforge.events")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	viper.AutomaticEnv()

	for _, key := range []string{
		"DATABASE_DSN", "JWT_SECRET", "KIE_API_KEY", "TELEGRAM_BOT_TOKEN",
		"S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_PUBLIC_BASE_URL",
		"RABBITMQ_URL", "REDIS_ADDR", "REDIS_PASSWORD",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.ImageProvider = strings.ToLower(strings.TrimSpace(cfg.ImageProvider))
	cfg.KIEBaseURL = normalizeKIEBaseURL(cfg.KIEBaseURL, defaultKIEBaseURL)

	var missing []string
	if cfg.DatabaseDSN == "" {
		missing = append(missing, "DATABASE_DSN")
	}
	if cfg.ImageProvider == "kie" && cfg.KIEAPIKey == "" {
		missing = append(missing, "KIE_API_KEY")
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.ImageProvider {
	case "stub", "kie":
	default:
		return Config{}, fmt.Errorf("unsupported IMAGE_PROVIDER %q", cfg.ImageProvider)
	}
	if _, err := decimal.NewFromString(cfg.DefaultProductPrice); err != nil {
		return Config{}, fmt.Errorf("parse DEFAULT_PRODUCT_PRICE: %w", err)
	}

	return cfg, nil
}

// RequireServe checks the settings only the HTTP server needs.
func (c Config) RequireServe() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("missing required environment variables: [JWT_SECRET]")
	}
	return nil
}

// RequestTimeout is the outbound HTTP timeout for provider calls.
func (c Config) RequestTimeout() time.Duration {
	return time.Second * time.Duration(c.HTTPTimeoutSeconds)
}

// ProductPrice returns the default listing price. Load has already validated it.
func (c Config) ProductPrice() decimal.Decimal {
	price, err := decimal.NewFromString(c.DefaultProductPrice)
	if err != nil {
		return decimal.RequireFromString("29.99")
	}
	return price
}

// normalizeKIEBaseURL ensures we always hit the API host; the root kie.ai domain
// serves HTML instead of JSON.
func normalizeKIEBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

// loadEnvFile applies the first .env candidate found. A missing file is fine:
// containers usually pass everything through the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
