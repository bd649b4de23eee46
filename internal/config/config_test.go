package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_DSN", "user:pass@tcp(localhost:3306)/designforge")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DBDriver != "mysql" {
		t.Fatalf("DBDriver = %q, want mysql", cfg.DBDriver)
	}
	if cfg.DefaultPlanCredits != 50 {
		t.Fatalf("DefaultPlanCredits = %d, want 50", cfg.DefaultPlanCredits)
	}
	if cfg.ImageProvider != "stub" {
		t.Fatalf("ImageProvider = %q, want stub", cfg.ImageProvider)
	}
	if got := cfg.ProductPrice().String(); got != "29.99" {
		t.Fatalf("ProductPrice = %s, want 29.99", got)
	}
	if cfg.KIEBaseURL != defaultKIEBaseURL {
		t.Fatalf("KIEBaseURL = %q", cfg.KIEBaseURL)
	}
}

func TestLoad_ReadsEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DEFAULT_PLAN_CREDITS", "120")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("KIE_BASE_URL", "kie.ai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.DefaultPlanCredits != 120 {
		t.Fatalf("DefaultPlanCredits = %d, want 120", cfg.DefaultPlanCredits)
	}
	if !cfg.S3UsePathStyle {
		t.Fatal("expected S3UsePathStyle to be true")
	}
	if cfg.KIEBaseURL != "https://api.kie.ai" {
		t.Fatalf("KIEBaseURL = %q, want https://api.kie.ai", cfg.KIEBaseURL)
	}
}

func TestLoad_FailsWhenDSNMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_DSN", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected missing DSN error")
	}
	if !strings.Contains(err.Error(), "DATABASE_DSN") {
		t.Fatalf("expected error to mention DATABASE_DSN, got %v", err)
	}
}

func TestLoad_RequiresKIEKeyForKIEProvider(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("IMAGE_PROVIDER", "kie")
	t.Setenv("KIE_API_KEY", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "KIE_API_KEY") {
		t.Fatalf("expected KIE_API_KEY error, got %v", err)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_DSN", "x")
	t.Setenv("DB_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "test.env")
	content := "DATABASE_DSN=from-file\nPRODUCT_CURRENCY=EUR\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// Register restores for the keys the file will overload.
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("PRODUCT_CURRENCY", "")
	t.Setenv("CONFIG_ENV_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DatabaseDSN != "from-file" || cfg.ProductCurrency != "EUR" {
		t.Fatalf("unexpected config from file: dsn=%q currency=%q", cfg.DatabaseDSN, cfg.ProductCurrency)
	}
}

func TestRequireServe(t *testing.T) {
	if err := (Config{}).RequireServe(); err == nil {
		t.Fatal("expected JWT_SECRET error")
	}
	if err := (Config{JWTSecret: "s"}).RequireServe(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
