package cli

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/digkill/designforge/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DBDriver:            "sqlite",
		DatabaseDSN:         filepath.Join(t.TempDir(), "cli.db"),
		LogLevel:            "error",
		JWTSecret:           "cli-secret",
		DefaultPlanCredits:  50,
		DefaultProductPrice: "29.99",
		ProductCurrency:     "USD",
		PromoBonusCredits:   100,
		ImageProvider:       "stub",
	}
}

func run(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cmd := NewRootCommand(func() (config.Config, error) { return cfg, nil }, log)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var userLine = regexp.MustCompile(`created user (\S+) \(`)

func TestUserCreditsAndPromoCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "migrate")
	if err != nil || !strings.Contains(out, "schema up to date (sqlite)") {
		t.Fatalf("migrate = %q, %v", out, err)
	}

	out, err = run(t, cfg, "users", "create", "--email", "maker@example.com")
	if err != nil {
		t.Fatalf("users create: %v", err)
	}
	m := userLine.FindStringSubmatch(out)
	if m == nil || !strings.Contains(out, "(maker)") || !strings.Contains(out, "token ") {
		t.Fatalf("users create output = %q", out)
	}
	userID := m[1]

	out, err = run(t, cfg, "credits", "grant", userID, "25")
	if err != nil || !strings.Contains(out, "balance 75") {
		t.Fatalf("credits grant = %q, %v", out, err)
	}

	out, err = run(t, cfg, "credits", "history", userID)
	if err != nil || !strings.Contains(out, "Manual top-up") || !strings.Contains(out, "+25") {
		t.Fatalf("credits history = %q, %v", out, err)
	}

	out, err = run(t, cfg, "users", "plan", userID, "pro")
	if err != nil || !strings.Contains(out, "plan PRO, 500 monthly credits") {
		t.Fatalf("users plan = %q, %v", out, err)
	}

	out, err = run(t, cfg, "refill")
	if err != nil || !strings.Contains(out, "refilled 1 subscriptions") {
		t.Fatalf("refill = %q, %v", out, err)
	}

	out, err = run(t, cfg, "promo", "create", "welcome", "--max-uses", "5", "--bonus", "10")
	if err != nil || !strings.Contains(out, "created WELCOME: 5 uses, 10 credits each") {
		t.Fatalf("promo create = %q, %v", out, err)
	}
	out, err = run(t, cfg, "promo", "list")
	if err != nil || !strings.Contains(out, "WELCOME") || !strings.Contains(out, "0/5") {
		t.Fatalf("promo list = %q, %v", out, err)
	}
}

func TestCommandErrors(t *testing.T) {
	cfg := testConfig(t)
	if _, err := run(t, cfg, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"amount not a number", []string{"credits", "grant", "someone", "ten"}},
		{"unknown user", []string{"credits", "grant", "ghost", "5"}},
		{"negative amount", []string{"credits", "grant", "ghost", "-5"}},
		{"missing args", []string{"credits", "grant"}},
		{"unknown plan", []string{"users", "plan", "ghost", "gold"}},
		{"no identity", []string{"users", "create"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, cfg, tt.args...); err == nil {
				t.Fatalf("%v succeeded", tt.args)
			}
		})
	}
}

func TestConfigErrorStopsCommand(t *testing.T) {
	cmd := NewRootCommand(func() (config.Config, error) { return config.Config{}, errors.New("missing DATABASE_DSN") }, nil)
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"migrate"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "missing DATABASE_DSN") {
		t.Fatalf("err = %v", err)
	}
}

func TestServeRequiresJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""
	if _, err := run(t, cfg, "serve"); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"Code", "Bonus"}, [][]string{{"HELLO", "7"}, {"SHORT"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"CODE", "BONUS", "HELLO", "SHORT"} {
		if !strings.Contains(strings.ToUpper(got), want) {
			t.Fatalf("table missing %q:\n%s", want, got)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("empty headers should render nothing")
	}
}
