package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/digkill/designforge/internal/config"
	"github.com/digkill/designforge/pkg/logger"
)

// Execute runs the designforge command line and exits non-zero on failure.
func Execute() {
	cmd := NewRootCommand(config.Load, nil)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// commandContext loads configuration and the logger once per invocation.
type commandContext struct {
	loadConfig func() (config.Config, error)
	cfg        *config.Config
	log        *slog.Logger
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) logger() *slog.Logger {
	if c.log == nil {
		level := "info"
		if c.cfg != nil {
			level = c.cfg.LogLevel
		}
		c.log = logger.New(level)
	}
	return c.log
}

func (c *commandContext) openApp() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, c.logger())
}

// NewRootCommand builds the command tree. log may be nil to use the
// configured stdout logger.
func NewRootCommand(loadConfig func() (config.Config, error), log *slog.Logger) *cobra.Command {
	ctx := &commandContext{loadConfig: loadConfig, log: log}

	rootCmd := &cobra.Command{
		Use:           "designforge",
		Short:         "DesignForge apparel design service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newCreditsCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newPromoCommand(ctx))
	rootCmd.AddCommand(newRefillCommand(ctx))
	rootCmd.AddCommand(newSchedulerCommand(ctx))

	return rootCmd
}
