package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/digkill/designforge/internal/admin"
	"github.com/digkill/designforge/internal/api"
	"github.com/digkill/designforge/internal/database"
	"github.com/digkill/designforge/internal/ratelimit"
	"github.com/digkill/designforge/internal/scheduler"
	"github.com/digkill/designforge/internal/telegram"
)

func newServeCommand(c *commandContext) *cobra.Command {
	var (
		withBot       bool
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, admin endpoints, Telegram bot and refill scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			log := a.log

			if err := database.Migrate(ctx, a.db); err != nil {
				return fmt.Errorf("database migrate: %w", err)
			}

			redisClient := ratelimit.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if redisClient != nil {
				defer redisClient.Close()
			}
			limiter := ratelimit.New(redisClient, "", cfg.RateLimitPerMinute, time.Minute)

			var (
				bot      *telegram.Bot
				notifier admin.Notifier
			)
			if withBot && cfg.BotToken != "" {
				botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
				if err != nil {
					return fmt.Errorf("telegram bot: %w", err)
				}
				bot = telegram.NewBot(botAPI, cfg.BotToken, log, telegram.Services{
					Users:       a.users,
					Ledger:      a.ledger,
					Generations: a.generations,
					Variations:  a.variations,
					Promos:      a.promos,
				}, a.uploader)
				notifier = bot
			}

			server := api.NewServer(api.Options{
				Addr:     cfg.HTTPListenAddr,
				Sessions: api.NewJWTSessions(cfg.JWTSecret, 0, a.users),
				Limiter:  limiter,
				Uploader: a.uploader,
				Admin:    admin.NewHandler(cfg.AdminUsername, cfg.AdminPassword, log, a.users, a.ledger, a.promos, notifier),
				Log:      log,
			}, api.Services{
				Users:       a.users,
				Ledger:      a.ledger,
				Generations: a.generations,
				Variations:  a.variations,
				Mockups:     a.mockups,
				Products:    a.products,
				Orders:      a.orders,
				Promos:      a.promos,
			})

			errs := make(chan error, 3)
			var wg sync.WaitGroup
			run := func(name string, fn func(context.Context) error) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error("component stopped", "component", name, "err", err)
						errs <- fmt.Errorf("%s: %w", name, err)
						stop()
					}
				}()
			}

			run("http", server.Run)
			if bot != nil {
				run("telegram", bot.Run)
			}
			if withScheduler {
				run("scheduler", scheduler.New(a.ledger, a.publisher, log, cfg.RefillSchedule).Run)
			}

			wg.Wait()
			close(errs)
			return <-errs
		},
	}

	cmd.Flags().BoolVar(&withBot, "bot", true, "Run the Telegram bot when TELEGRAM_BOT_TOKEN is set")
	cmd.Flags().BoolVar(&withScheduler, "scheduler", true, "Run the monthly refill scheduler in-process")
	return cmd
}

func newSchedulerCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the monthly refill scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return scheduler.New(a.ledger, a.publisher, a.log, a.cfg.RefillSchedule).Run(ctx)
		},
	}
}
