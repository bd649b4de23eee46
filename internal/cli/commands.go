package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digkill/designforge/internal/api"
	"github.com/digkill/designforge/internal/database"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/scheduler"
)

func newMigrateCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := database.Migrate(cmd.Context(), a.db); err != nil {
				return fmt.Errorf("database migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.DBDriver)
			return nil
		},
	}
}

func newCreditsCommand(c *commandContext) *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and adjust credit balances",
	}

	var description string
	grantCmd := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("amount %q is not a number", args[1])
			}
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			balance, err := a.ledger.TopUp(cmd.Context(), args[0], amount, description, models.JSONMap{"source": "cli"})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits, balance %d\n", amount, balance)
			return nil
		},
	}
	grantCmd.Flags().StringVar(&description, "description", "Manual top-up", "Ledger entry description")

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's balance and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sub, err := a.ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := a.ledger.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan %s, %d of %d credits\n", sub.PlanTier, sub.RemainingCredits, sub.MonthlyCredits)
			if len(entries) == 0 {
				fmt.Fprintln(out, "no ledger entries")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.CreatedAt.Format("2006-01-02 15:04"),
					fmt.Sprintf("%+d", e.Delta),
					strconv.Itoa(e.BalanceAfter),
					e.Description,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"When", "Delta", "Balance", "Description"}, rows, []columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")

	creditsCmd.AddCommand(grantCmd, historyCmd)
	return creditsCmd
}

func newUsersCommand(c *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	var email, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.Create(cmd.Context(), email, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created user %s (%s)\n", user.ID, user.DisplayName)
			if a.cfg.JWTSecret == "" {
				return nil
			}
			token, err := api.NewJWTSessions(a.cfg.JWTSecret, 0, a.users).Issue(user.ID)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintf(out, "token %s\n", token)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Email address")
	createCmd.Flags().StringVar(&name, "name", "", "Display name")

	planCmd := &cobra.Command{
		Use:   "plan <user-id> <FREE|PRO|STUDIO>",
		Short: "Change a user's plan tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sub, err := a.ledger.ChangePlan(cmd.Context(), args[0], models.PlanTier(strings.ToUpper(strings.TrimSpace(args[1]))))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s, %d monthly credits\n", sub.PlanTier, sub.MonthlyCredits)
			return nil
		},
	}

	usersCmd.AddCommand(createCmd, planCmd)
	return usersCmd
}

func newPromoCommand(c *commandContext) *cobra.Command {
	promoCmd := &cobra.Command{
		Use:   "promo",
		Short: "Manage promo codes",
	}

	var maxUses, bonus int
	createCmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Create a promo code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			promo, err := a.promos.Create(cmd.Context(), args[0], maxUses, bonus)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d uses, %d credits each\n", promo.Code, promo.MaxUses, promo.BonusCredits)
			return nil
		},
	}
	createCmd.Flags().IntVar(&maxUses, "max-uses", 100, "Maximum redemptions")
	createCmd.Flags().IntVar(&bonus, "bonus", 0, "Bonus credits (0 uses the configured default)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List promo codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			promos, err := a.promos.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(promos))
			for _, p := range promos {
				rows = append(rows, []string{p.Code, fmt.Sprintf("%d/%d", p.Uses, p.MaxUses), strconv.Itoa(p.BonusCredits), p.ID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Used", "Bonus", "ID"}, rows, []columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}

	promoCmd.AddCommand(createCmd, listCmd)
	return promoCmd
}

func newRefillCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refill",
		Short: "Run one monthly credit refill pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := scheduler.New(a.ledger, a.publisher, a.log, a.cfg.RefillSchedule).RunRefill(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refilled %d subscriptions\n", n)
			return nil
		},
	}
}
