package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/digkill/designforge/internal/metrics"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

const maxHistoryLimit = 200

// Ledger owns subscription balances and the append-only usage log.
// Consume and RecordUsage run inside the caller's transaction scope.
type Ledger struct {
	store          *repository.Store
	log            *slog.Logger
	defaultCredits int
}

func NewLedger(store *repository.Store, log *slog.Logger, defaultCredits int) *Ledger {
	if defaultCredits < 0 {
		defaultCredits = 0
	}
	return &Ledger{store: store, log: log, defaultCredits: defaultCredits}
}

// UsageInput describes one consumption line.
type UsageInput struct {
	UserID       string
	GenerationID string
	Cost         int
	BalanceAfter int
	Description  string
	Metadata     models.JSONMap
}

// subscription fetches the user's subscription row locked for the rest of st's
// transaction, creating the default FREE one first if needed.
func (l *Ledger) subscription(ctx context.Context, st *repository.Store, userID string) (*models.Subscription, error) {
	sub, err := st.Subscriptions.GetForUpdate(ctx, userID)
	if err != nil || sub != nil {
		return sub, err
	}
	err = st.Subscriptions.CreateIfMissing(ctx, models.Subscription{
		UserID:           userID,
		PlanTier:         models.PlanFree,
		MonthlyCredits:   l.defaultCredits,
		RemainingCredits: l.defaultCredits,
	})
	if err != nil {
		return nil, err
	}
	sub, err = st.Subscriptions.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription for %s missing after create", userID)
	}
	return sub, nil
}

// balanceAfterWrite re-reads the balance inside st so callers log the value
// their own write produced.
func balanceAfterWrite(ctx context.Context, st *repository.Store, userID string) (int, error) {
	sub, err := st.Subscriptions.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, fmt.Errorf("subscription for %s vanished", userID)
	}
	return sub.RemainingCredits, nil
}

// Consume debits cost credits and returns the new balance. A non-positive cost
// changes nothing. When the balance cannot cover cost an
// *InsufficientCreditsError is returned and nothing is written.
func (l *Ledger) Consume(ctx context.Context, st *repository.Store, userID string, cost int) (int, error) {
	sub, err := l.subscription(ctx, st, userID)
	if err != nil {
		return 0, err
	}
	if cost <= 0 {
		return sub.RemainingCredits, nil
	}
	if cost > sub.RemainingCredits {
		return 0, &InsufficientCreditsError{Required: cost, Available: sub.RemainingCredits}
	}

	ok, err := st.Subscriptions.Consume(ctx, userID, cost)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Another debit landed between the read and the update.
		fresh, err := st.Subscriptions.Get(ctx, userID)
		if err != nil {
			return 0, err
		}
		available := 0
		if fresh != nil {
			available = fresh.RemainingCredits
		}
		return 0, &InsufficientCreditsError{Required: cost, Available: available}
	}
	return balanceAfterWrite(ctx, st, userID)
}

// RecordUsage appends a consumption entry. A non-positive cost records nothing.
func (l *Ledger) RecordUsage(ctx context.Context, st *repository.Store, in UsageInput) error {
	if in.Cost <= 0 {
		return nil
	}
	entry := &models.CreditUsageEntry{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Delta:        -in.Cost,
		BalanceAfter: in.BalanceAfter,
		Description:  in.Description,
		Metadata:     in.Metadata,
	}
	if in.GenerationID != "" {
		id := in.GenerationID
		entry.GenerationID = &id
	}
	return st.Usage.Insert(ctx, entry)
}

// TopUp adds amount credits in its own transaction and returns the new balance.
func (l *Ledger) TopUp(ctx context.Context, userID string, amount int, description string, metadata models.JSONMap) (int, error) {
	if amount <= 0 {
		return 0, validationf("Top-up amount must be positive.")
	}
	var balance int
	err := l.store.Transact(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return notFound("User")
		}
		balance, err = l.credit(ctx, tx, userID, amount, description, metadata)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.CreditsGranted.WithLabelValues(sourceOf(metadata)).Add(float64(amount))
	return balance, nil
}

// credit raises the balance inside st and logs a positive entry.
func (l *Ledger) credit(ctx context.Context, st *repository.Store, userID string, amount int, description string, metadata models.JSONMap) (int, error) {
	if _, err := l.subscription(ctx, st, userID); err != nil {
		return 0, err
	}
	if _, err := st.Subscriptions.Add(ctx, userID, amount); err != nil {
		return 0, err
	}
	balance, err := balanceAfterWrite(ctx, st, userID)
	if err != nil {
		return 0, err
	}
	err = st.Usage.Insert(ctx, &models.CreditUsageEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        amount,
		BalanceAfter: balance,
		Description:  description,
		Metadata:     metadata,
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance returns the user's subscription, creating the default one on first use.
func (l *Ledger) Balance(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := l.store.Transact(ctx, func(tx *repository.Store) error {
		var err error
		sub, err = l.subscription(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return sub, nil
}

// History lists the newest ledger entries first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.CreditUsageEntry, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 50
	}
	entries, err := l.store.Usage.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RefillMonthly raises every subscription below its allotment back to it and
// returns how many were refilled. Balances that change concurrently are skipped
// and picked up on the next run.
func (l *Ledger) RefillMonthly(ctx context.Context) (int, error) {
	subs, err := l.store.Subscriptions.ListBelowAllotment(ctx)
	if err != nil {
		return 0, err
	}

	refilled := 0
	for _, sub := range subs {
		sub := sub
		amount := sub.MonthlyCredits - sub.RemainingCredits
		var applied bool
		err := l.store.Transact(ctx, func(tx *repository.Store) error {
			ok, err := tx.Subscriptions.Refill(ctx, sub.UserID, sub.RemainingCredits, sub.MonthlyCredits)
			if err != nil || !ok {
				return err
			}
			applied = true
			return tx.Usage.Insert(ctx, &models.CreditUsageEntry{
				ID:           uuid.NewString(),
				UserID:       sub.UserID,
				Delta:        amount,
				BalanceAfter: sub.MonthlyCredits,
				Description:  "Monthly credit refill",
				Metadata:     models.JSONMap{"source": "refill", "planTier": string(sub.PlanTier)},
			})
		})
		if err != nil {
			return refilled, fmt.Errorf("refill %s: %w", sub.UserID, err)
		}
		if !applied {
			l.log.Info("refill skipped, balance changed", "user_id", sub.UserID)
			continue
		}
		refilled++
		metrics.CreditsGranted.WithLabelValues("refill").Add(float64(amount))
	}
	return refilled, nil
}

func sourceOf(metadata models.JSONMap) string {
	if src, ok := metadata["source"].(string); ok && src != "" {
		return src
	}
	return "topup"
}

// ChangePlan moves the user to tier. The new allotment applies from the next refill.
func (l *Ledger) ChangePlan(ctx context.Context, userID string, tier models.PlanTier) (*models.Subscription, error) {
	switch tier {
	case models.PlanFree, models.PlanPro, models.PlanStudio:
	default:
		return nil, validationf("Unknown plan %q.", tier)
	}
	var sub *models.Subscription
	err := l.store.Transact(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return notFound("User")
		}
		if _, err := l.subscription(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.Subscriptions.SetPlan(ctx, userID, tier); err != nil {
			return err
		}
		sub, err = tx.Subscriptions.Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
