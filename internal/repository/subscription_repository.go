package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/database"
	"github.com/digkill/designforge/internal/models"
)

type SubscriptionRepository struct {
	db      sqlx.ExtContext
	dialect database.Dialect
}

const subscriptionColumns = `user_id, plan_tier, monthly_credits, remaining_credits, created_at, updated_at`

func (r *SubscriptionRepository) Get(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	ok, err := getOne(ctx, r.db, &sub, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// GetForUpdate reads the subscription and, on MySQL and Postgres, locks the row
// until the surrounding transaction ends. SQLite already serializes writers.
func (r *SubscriptionRepository) GetForUpdate(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?`
	if r.dialect != database.SQLite {
		query += ` FOR UPDATE`
	}
	var sub models.Subscription
	ok, err := getOne(ctx, r.db, &sub, query, userID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// CreateIfMissing inserts sub unless the user already has a subscription.
// Concurrent first-time callers are both safe: the loser's insert is ignored.
func (r *SubscriptionRepository) CreateIfMissing(ctx context.Context, sub models.Subscription) error {
	query := `
INSERT INTO subscriptions (user_id, plan_tier, monthly_credits, remaining_credits, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`
	if r.dialect == database.MySQL {
		query = `
INSERT IGNORE INTO subscriptions (user_id, plan_tier, monthly_credits, remaining_credits, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`
	}
	ts := now()
	if _, err := exec(ctx, r.db, query, sub.UserID, sub.PlanTier, sub.MonthlyCredits, sub.RemainingCredits, ts, ts); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// Consume debits cost credits only when the balance covers it. It reports
// false when no row was changed.
func (r *SubscriptionRepository) Consume(ctx context.Context, userID string, cost int) (bool, error) {
	const query = `
UPDATE subscriptions SET remaining_credits = remaining_credits - ?, updated_at = ?
WHERE user_id = ? AND remaining_credits >= ?`
	res, err := exec(ctx, r.db, query, cost, now(), userID, cost)
	if err != nil {
		return false, fmt.Errorf("consume credits: %w", err)
	}
	return affected(res)
}

func (r *SubscriptionRepository) Add(ctx context.Context, userID string, amount int) (bool, error) {
	const query = `UPDATE subscriptions SET remaining_credits = remaining_credits + ?, updated_at = ? WHERE user_id = ?`
	res, err := exec(ctx, r.db, query, amount, now(), userID)
	if err != nil {
		return false, fmt.Errorf("add credits: %w", err)
	}
	return affected(res)
}

// Refill sets the balance to target if it still equals observed.
func (r *SubscriptionRepository) Refill(ctx context.Context, userID string, observed, target int) (bool, error) {
	const query = `
UPDATE subscriptions SET remaining_credits = ?, updated_at = ?
WHERE user_id = ? AND remaining_credits = ?`
	res, err := exec(ctx, r.db, query, target, now(), userID, observed)
	if err != nil {
		return false, fmt.Errorf("refill credits: %w", err)
	}
	return affected(res)
}

func (r *SubscriptionRepository) SetPlan(ctx context.Context, userID string, tier models.PlanTier) (bool, error) {
	const query = `UPDATE subscriptions SET plan_tier = ?, monthly_credits = ?, updated_at = ? WHERE user_id = ?`
	res, err := exec(ctx, r.db, query, tier, tier.MonthlyCredits(), now(), userID)
	if err != nil {
		return false, fmt.Errorf("set plan: %w", err)
	}
	return affected(res)
}

// ListBelowAllotment returns subscriptions whose balance is under their monthly allotment.
func (r *SubscriptionRepository) ListBelowAllotment(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE remaining_credits < monthly_credits ORDER BY user_id`
	if err := sqlx.SelectContext(ctx, r.db, &subs, query); err != nil {
		return nil, fmt.Errorf("list subscriptions below allotment: %w", err)
	}
	return subs, nil
}
