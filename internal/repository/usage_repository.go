package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type UsageRepository struct {
	db sqlx.ExtContext
}

func (r *UsageRepository) Insert(ctx context.Context, entry *models.CreditUsageEntry) error {
	const query = `
INSERT INTO credit_usage (id, user_id, generation_id, delta, balance_after, description, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	entry.CreatedAt = now()
	if _, err := exec(ctx, r.db, query, entry.ID, entry.UserID, entry.GenerationID, entry.Delta, entry.BalanceAfter, entry.Description, entry.Metadata, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert credit usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditUsageEntry, error) {
	const query = `
SELECT id, user_id, generation_id, delta, balance_after, description, metadata, created_at
FROM credit_usage WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	var entries []models.CreditUsageEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, r.db.Rebind(query), userID, limit); err != nil {
		return nil, fmt.Errorf("list credit usage: %w", err)
	}
	return entries, nil
}

func (r *UsageRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if _, err := getOne(ctx, r.db, &n, `SELECT COUNT(*) FROM credit_usage WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count credit usage: %w", err)
	}
	return n, nil
}
