package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type GenerationRepository struct {
	db sqlx.ExtContext
}

const generationColumns = `id, design_id, user_id, prompt, variation_count, outputs, cost_credits, status, metadata, created_at, completed_at`

func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	const query = `
INSERT INTO generations (id, design_id, user_id, prompt, variation_count, outputs, cost_credits, status, metadata, created_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	g.CreatedAt = now()
	if _, err := exec(ctx, r.db, query, g.ID, g.DesignID, g.UserID, g.Prompt, g.VariationCount, g.Outputs, g.CostCredits, g.Status, g.Metadata, g.CreatedAt, g.CompletedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (r *GenerationRepository) GetByID(ctx context.Context, id string) (*models.Generation, error) {
	var g models.Generation
	ok, err := getOne(ctx, r.db, &g, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *GenerationRepository) ListByDesign(ctx context.Context, designID string) ([]models.Generation, error) {
	var gens []models.Generation
	query := r.db.Rebind(`SELECT ` + generationColumns + ` FROM generations WHERE design_id = ? ORDER BY created_at`)
	if err := sqlx.SelectContext(ctx, r.db, &gens, query, designID); err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return gens, nil
}

func (r *GenerationRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if _, err := getOne(ctx, r.db, &n, `SELECT COUNT(*) FROM generations WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return n, nil
}

// CountForDay counts generations the user started on the given UTC day.
func (r *GenerationRepository) CountForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	const query = `
SELECT COUNT(*) FROM generations
WHERE user_id = ? AND created_at >= ? AND created_at < ?`
	var count int
	if _, err := getOne(ctx, r.db, &count, query, userID, start, end); err != nil {
		return 0, fmt.Errorf("count daily generations: %w", err)
	}
	return count, nil
}
