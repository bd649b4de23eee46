package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type PromoRepository struct {
	db sqlx.ExtContext
}

const promoColumns = `id, code, max_uses, uses, bonus_credits, created_at`

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	ok, err := getOne(ctx, r.db, &promo, `SELECT `+promoColumns+` FROM promo_codes WHERE code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("get promo: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &promo, nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id string) (*models.PromoCode, error) {
	var promo models.PromoCode
	ok, err := getOne(ctx, r.db, &promo, `SELECT `+promoColumns+` FROM promo_codes WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get promo by id: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &promo, nil
}

func (r *PromoRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	if err := sqlx.SelectContext(ctx, r.db, &promos, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	return promos, nil
}

func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) error {
	const query = `
INSERT INTO promo_codes (id, code, max_uses, uses, bonus_credits, created_at)
VALUES (?, ?, ?, 0, ?, ?)`
	promo.CreatedAt = now()
	if _, err := exec(ctx, r.db, query, promo.ID, promo.Code, promo.MaxUses, promo.BonusCredits, promo.CreatedAt); err != nil {
		return fmt.Errorf("create promo: %w", err)
	}
	return nil
}

func (r *PromoRepository) Update(ctx context.Context, promo *models.PromoCode) error {
	const query = `
UPDATE promo_codes
SET code = ?, max_uses = ?, uses = ?, bonus_credits = ?
WHERE id = ?`
	if _, err := exec(ctx, r.db, query, promo.Code, promo.MaxUses, promo.Uses, promo.BonusCredits, promo.ID); err != nil {
		return fmt.Errorf("update promo: %w", err)
	}
	return nil
}

func (r *PromoRepository) Delete(ctx context.Context, id string) error {
	if _, err := exec(ctx, r.db, `DELETE FROM promo_redemptions WHERE promo_code_id = ?`, id); err != nil {
		return fmt.Errorf("delete promo redemptions: %w", err)
	}
	if _, err := exec(ctx, r.db, `DELETE FROM promo_codes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return nil
}

// IncrementUsage counts one use and reports false once the code is exhausted.
func (r *PromoRepository) IncrementUsage(ctx context.Context, promoID string) (bool, error) {
	const query = `
UPDATE promo_codes SET uses = uses + 1
WHERE id = ? AND uses < max_uses`
	res, err := exec(ctx, r.db, query, promoID)
	if err != nil {
		return false, fmt.Errorf("increment promo usage: %w", err)
	}
	return affected(res)
}

func (r *PromoRepository) HasUserRedeemed(ctx context.Context, userID, promoID string) (bool, error) {
	var one int
	ok, err := getOne(ctx, r.db, &one, `SELECT 1 FROM promo_redemptions WHERE user_id = ? AND promo_code_id = ?`, userID, promoID)
	if err != nil {
		return false, fmt.Errorf("check promo redemption: %w", err)
	}
	return ok, nil
}

func (r *PromoRepository) RecordRedemption(ctx context.Context, id, userID, promoID string) error {
	const query = `
INSERT INTO promo_redemptions (id, user_id, promo_code_id, created_at)
VALUES (?, ?, ?, ?)`
	if _, err := exec(ctx, r.db, query, id, userID, promoID, now()); err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}
	return nil
}
