package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

type PromoService struct {
	store        *repository.Store
	ledger       *Ledger
	defaultBonus int
}

func NewPromoService(store *repository.Store, ledger *Ledger, defaultBonus int) *PromoService {
	return &PromoService{store: store, ledger: ledger, defaultBonus: defaultBonus}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply redeems code for userID and returns the bonus granted and the new balance.
// Each user may redeem a code once; exhausted codes are rejected.
func (s *PromoService) Apply(ctx context.Context, userID, code string) (bonus int, balance int, err error) {
	code = normalizeCode(code)
	if code == "" {
		return 0, 0, validationf("Enter a promo code.")
	}

	err = s.store.Transact(ctx, func(tx *repository.Store) error {
		promo, err := tx.Promos.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if promo == nil {
			return validationf("Promo code %s is not valid.", code)
		}

		redeemed, err := tx.Promos.HasUserRedeemed(ctx, userID, promo.ID)
		if err != nil {
			return err
		}
		if redeemed {
			return validationf("You have already redeemed %s.", code)
		}

		ok, err := tx.Promos.IncrementUsage(ctx, promo.ID)
		if err != nil {
			return err
		}
		if !ok {
			return validationf("Promo code %s has been fully used.", code)
		}
		if err := tx.Promos.RecordRedemption(ctx, uuid.NewString(), userID, promo.ID); err != nil {
			return err
		}

		bonus = promo.BonusCredits
		balance, err = s.ledger.credit(ctx, tx, userID, bonus, "Promo code "+code, models.JSONMap{"source": "promo", "code": code})
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return bonus, balance, nil
}

// Create stores a new code. A non-positive bonus uses the configured default.
func (s *PromoService) Create(ctx context.Context, code string, maxUses, bonus int) (*models.PromoCode, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, validationf("Promo code is required.")
	}
	if maxUses <= 0 {
		return nil, validationf("Max uses must be positive.")
	}
	if bonus <= 0 {
		bonus = s.defaultBonus
	}

	existing, err := s.store.Promos.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, validationf("Promo code %s already exists.", code)
	}

	promo := &models.PromoCode{ID: uuid.NewString(), Code: code, MaxUses: maxUses, BonusCredits: bonus}
	if err := s.store.Promos.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return promo, nil
}

func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.store.Promos.List(ctx)
}

// UpdateLimits changes the usage cap and bonus of an existing code.
func (s *PromoService) UpdateLimits(ctx context.Context, id string, maxUses, bonus int) (*models.PromoCode, error) {
	promo, err := s.store.Promos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, notFound("Promo code")
	}
	if maxUses > 0 {
		promo.MaxUses = maxUses
	}
	if bonus > 0 {
		promo.BonusCredits = bonus
	}
	if err := s.store.Promos.Update(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoService) Delete(ctx context.Context, id string) error {
	return s.store.Transact(ctx, func(tx *repository.Store) error {
		promo, err := tx.Promos.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if promo == nil {
			return notFound("Promo code")
		}
		return tx.Promos.Delete(ctx, id)
	})
}
