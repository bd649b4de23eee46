package service

import (
	"context"
	"testing"

	"github.com/digkill/designforge/internal/testsupport"
)

func TestPromoApply(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.promos.Create(ctx, " launch ", 2, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := e.promos.Create(ctx, "LAUNCH", 5, 10)
	wantCode(t, err, CodeValidation)

	first := testsupport.SeedUser(t, e.store, 5)
	bonus, balance, err := e.promos.Apply(ctx, first, "launch")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if bonus != 100 || balance != 105 {
		t.Fatalf("bonus = %d, balance = %d", bonus, balance)
	}
	history, _ := e.ledger.History(ctx, first, 5)
	if len(history) != 1 || history[0].Delta != 100 || history[0].Metadata["code"] != "LAUNCH" {
		t.Fatalf("history = %+v", history)
	}

	_, _, err = e.promos.Apply(ctx, first, "LAUNCH")
	wantCode(t, err, CodeValidation)

	second := testsupport.SeedUser(t, e.store, -1)
	if _, balance, err := e.promos.Apply(ctx, second, "LAUNCH"); err != nil || balance != 150 {
		t.Fatalf("second Apply = %d, %v", balance, err)
	}

	third := testsupport.SeedUser(t, e.store, 0)
	_, _, err = e.promos.Apply(ctx, third, "LAUNCH")
	wantCode(t, err, CodeValidation)
	if got := testsupport.Balance(t, e.store, third); got != 0 {
		t.Fatalf("exhausted code changed balance to %d", got)
	}

	_, _, err = e.promos.Apply(ctx, third, "NOPE")
	wantCode(t, err, CodeValidation)
}

func TestPromoAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	promo, err := e.promos.Create(ctx, "spring", 10, 25)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updated, err := e.promos.UpdateLimits(ctx, promo.ID, 20, 0)
	if err != nil || updated.MaxUses != 20 || updated.BonusCredits != 25 {
		t.Fatalf("UpdateLimits = %+v, %v", updated, err)
	}

	userID := testsupport.SeedUser(t, e.store, 0)
	if _, _, err := e.promos.Apply(ctx, userID, "SPRING"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := e.promos.Delete(ctx, promo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ := e.promos.List(ctx)
	if len(list) != 0 {
		t.Fatalf("promos = %+v", list)
	}
	wantCode(t, e.promos.Delete(ctx, promo.ID), CodeNotFound)
}
