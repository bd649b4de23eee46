package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
	"github.com/digkill/designforge/internal/testsupport"
)

func TestTransactRollsBackOnError(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 10)

	boom := errors.New("boom")
	err := store.Transact(ctx, func(tx *repository.Store) error {
		ok, err := tx.Subscriptions.Consume(ctx, userID, 4)
		if err != nil || !ok {
			t.Fatalf("Consume = %v, %v", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact error = %v, want boom", err)
	}
	if got := testsupport.Balance(t, store, userID); got != 10 {
		t.Fatalf("balance = %d, want 10 after rollback", got)
	}
}

func TestSubscriptionConsumeIsConditional(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 3)

	ok, err := store.Subscriptions.Consume(ctx, userID, 5)
	if err != nil || ok {
		t.Fatalf("Consume over balance = %v, %v; want false, nil", ok, err)
	}
	ok, err = store.Subscriptions.Consume(ctx, userID, 3)
	if err != nil || !ok {
		t.Fatalf("Consume exact balance = %v, %v; want true, nil", ok, err)
	}
	if got := testsupport.Balance(t, store, userID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestCreateIfMissingKeepsExisting(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 7)

	err := store.Subscriptions.CreateIfMissing(ctx, models.Subscription{
		UserID: userID, PlanTier: models.PlanFree, MonthlyCredits: 50, RemainingCredits: 50,
	})
	if err != nil {
		t.Fatalf("CreateIfMissing: %v", err)
	}
	if got := testsupport.Balance(t, store, userID); got != 7 {
		t.Fatalf("balance = %d, want 7", got)
	}
}

func TestDesignUpdateImageChecksVersion(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 0)
	design, _ := testsupport.SeedDesign(t, store, userID, "Neon Tiger", "https://img.test/a.png")

	ok, err := store.Designs.UpdateImage(ctx, design.ID, "https://img.test/b.png", "https://img.test/b.png", models.JSONMap{"k": "v"}, design.Version+1)
	if err != nil || ok {
		t.Fatalf("stale version update = %v, %v; want false, nil", ok, err)
	}
	ok, err = store.Designs.UpdateImage(ctx, design.ID, "https://img.test/b.png", "https://img.test/b.png", models.JSONMap{"k": "v"}, design.Version)
	if err != nil || !ok {
		t.Fatalf("current version update = %v, %v; want true, nil", ok, err)
	}

	got, err := store.Designs.GetByID(ctx, design.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Version != 2 || got.ImageURL != "https://img.test/b.png" || got.Metadata["k"] != "v" {
		t.Fatalf("unexpected design after update: %+v", got)
	}
}

func TestDesignUpdateStatusCompareAndSwap(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 0)
	design, _ := testsupport.SeedDesign(t, store, userID, "Neon Tiger", "https://img.test/a.png")

	ok, err := store.Designs.UpdateStatus(ctx, design.ID, models.DesignDraft, models.DesignPublished)
	if err != nil || ok {
		t.Fatalf("stale status update = %v, %v; want false, nil", ok, err)
	}
	ok, err = store.Designs.UpdateStatus(ctx, design.ID, models.DesignGenerated, models.DesignArchived)
	if err != nil || !ok {
		t.Fatalf("status update = %v, %v; want true, nil", ok, err)
	}

	ok, err = store.Designs.UpdateImage(ctx, design.ID, "https://img.test/b.png", "https://img.test/b.png", nil, design.Version)
	if err != nil || ok {
		t.Fatalf("image update on archived design = %v, %v; want false, nil", ok, err)
	}
	got, _ := store.Designs.GetByID(ctx, design.ID)
	if got.Status != models.DesignArchived || got.ImageURL != "https://img.test/a.png" {
		t.Fatalf("unexpected design %+v", got)
	}
}

func TestGetForUpdateReadsSubscription(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	userID := testsupport.SeedUser(t, store, 9)

	err := store.Transact(ctx, func(tx *repository.Store) error {
		sub, err := tx.Subscriptions.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if sub == nil || sub.RemainingCredits != 9 {
			t.Fatalf("GetForUpdate = %+v", sub)
		}
		missing, err := tx.Subscriptions.GetForUpdate(ctx, "nobody")
		if err != nil || missing != nil {
			t.Fatalf("GetForUpdate(nobody) = %+v, %v", missing, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
}

func TestGetByIDReturnsNilWhenMissing(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	design, err := store.Designs.GetByID(ctx, "missing")
	if err != nil || design != nil {
		t.Fatalf("GetByID(missing) = %v, %v; want nil, nil", design, err)
	}
	order, err := store.Orders.GetByID(ctx, "missing")
	if err != nil || order != nil {
		t.Fatalf("Orders.GetByID(missing) = %v, %v; want nil, nil", order, err)
	}
}

func TestOrderUpdateStatusCompareAndSwap(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	sellerID := testsupport.SeedUser(t, store, 0)
	design, _ := testsupport.SeedDesign(t, store, sellerID, "Tee", "https://img.test/t.png")

	product := &models.StoreProduct{
		ID: uuid.NewString(), UserID: sellerID, DesignID: design.ID, Title: "Tee", Slug: "tee",
		Price: decimal.RequireFromString("19.50"), Currency: "USD", Status: models.ProductActive,
		Images: models.StringList{design.ImageURL},
	}
	if err := store.Products.Create(ctx, product); err != nil {
		t.Fatalf("Products.Create: %v", err)
	}
	exists, err := store.Products.SlugExists(ctx, sellerID, "tee")
	if err != nil || !exists {
		t.Fatalf("SlugExists = %v, %v", exists, err)
	}

	order := &models.Order{
		ID: uuid.NewString(), ProductID: product.ID, SellerID: sellerID, Quantity: 2,
		Total: product.Price.Mul(decimal.NewFromInt(2)), Currency: "USD",
		Status: models.OrderPaid, PaymentStatus: models.PaymentPaid,
	}
	if err := store.Orders.Create(ctx, order); err != nil {
		t.Fatalf("Orders.Create: %v", err)
	}

	ok, err := store.Orders.UpdateStatus(ctx, order.ID, models.OrderPaid, models.OrderShipped, models.PaymentPaid)
	if err != nil || !ok {
		t.Fatalf("first swap = %v, %v", ok, err)
	}
	ok, err = store.Orders.UpdateStatus(ctx, order.ID, models.OrderPaid, models.OrderCanceled, models.PaymentRefunded)
	if err != nil || ok {
		t.Fatalf("stale swap = %v, %v; want false, nil", ok, err)
	}

	got, err := store.Orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.OrderShipped || !got.Total.Equal(decimal.RequireFromString("39")) {
		t.Fatalf("unexpected order: status=%s total=%s", got.Status, got.Total)
	}
}
