package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/digkill/designforge/internal/database"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

// MustOpenStore opens a migrated SQLite-backed store in a temp dir and registers cleanup.
func MustOpenStore(t testing.TB) *repository.Store {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "designforge.db"))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("database.Migrate: %v", err)
	}
	return repository.NewStore(db)
}

// SeedUser creates a user. When credits is non-negative a FREE subscription
// holding that many credits is created as well.
func SeedUser(t testing.TB, store *repository.Store, credits int) string {
	t.Helper()

	ctx := context.Background()
	id := uuid.NewString()
	user := &models.User{ID: id, DisplayName: fmt.Sprintf("user-%s", id[:8])}
	if err := store.Users.Create(ctx, user); err != nil {
		t.Fatalf("Users.Create: %v", err)
	}
	if credits >= 0 {
		sub := models.Subscription{
			UserID:           id,
			PlanTier:         models.PlanFree,
			MonthlyCredits:   models.PlanFree.MonthlyCredits(),
			RemainingCredits: credits,
		}
		if err := store.Subscriptions.CreateIfMissing(ctx, sub); err != nil {
			t.Fatalf("Subscriptions.CreateIfMissing: %v", err)
		}
	}
	return id
}

// Balance returns the user's remaining credits or fails the test.
func Balance(t testing.TB, store *repository.Store, userID string) int {
	t.Helper()

	sub, err := store.Subscriptions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Subscriptions.Get: %v", err)
	}
	if sub == nil {
		t.Fatalf("no subscription for %s", userID)
	}
	return sub.RemainingCredits
}

// SeedDesign stores a GENERATED design with one completed generation and returns both.
func SeedDesign(t testing.TB, store *repository.Store, userID, title, imageURL string) (*models.Design, *models.Generation) {
	t.Helper()

	ctx := context.Background()
	design := &models.Design{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		Prompt:       "a bold illustration of " + title,
		StylePreset:  models.StyleNeon,
		Colors:       models.StringList{"#ff00aa"},
		ImageURL:     imageURL,
		ThumbnailURL: imageURL,
		Status:       models.DesignGenerated,
		Metadata:     models.JSONMap{},
	}
	if err := store.Designs.Create(ctx, design); err != nil {
		t.Fatalf("Designs.Create: %v", err)
	}
	gen := &models.Generation{
		ID:             uuid.NewString(),
		DesignID:       design.ID,
		UserID:         userID,
		Prompt:         design.Prompt,
		VariationCount: 1,
		Outputs:        models.StringList{imageURL},
		CostCredits:    1,
		Status:         models.GenerationCompleted,
		Metadata:       models.JSONMap{},
	}
	if err := store.Generations.Create(ctx, gen); err != nil {
		t.Fatalf("Generations.Create: %v", err)
	}
	return design, gen
}
