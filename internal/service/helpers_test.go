package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digkill/designforge/internal/imagegen"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
	"github.com/digkill/designforge/internal/testsupport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedEvent struct {
	key  string
	body any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{key: key, body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.key)
	}
	return out
}

type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(ctx context.Context, req imagegen.Request) ([]string, error) {
	return nil, errors.New("provider unavailable")
}

type env struct {
	store      *repository.Store
	ledger     *Ledger
	publisher  *recordingPublisher
	generation *GenerationService
	variations *VariationService
	mockups    *MockupService
	orders     *OrderService
	products   *ProductService
	promos     *PromoService
	users      *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	log := discardLogger()
	pub := &recordingPublisher{}
	ledger := NewLedger(store, log, 50)
	return &env{
		store:      store,
		ledger:     ledger,
		publisher:  pub,
		generation: NewGenerationService(store, ledger, imagegen.NewStub(), pub, log),
		variations: NewVariationService(store, ledger, imagegen.NewURLTransformer(), pub, log, ProductDefaults{
			Price:    decimal.RequireFromString("29.99"),
			Currency: "USD",
		}),
		mockups:  NewMockupService(store, nil, pub, log),
		orders:   NewOrderService(store, pub, log),
		products: NewProductService(store, pub, log),
		promos:   NewPromoService(store, ledger, 100),
		users:    NewUserService(store),
	}
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("code = %s, want %s (err: %v)", got, code, err)
	}
}

func usageCount(t *testing.T, store *repository.Store, userID string) int {
	t.Helper()
	n, err := store.Usage.CountByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("Usage.CountByUser: %v", err)
	}
	return n
}

// seedProduct stores a product for the design's owner in the given status.
func seedProduct(t *testing.T, store *repository.Store, design *models.Design, status models.ProductStatus, price string) *models.StoreProduct {
	t.Helper()
	p := &models.StoreProduct{
		ID:       uuid.NewString(),
		UserID:   design.UserID,
		DesignID: design.ID,
		Title:    design.Title,
		Slug:     "p-" + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Currency: "USD",
		Status:   status,
		Images:   models.StringList{design.ImageURL},
	}
	if err := store.Products.Create(context.Background(), p); err != nil {
		t.Fatalf("Products.Create: %v", err)
	}
	return p
}
