package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type MockupRepository struct {
	db sqlx.ExtContext
}

const mockupColumns = `id, user_id, design_id, garment_type, garment_color, status, canvas_state, preview_url, print_ready_url, dpi, created_at, updated_at`

func (r *MockupRepository) Create(ctx context.Context, m *models.Mockup) error {
	const query = `
INSERT INTO mockups (id, user_id, design_id, garment_type, garment_color, status, canvas_state, preview_url, print_ready_url, dpi, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	if _, err := exec(ctx, r.db, query, m.ID, m.UserID, m.DesignID, m.GarmentType, m.GarmentColor, m.Status, m.CanvasState, m.PreviewURL, m.PrintReadyURL, m.DPI, ts, ts); err != nil {
		return fmt.Errorf("insert mockup: %w", err)
	}
	m.CreatedAt = ts
	m.UpdatedAt = ts
	return nil
}

func (r *MockupRepository) GetByID(ctx context.Context, id string) (*models.Mockup, error) {
	var m models.Mockup
	ok, err := getOne(ctx, r.db, &m, `SELECT `+mockupColumns+` FROM mockups WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get mockup: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Update persists the editable columns of m.
func (r *MockupRepository) Update(ctx context.Context, m *models.Mockup) error {
	const query = `
UPDATE mockups
SET garment_type = ?, garment_color = ?, status = ?, canvas_state = ?, preview_url = ?, print_ready_url = ?, dpi = ?, updated_at = ?
WHERE id = ?`
	m.UpdatedAt = now()
	if _, err := exec(ctx, r.db, query, m.GarmentType, m.GarmentColor, m.Status, m.CanvasState, m.PreviewURL, m.PrintReadyURL, m.DPI, m.UpdatedAt, m.ID); err != nil {
		return fmt.Errorf("update mockup: %w", err)
	}
	return nil
}

type ProductRepository struct {
	db sqlx.ExtContext
}

const productColumns = `id, user_id, design_id, title, slug, price, currency, status, images, created_at, updated_at`

func (r *ProductRepository) Create(ctx context.Context, p *models.StoreProduct) error {
	const query = `
INSERT INTO store_products (id, user_id, design_id, title, slug, price, currency, status, images, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	if _, err := exec(ctx, r.db, query, p.ID, p.UserID, p.DesignID, p.Title, p.Slug, p.Price, p.Currency, p.Status, p.Images, ts, ts); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.CreatedAt = ts
	p.UpdatedAt = ts
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.StoreProduct, error) {
	var p models.StoreProduct
	ok, err := getOne(ctx, r.db, &p, `SELECT `+productColumns+` FROM store_products WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProductRepository) SlugExists(ctx context.Context, userID, slug string) (bool, error) {
	var one int
	ok, err := getOne(ctx, r.db, &one, `SELECT 1 FROM store_products WHERE user_id = ? AND slug = ?`, userID, slug)
	if err != nil {
		return false, fmt.Errorf("check product slug: %w", err)
	}
	return ok, nil
}

// UpdateStatus moves the product from one status to another and reports
// false when the stored status no longer equals from.
func (r *ProductRepository) UpdateStatus(ctx context.Context, id string, from, to models.ProductStatus) (bool, error) {
	const query = `UPDATE store_products SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := exec(ctx, r.db, query, to, now(), id, from)
	if err != nil {
		return false, fmt.Errorf("update product status: %w", err)
	}
	return affected(res)
}

type OrderRepository struct {
	db sqlx.ExtContext
}

const orderColumns = `id, product_id, buyer_id, seller_id, quantity, total, currency, status, payment_status, buyer_email, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	const query = `
INSERT INTO orders (id, product_id, buyer_id, seller_id, quantity, total, currency, status, payment_status, buyer_email, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	if _, err := exec(ctx, r.db, query, o.ID, o.ProductID, o.BuyerID, o.SellerID, o.Quantity, o.Total, o.Currency, o.Status, o.PaymentStatus, o.BuyerEmail, ts, ts); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.CreatedAt = ts
	o.UpdatedAt = ts
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	ok, err := getOne(ctx, r.db, &o, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.Rebind(`SELECT ` + orderColumns + ` FROM orders WHERE seller_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &orders, query, sellerID, limit); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus is a compare-and-swap on the observed order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, observed, status models.OrderStatus, payment models.PaymentStatus) (bool, error) {
	const query = `
UPDATE orders SET status = ?, payment_status = ?, updated_at = ?
WHERE id = ? AND status = ?`
	res, err := exec(ctx, r.db, query, status, payment, now(), id, observed)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return affected(res)
}
