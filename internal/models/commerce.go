package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type transitions[S comparable] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	return slices.Contains(t[from], to)
}

type MockupStatus string

const (
	MockupDraft    MockupStatus = "DRAFT"
	MockupReady    MockupStatus = "READY"
	MockupExported MockupStatus = "EXPORTED"
)

var mockupTransitions = transitions[MockupStatus]{
	MockupDraft:    {MockupReady},
	MockupReady:    {MockupReady, MockupExported},
	MockupExported: {MockupReady, MockupExported},
}

func (s MockupStatus) CanTransitionTo(next MockupStatus) bool {
	return mockupTransitions.allows(s, next)
}

type Mockup struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"userId"`
	DesignID      string       `db:"design_id" json:"designId"`
	GarmentType   string       `db:"garment_type" json:"garmentType"`
	GarmentColor  string       `db:"garment_color" json:"garmentColor"`
	Status        MockupStatus `db:"status" json:"status"`
	CanvasState   string       `db:"canvas_state" json:"-"`
	PreviewURL    string       `db:"preview_url" json:"previewUrl"`
	PrintReadyURL string       `db:"print_ready_url" json:"printReadyUrl,omitempty"`
	DPI           int          `db:"dpi" json:"dpi"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

type ProductStatus string

const (
	ProductDraft    ProductStatus = "DRAFT"
	ProductActive   ProductStatus = "ACTIVE"
	ProductArchived ProductStatus = "ARCHIVED"
)

var productTransitions = transitions[ProductStatus]{
	ProductDraft:    {ProductActive, ProductArchived},
	ProductActive:   {ProductArchived},
	ProductArchived: {ProductActive},
}

func (s ProductStatus) CanTransitionTo(next ProductStatus) bool {
	return productTransitions.allows(s, next)
}

type StoreProduct struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"userId"`
	DesignID  string          `db:"design_id" json:"designId"`
	Title     string          `db:"title" json:"title"`
	Slug      string          `db:"slug" json:"slug"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Currency  string          `db:"currency" json:"currency"`
	Status    ProductStatus   `db:"status" json:"status"`
	Images    StringList      `db:"images" json:"images"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type OrderStatus string

const (
	OrderPending      OrderStatus = "PENDING"
	OrderPaid         OrderStatus = "PAID"
	OrderFulfillment  OrderStatus = "FULFILLMENT"
	OrderInProduction OrderStatus = "IN_PRODUCTION"
	OrderShipped      OrderStatus = "SHIPPED"
	OrderDelivered    OrderStatus = "DELIVERED"
	OrderCanceled     OrderStatus = "CANCELED"
	OrderRefunded     OrderStatus = "REFUNDED"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderPending:      "Pending",
	OrderPaid:         "Paid",
	OrderFulfillment:  "In fulfillment",
	OrderInProduction: "In production",
	OrderShipped:      "Shipped",
	OrderDelivered:    "Delivered",
	OrderCanceled:     "Canceled",
	OrderRefunded:     "Refunded",
}

// Label is the human-readable status shown to sellers.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type OrderAction string

const (
	ActionMarkShipped   OrderAction = "MARK_SHIPPED"
	ActionMarkDelivered OrderAction = "MARK_DELIVERED"
	ActionCancelOrder   OrderAction = "CANCEL_ORDER"
)

type orderRule struct {
	from []OrderStatus
	to   OrderStatus
}

var orderRules = map[OrderAction]orderRule{
	ActionMarkShipped: {
		from: []OrderStatus{OrderPending, OrderPaid, OrderFulfillment, OrderInProduction},
		to:   OrderShipped,
	},
	ActionMarkDelivered: {
		from: []OrderStatus{OrderShipped},
		to:   OrderDelivered,
	},
	ActionCancelOrder: {
		from: []OrderStatus{OrderPending, OrderPaid, OrderFulfillment, OrderInProduction, OrderShipped},
		to:   OrderCanceled,
	},
}

// ParseOrderAction reports whether raw names a known seller action.
func ParseOrderAction(raw string) (OrderAction, bool) {
	a := OrderAction(raw)
	_, ok := orderRules[a]
	return a, ok
}

// Next returns the order and payment status that applying a to the given
// state produces, or false when the action is not allowed from that state.
func (a OrderAction) Next(status OrderStatus, payment PaymentStatus) (OrderStatus, PaymentStatus, bool) {
	rule, ok := orderRules[a]
	if !ok || !slices.Contains(rule.from, status) {
		return status, payment, false
	}
	if a == ActionCancelOrder && payment == PaymentPaid {
		payment = PaymentRefunded
	}
	return rule.to, payment, true
}

type Order struct {
	ID            string          `db:"id" json:"id"`
	ProductID     string          `db:"product_id" json:"productId"`
	BuyerID       *string         `db:"buyer_id" json:"buyerId,omitempty"`
	SellerID      string          `db:"seller_id" json:"sellerId"`
	Quantity      int             `db:"quantity" json:"quantity"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Currency      string          `db:"currency" json:"currency"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"paymentStatus"`
	BuyerEmail    *string         `db:"buyer_email" json:"buyerEmail,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}
