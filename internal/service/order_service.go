package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/metrics"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

const maxOrderQuantity = 100

type TransitionResult struct {
	OrderID       string               `json:"orderId"`
	OrderStatus   models.OrderStatus   `json:"orderStatus"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	StatusLabel   string               `json:"statusLabel"`
	Message       string               `json:"message"`
}

type CheckoutRequest struct {
	BuyerID   string `json:"-"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Email     string `json:"email"`
}

type OrderService struct {
	store  *repository.Store
	events events.Publisher
	log    *slog.Logger
}

func NewOrderService(store *repository.Store, publisher events.Publisher, log *slog.Logger) *OrderService {
	return &OrderService{store: store, events: publisher, log: log}
}

// Transition applies a seller action to an order. The guard and the write run
// in one transaction and the write only lands if the status is unchanged.
func (s *OrderService) Transition(ctx context.Context, sellerID, orderID, rawAction string) (*TransitionResult, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "Sign in to manage orders."}
	}
	action, ok := models.ParseOrderAction(strings.ToUpper(strings.TrimSpace(rawAction)))
	if !ok {
		return nil, validationf("Unknown order action %q.", rawAction)
	}

	var (
		result *TransitionResult
		from   models.OrderStatus
	)
	err := s.store.Transact(ctx, func(tx *repository.Store) error {
		order, err := tx.Orders.GetByID(ctx, strings.TrimSpace(orderID))
		if err != nil {
			return err
		}
		if order == nil || order.SellerID != sellerID {
			return notFound("Order")
		}

		next, payment, ok := action.Next(order.Status, order.PaymentStatus)
		if !ok {
			return invalidTransition(fmt.Sprintf("Cannot apply %s to an order that is %s.", action, strings.ToLower(order.Status.Label())))
		}
		swapped, err := tx.Orders.UpdateStatus(ctx, order.ID, order.Status, next, payment)
		if err != nil {
			return err
		}
		if !swapped {
			return invalidTransition("The order changed while you were updating it. Refresh and try again.")
		}

		from = order.Status
		result = &TransitionResult{
			OrderID:       order.ID,
			OrderStatus:   next,
			PaymentStatus: payment,
			StatusLabel:   next.Label(),
			Message:       transitionMessage(action, order.PaymentStatus, payment),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(result.OrderStatus)).Inc()
	if s.events != nil {
		payload := events.StatusPayload{ID: result.OrderID, UserID: sellerID, From: string(from), To: string(result.OrderStatus)}
		if err := s.events.Publish(ctx, events.OrderStatusChange, payload); err != nil {
			s.log.Warn("publish event failed", "routing_key", events.OrderStatusChange, "err", err)
		}
	}
	return result, nil
}

func transitionMessage(action models.OrderAction, before, after models.PaymentStatus) string {
	switch action {
	case models.ActionMarkShipped:
		return "Order marked as shipped."
	case models.ActionMarkDelivered:
		return "Order marked as delivered."
	default:
		if before != after {
			return "Order canceled and payment refunded."
		}
		return "Order canceled."
	}
}

// Checkout records a paid order for an active product. Payment capture happens elsewhere.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if req.Quantity < 1 || req.Quantity > maxOrderQuantity {
		return nil, validationf("Quantity must be between 1 and %d.", maxOrderQuantity)
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, validationf("%q is not a valid email address.", email)
		}
	}
	if req.BuyerID == "" && email == "" {
		return nil, validationf("Guest checkout needs an email address.")
	}

	var order *models.Order
	err := s.store.Transact(ctx, func(tx *repository.Store) error {
		product, err := tx.Products.GetByID(ctx, strings.TrimSpace(req.ProductID))
		if err != nil {
			return err
		}
		if product == nil || product.Status != models.ProductActive {
			return notFound("Product")
		}

		order = &models.Order{
			ID:            uuid.NewString(),
			ProductID:     product.ID,
			SellerID:      product.UserID,
			Quantity:      req.Quantity,
			Total:         product.Price.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2),
			Currency:      product.Currency,
			Status:        models.OrderPaid,
			PaymentStatus: models.PaymentPaid,
		}
		if req.BuyerID != "" {
			buyer := req.BuyerID
			order.BuyerID = &buyer
		}
		if email != "" {
			order.BuyerEmail = &email
		}
		return tx.Orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListForSeller returns the seller's newest orders.
func (s *OrderService) ListForSeller(ctx context.Context, sellerID string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 50
	}
	return s.store.Orders.ListBySeller(ctx, sellerID, limit)
}
