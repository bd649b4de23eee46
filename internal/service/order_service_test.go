package service

import (
	"context"
	"testing"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/testsupport"
)

func checkout(t *testing.T, e *env) (sellerID string, order *models.Order) {
	t.Helper()
	sellerID = testsupport.SeedUser(t, e.store, 0)
	design, _ := testsupport.SeedDesign(t, e.store, sellerID, "Neon Tiger", sourceImage)
	product := seedProduct(t, e.store, design, models.ProductActive, "19.99")

	order, err := e.orders.Checkout(context.Background(), CheckoutRequest{ProductID: product.ID, Quantity: 3, Email: "buyer@example.com"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	return sellerID, order
}

func TestCheckoutRecordsPaidOrder(t *testing.T) {
	e := newEnv(t)
	sellerID, order := checkout(t, e)

	if order.Status != models.OrderPaid || order.PaymentStatus != models.PaymentPaid || order.SellerID != sellerID {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.Total.String() != "59.97" || order.BuyerID != nil || order.BuyerEmail == nil {
		t.Fatalf("unexpected totals/buyer %+v", order)
	}
	stored, _ := e.store.Orders.GetByID(context.Background(), order.ID)
	if stored == nil || stored.Total.StringFixed(2) != "59.97" {
		t.Fatalf("stored order = %+v", stored)
	}
}

func TestCheckoutValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sellerID := testsupport.SeedUser(t, e.store, 0)
	design, _ := testsupport.SeedDesign(t, e.store, sellerID, "Neon Tiger", sourceImage)
	draft := seedProduct(t, e.store, design, models.ProductDraft, "10")
	active := seedProduct(t, e.store, design, models.ProductActive, "10")

	_, err := e.orders.Checkout(ctx, CheckoutRequest{ProductID: draft.ID, Quantity: 1, Email: "a@b.co"})
	wantCode(t, err, CodeNotFound)
	_, err = e.orders.Checkout(ctx, CheckoutRequest{ProductID: active.ID, Quantity: 0, Email: "a@b.co"})
	wantCode(t, err, CodeValidation)
	_, err = e.orders.Checkout(ctx, CheckoutRequest{ProductID: active.ID, Quantity: 1})
	wantCode(t, err, CodeValidation)
	_, err = e.orders.Checkout(ctx, CheckoutRequest{ProductID: active.ID, Quantity: 1, Email: "not-an-email"})
	wantCode(t, err, CodeValidation)
}

func TestTransitionShipThenCancelRefunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sellerID, order := checkout(t, e)

	res, err := e.orders.Transition(ctx, sellerID, order.ID, "MARK_SHIPPED")
	if err != nil {
		t.Fatalf("MARK_SHIPPED: %v", err)
	}
	if res.OrderStatus != models.OrderShipped || res.PaymentStatus != models.PaymentPaid || res.StatusLabel != "Shipped" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = e.orders.Transition(ctx, sellerID, order.ID, "CANCEL_ORDER")
	if err != nil {
		t.Fatalf("CANCEL_ORDER: %v", err)
	}
	if res.OrderStatus != models.OrderCanceled || res.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message != "Order canceled and payment refunded." {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestTransitionGuardLeavesOrderUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sellerID, order := checkout(t, e)

	for _, action := range []string{"MARK_SHIPPED", "MARK_DELIVERED"} {
		if _, err := e.orders.Transition(ctx, sellerID, order.ID, action); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}

	_, err := e.orders.Transition(ctx, sellerID, order.ID, "CANCEL_ORDER")
	wantCode(t, err, CodeInvalidTransition)

	stored, _ := e.store.Orders.GetByID(ctx, order.ID)
	if stored.Status != models.OrderDelivered || stored.PaymentStatus != models.PaymentPaid {
		t.Fatalf("order changed: %+v", stored)
	}

	_, err = e.orders.Transition(ctx, sellerID, order.ID, "MARK_DELIVERED")
	wantCode(t, err, CodeInvalidTransition)
}

func TestTransitionRejectsUnknownActionAndForeignSeller(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sellerID, order := checkout(t, e)

	_, err := e.orders.Transition(ctx, sellerID, order.ID, "REFUND_NOW")
	wantCode(t, err, CodeValidation)

	stranger := testsupport.SeedUser(t, e.store, 0)
	_, err = e.orders.Transition(ctx, stranger, order.ID, "MARK_SHIPPED")
	wantCode(t, err, CodeNotFound)

	_, err = e.orders.Transition(ctx, "", order.ID, "MARK_SHIPPED")
	wantCode(t, err, CodeUnauthorized)

	orders, err := e.orders.ListForSeller(ctx, sellerID, 10)
	if err != nil || len(orders) != 1 || orders[0].Status != models.OrderPaid {
		t.Fatalf("ListForSeller = %+v, %v", orders, err)
	}
}
