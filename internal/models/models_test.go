package models

import "testing"

func TestOrderActionNext(t *testing.T) {
	tests := []struct {
		name        string
		action      OrderAction
		status      OrderStatus
		payment     PaymentStatus
		wantStatus  OrderStatus
		wantPayment PaymentStatus
		wantOK      bool
	}{
		{"ship paid", ActionMarkShipped, OrderPaid, PaymentPaid, OrderShipped, PaymentPaid, true},
		{"ship in production", ActionMarkShipped, OrderInProduction, PaymentPaid, OrderShipped, PaymentPaid, true},
		{"ship delivered", ActionMarkShipped, OrderDelivered, PaymentPaid, OrderDelivered, PaymentPaid, false},
		{"deliver shipped", ActionMarkDelivered, OrderShipped, PaymentPaid, OrderDelivered, PaymentPaid, true},
		{"deliver paid", ActionMarkDelivered, OrderPaid, PaymentPaid, OrderPaid, PaymentPaid, false},
		{"cancel shipped refunds", ActionCancelOrder, OrderShipped, PaymentPaid, OrderCanceled, PaymentRefunded, true},
		{"cancel pending unpaid", ActionCancelOrder, OrderPending, PaymentPending, OrderCanceled, PaymentPending, true},
		{"cancel delivered", ActionCancelOrder, OrderDelivered, PaymentPaid, OrderDelivered, PaymentPaid, false},
		{"cancel canceled", ActionCancelOrder, OrderCanceled, PaymentRefunded, OrderCanceled, PaymentRefunded, false},
		{"cancel refunded", ActionCancelOrder, OrderRefunded, PaymentRefunded, OrderRefunded, PaymentRefunded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStatus, gotPayment, ok := tt.action.Next(tt.status, tt.payment)
			if ok != tt.wantOK || gotStatus != tt.wantStatus || gotPayment != tt.wantPayment {
				t.Fatalf("got = (%v, %v, %v), want (%v, %v, %v)", gotStatus, gotPayment, ok, tt.wantStatus, tt.wantPayment, tt.wantOK)
			}
		})
	}
}

func TestParseOrderAction(t *testing.T) {
	if _, ok := ParseOrderAction("MARK_SHIPPED"); !ok {
		t.Fatal("MARK_SHIPPED should parse")
	}
	if _, ok := ParseOrderAction("REOPEN"); ok {
		t.Fatal("REOPEN should not parse")
	}
}

func TestParseStylePreset(t *testing.T) {
	tests := []struct {
		in   string
		want StylePreset
		ok   bool
	}{
		{"", StyleMinimalist, true},
		{"neon", StyleNeon, true},
		{" Street-Wear ", "", false},
		{"water color", "", false},
		{"Watercolor", StyleWatercolor, true},
		{"cyberpunk", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStylePreset(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseStylePreset(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	if !MockupDraft.CanTransitionTo(MockupReady) || MockupDraft.CanTransitionTo(MockupExported) {
		t.Fatal("draft mockups must be saved before export")
	}
	if !ProductDraft.CanTransitionTo(ProductActive) || ProductActive.CanTransitionTo(ProductDraft) {
		t.Fatal("unexpected product transitions")
	}
}

func TestDesignTransitions(t *testing.T) {
	tests := []struct {
		from, to DesignStatus
		want     bool
	}{
		{DesignDraft, DesignGenerated, true},
		{DesignGenerated, DesignPublished, true},
		{DesignPublished, DesignPublished, true},
		{DesignPublished, DesignArchived, true},
		{DesignPublished, DesignGenerated, false},
		{DesignArchived, DesignPublished, false},
		{DesignFailed, DesignGenerated, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []DesignStatus{DesignDraft, DesignGenerated, DesignPublished} {
		if s.Absorbing() {
			t.Fatalf("%s reported absorbing", s)
		}
	}
	if !DesignArchived.Absorbing() || !DesignFailed.Absorbing() {
		t.Fatal("archived and failed designs must be absorbing")
	}
}

func TestJSONColumnsRoundTrip(t *testing.T) {
	var m JSONMap
	if err := m.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if m["a"].(float64) != 1 {
		t.Fatalf("unexpected map %v", m)
	}
	var empty JSONMap
	if err := empty.Scan(nil); err != nil || empty == nil {
		t.Fatalf("Scan(nil) = %v, map=%v", err, empty)
	}

	var l StringList
	if err := l.Scan(`["#ff0000"]`); err != nil || len(l) != 1 {
		t.Fatalf("Scan list: %v %v", err, l)
	}
	v, err := StringList(nil).Value()
	if err != nil || v != "[]" {
		t.Fatalf("nil list Value = %v, %v", v, err)
	}
}
