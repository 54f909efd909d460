package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransitionOrder(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusDraft, OrderStatusSubmitted, true},
		{OrderStatusSubmitted, OrderStatusApproved, true},
		{OrderStatusApproved, OrderStatusInvoiced, true},
		{OrderStatusInvoiced, OrderStatusDelivered, true},
		{OrderStatusDraft, OrderStatusApproved, false},
		{OrderStatusDraft, OrderStatusInvoiced, false},
		{OrderStatusSubmitted, OrderStatusInvoiced, false},
		{OrderStatusApproved, OrderStatusDelivered, false},
		{OrderStatusDelivered, OrderStatusDraft, false},
		{OrderStatusDelivered, OrderStatusPaid, false},
		{OrderStatusPaid, OrderStatusDelivered, false},
		{OrderStatusInvoiced, OrderStatusApproved, false},
	}
	for _, c := range cases {
		if got := canTransitionOrder(c.from, c.to); got != c.want {
			t.Errorf("canTransitionOrder(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, valid := range []string{"draft", "submitted", "approved", "invoiced", "delivered", "paid", "partially_paid", "payment_due"} {
		if _, err := ParseOrderStatus(valid); err != nil {
			t.Errorf("ParseOrderStatus(%q) unexpected error: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "Draft", "shipped", "cancelled"} {
		if _, err := ParseOrderStatus(invalid); err == nil {
			t.Errorf("ParseOrderStatus(%q) expected error", invalid)
		}
	}
}

func TestParsePaymentMethod(t *testing.T) {
	for _, valid := range []string{"cash", "check", "bank_transfer", "credit", "advance"} {
		if _, err := ParsePaymentMethod(valid); err != nil {
			t.Errorf("ParsePaymentMethod(%q) unexpected error: %v", valid, err)
		}
	}
	if _, err := ParsePaymentMethod("bitcoin"); err == nil {
		t.Error("ParsePaymentMethod(bitcoin) expected error")
	}
}

func TestDerivePaymentStatus(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	cases := []struct {
		paid, total string
		want        PaymentStatus
	}{
		{"0", "1000", PaymentStatusUnpaid},
		{"400", "1000", PaymentStatusPartiallyPaid},
		{"1000", "1000", PaymentStatusPaid},
		{"999.99", "1000", PaymentStatusPartiallyPaid},
		{"0", "0", PaymentStatusUnpaid},
	}
	for _, c := range cases {
		if got := derivePaymentStatus(d(c.paid), d(c.total)); got != c.want {
			t.Errorf("derivePaymentStatus(%s, %s) = %s, want %s", c.paid, c.total, got, c.want)
		}
	}
}

func TestCreditDueDate(t *testing.T) {
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// credit terms count 30-day months, not calendar months
	if got := creditDueDate(from, 1); !got.Equal(time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("creditDueDate(+1 month) = %s", got)
	}
	if got := creditDueDate(from, 3); !got.Equal(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("creditDueDate(+3 months) = %s", got)
	}
}

func TestOrderAcceptsPayments(t *testing.T) {
	accepting := map[OrderStatus]bool{
		OrderStatusInvoiced:      true,
		OrderStatusDelivered:     true,
		OrderStatusPartiallyPaid: true,
		OrderStatusPaymentDue:    true,
	}
	all := []OrderStatus{
		OrderStatusDraft, OrderStatusSubmitted, OrderStatusApproved,
		OrderStatusInvoiced, OrderStatusDelivered,
		OrderStatusPaid, OrderStatusPartiallyPaid, OrderStatusPaymentDue,
	}
	for _, status := range all {
		if got := orderAcceptsPayments(status); got != accepting[status] {
			t.Errorf("orderAcceptsPayments(%s) = %v, want %v", status, got, accepting[status])
		}
	}
}

func TestPackUnits(t *testing.T) {
	cases := []struct {
		p6, p12, extras, want int
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 6},
		{0, 1, 0, 12},
		{0, 0, 5, 5},
		{2, 3, 4, 52},
	}
	for _, c := range cases {
		if got := PackUnits(c.p6, c.p12, c.extras); got != c.want {
			t.Errorf("PackUnits(%d, %d, %d) = %d, want %d", c.p6, c.p12, c.extras, got, c.want)
		}
	}
}

func TestColorNameFor(t *testing.T) {
	if got := ColorNameFor("#000080"); got != "Navy" {
		t.Errorf("ColorNameFor(#000080) = %q", got)
	}
	// lookup is case-insensitive on the hex code
	if got := ColorNameFor("#ff0000"); got != "Red" {
		t.Errorf("ColorNameFor(#ff0000) = %q", got)
	}
	// unknown codes pass through untouched
	if got := ColorNameFor("#123456"); got != "#123456" {
		t.Errorf("ColorNameFor(unknown) = %q", got)
	}
	if got := ColorNameFor("Floral Print"); got != "Floral Print" {
		t.Errorf("ColorNameFor(free text) = %q", got)
	}
}

func TestSewingLimitError(t *testing.T) {
	err := &SewingLimitError{Size: "m", Cut: 7, Sewn: 5, Requested: 5}
	msg := err.Error()
	for _, want := range []string{"size m", "7 cut", "5 already sewn", "5 requested"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestInvalidStateTransitionError(t *testing.T) {
	err := &InvalidStateTransitionError{Action: "approve", From: OrderStatusDraft}
	if !strings.Contains(err.Error(), "approve") || !strings.Contains(err.Error(), "draft") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestIsConservationError(t *testing.T) {
	for _, err := range []error{
		ErrInsufficientStock,
		ErrTotalCapacityExceeded,
		ErrInsufficientAvailable,
		ErrInsufficientInventory,
		ErrPaymentExceedsTotal,
		&SewingLimitError{Size: "s", Cut: 1, Sewn: 1, Requested: 1},
	} {
		if !IsConservationError(err) {
			t.Errorf("IsConservationError(%v) = false", err)
		}
	}
	for _, err := range []error{
		nil,
		ErrAlreadyApproved,
		ErrOrderHasPayments,
		errors.New("boom"),
	} {
		if IsConservationError(err) {
			t.Errorf("IsConservationError(%v) = true", err)
		}
	}
}

func TestOrderItemSubtotalUsesSnapshotPrice(t *testing.T) {
	item := OrderItem{
		PackOf6:    2,
		PackOf12:   1,
		ExtraUnits: 3,
		UnitPrice:  decimal.RequireFromString("15.50"),
	}
	if item.TotalUnits() != 27 {
		t.Fatalf("TotalUnits = %d, want 27", item.TotalUnits())
	}
	want := decimal.RequireFromString("418.50")
	if !item.Subtotal().Equal(want) {
		t.Errorf("Subtotal = %s, want %s", item.Subtotal(), want)
	}
}

func TestCuttingLineSizeAccessors(t *testing.T) {
	line := CuttingRecordFabric{CutXS: 1, CutS: 2, CutM: 3, CutL: 4, CutXL: 5}
	if line.TotalCut() != 15 {
		t.Fatalf("TotalCut = %d, want 15", line.TotalCut())
	}
	wants := map[string]int{"xs": 1, "s": 2, "m": 3, "l": 4, "xl": 5, "xxl": 0}
	for size, want := range wants {
		if got := line.cutForSize(size); got != want {
			t.Errorf("cutForSize(%s) = %d, want %d", size, got, want)
		}
	}
}

func TestInvoiceNumberFormat(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if got := invoiceNumberFor(42, now); got != "INV-20260828-42" {
		t.Errorf("invoice number = %q", got)
	}
}
