package models

import "errors"

type OrderStatus string

const (
	OrderStatusDraft         OrderStatus = "draft"
	OrderStatusSubmitted     OrderStatus = "submitted"
	OrderStatusApproved      OrderStatus = "approved"
	OrderStatusInvoiced      OrderStatus = "invoiced"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusPartiallyPaid OrderStatus = "partially_paid"
	OrderStatusPaymentDue    OrderStatus = "payment_due"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusDraft, OrderStatusSubmitted, OrderStatusApproved,
		OrderStatusInvoiced, OrderStatusDelivered,
		OrderStatusPaid, OrderStatusPartiallyPaid, OrderStatusPaymentDue:
		return OrderStatus(s), nil
	}
	return "", errors.New("invalid order status")
}

// The forward flow of the fulfillment state machine. Payment-derived
// statuses (paid / partially_paid / payment_due) are reached through
// RecordPayment, never through a direct transition.
var orderStatusFlow = map[OrderStatus]OrderStatus{
	OrderStatusDraft:     OrderStatusSubmitted,
	OrderStatusSubmitted: OrderStatusApproved,
	OrderStatusApproved:  OrderStatusInvoiced,
	OrderStatusInvoiced:  OrderStatusDelivered,
}

func canTransitionOrder(from, to OrderStatus) bool {
	next, ok := orderStatusFlow[from]
	return ok && next == to
}

type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCredit       PaymentMethod = "credit"
	PaymentMethodAdvance      PaymentMethod = "advance"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodBankTransfer,
		PaymentMethodCredit, PaymentMethodAdvance:
		return PaymentMethod(s), nil
	}
	return "", errors.New("invalid payment method")
}

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
	UserRoleSales UserRole = "S"
)

// Size names, in the order the factory reports them.
var SizeNames = []string{"xs", "s", "m", "l", "xl"}
