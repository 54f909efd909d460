package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is one settlement against an invoiced order. Check and credit
// payments carry their method-specific fields; everything else leaves them
// empty.
type Payment struct {
	ID               int             `gorm:"primary_key" json:"id"`
	OrderId          int             `gorm:"index;not null" json:"order_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method           PaymentMethod   `gorm:"size:20;not null" json:"method"`
	PaymentDate      time.Time       `gorm:"type:date;not null" json:"payment_date"`
	CheckNumber      string          `gorm:"size:50" json:"check_number"`
	CheckDate        *time.Time      `gorm:"type:date" json:"check_date"`
	BankName         string          `gorm:"size:100" json:"bank_name"`
	CreditTermMonths int             `gorm:"default:0" json:"credit_term_months"`
	PaymentDueDate   *time.Time      `gorm:"type:date" json:"payment_due_date"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedById      int             `gorm:"index" json:"created_by_id"`
	CreatedByName    string          `gorm:"size:100" json:"created_by_name"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayment struct {
	OrderId          int             `json:"order_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	Method           string          `json:"method" binding:"required"`
	PaymentDate      time.Time       `json:"payment_date"`
	CheckNumber      string          `json:"check_number"`
	CheckDate        *time.Time      `json:"check_date"`
	BankName         string          `json:"bank_name"`
	CreditTermMonths int             `json:"credit_term_months"`
	Notes            string          `json:"notes"`
}

// creditDueDate follows the factory's convention of 30-day months.
func creditDueDate(from time.Time, months int) time.Time {
	return from.AddDate(0, 0, 30*months)
}

func derivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case total.IsPositive() && paid.GreaterThanOrEqual(total):
		return PaymentStatusPaid
	case paid.IsPositive():
		return PaymentStatusPartiallyPaid
	}
	return PaymentStatusUnpaid
}

func sumPayments(tx *gorm.DB, orderId int) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := tx.Model(&Payment{}).
		Where("order_id = ?", orderId).
		Select("COALESCE(SUM(amount),0)").
		Scan(&paid).Error
	if err != nil {
		return decimal.Zero, err
	}
	return paid, nil
}

// orderAcceptsPayments gates the payment ledger on order status.
func orderAcceptsPayments(status OrderStatus) bool {
	switch status {
	case OrderStatusInvoiced, OrderStatusDelivered,
		OrderStatusPartiallyPaid, OrderStatusPaymentDue:
		return true
	}
	return false
}

// RecordPayment appends a settlement and mirrors the payment position onto
// the order status, all under the order's row lock. The running total can
// never exceed the invoice: an overshooting payment fails with
// ErrPaymentExceedsTotal and nothing is written.
func RecordPayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, errors.New("payment amount must be positive")
	}
	method, err := ParsePaymentMethod(input.Method)
	if err != nil {
		return nil, err
	}
	if method == PaymentMethodCheck && input.CheckNumber == "" {
		return nil, errors.New("check payments require a check number")
	}
	if method == PaymentMethodCredit && input.CreditTermMonths <= 0 {
		return nil, errors.New("credit payments require a credit term")
	}

	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, input.OrderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !orderAcceptsPayments(order.Status) {
		tx.Rollback()
		return nil, &InvalidStateTransitionError{Action: "record a payment against", From: order.Status}
	}
	before := *order

	paid, err := sumPayments(tx, order.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if paid.Add(input.Amount).GreaterThan(order.TotalAmount) {
		tx.Rollback()
		return nil, ErrPaymentExceedsTotal
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	payment := Payment{
		OrderId:          order.ID,
		Amount:           input.Amount,
		Method:           method,
		PaymentDate:      paymentDate,
		CheckNumber:      input.CheckNumber,
		CheckDate:        input.CheckDate,
		BankName:         input.BankName,
		CreditTermMonths: input.CreditTermMonths,
		Notes:            input.Notes,
		CreatedById:      userId,
		CreatedByName:    userName,
	}
	if method == PaymentMethodCredit {
		due := creditDueDate(paymentDate, input.CreditTermMonths)
		payment.PaymentDueDate = &due
	}
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// Mirror the payment position onto the order.
	newPaid := paid.Add(input.Amount)
	switch derivePaymentStatus(newPaid, order.TotalAmount) {
	case PaymentStatusPaid:
		order.Status = OrderStatusPaid
	case PaymentStatusPartiallyPaid:
		if method == PaymentMethodCredit {
			order.Status = OrderStatusPaymentDue
		} else {
			order.Status = OrderStatusPartiallyPaid
		}
	}
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", payment.ID, "payments", &before, order,
		"Payment recorded"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func ListPayments(ctx context.Context, orderId int) ([]*Payment, error) {
	if err := utils.ValidateResourceId[Order](ctx, orderId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	db := config.GetDB()
	var payments []*Payment
	if err := db.WithContext(ctx).
		Where("order_id = ?", orderId).
		Order("payment_date DESC, id DESC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// GetLatestPaymentMethod returns the method of the most recent payment on
// an order, or empty when none exist.
func GetLatestPaymentMethod(ctx context.Context, orderId int) (PaymentMethod, error) {
	db := config.GetDB()
	var payment Payment
	err := db.WithContext(ctx).
		Where("order_id = ?", orderId).
		Order("payment_date DESC, id DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return payment.Method, nil
}

// ListOverdueCreditOrders returns orders carrying an unpaid credit balance
// whose due date has passed.
func ListOverdueCreditOrders(ctx context.Context) ([]*Order, error) {
	db := config.GetDB()
	var orderIds []int
	err := db.WithContext(ctx).Model(&Payment{}).
		Where("method = ? AND payment_due_date < ?", PaymentMethodCredit, time.Now()).
		Distinct("order_id").
		Pluck("order_id", &orderIds).Error
	if err != nil {
		return nil, err
	}
	if len(orderIds) == 0 {
		return nil, nil
	}

	var orders []*Order
	err = db.WithContext(ctx).
		Preload("Shop").
		Where("id IN ? AND status <> ?", orderIds, OrderStatusPaid).
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
