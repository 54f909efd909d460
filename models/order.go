package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Shop struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Address       string    `gorm:"type:text" json:"address"`
	ContactNumber string    `gorm:"size:20" json:"contact_number"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShop struct {
	Name          string `json:"name" binding:"required"`
	Address       string `json:"address"`
	ContactNumber string `json:"contact_number"`
}

type Order struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ShopId         int             `gorm:"index;not null" json:"shop_id"`
	Shop           *Shop           `gorm:"foreignKey:ShopId" json:"shop,omitempty"`
	PlacedById     int             `gorm:"index" json:"placed_by_id"`
	PlacedByName   string          `gorm:"size:100" json:"placed_by_name"`
	Status         OrderStatus     `gorm:"size:20;not null;default:draft" json:"status"`
	ApprovalDate   *time.Time      `json:"approval_date"`
	InvoiceNumber  string          `gorm:"size:50;index" json:"invoice_number"`
	InvoiceDate    *time.Time      `json:"invoice_date"`
	DeliveredCount int             `gorm:"default:0" json:"delivered_count"`
	DeliveryNotes  string          `gorm:"type:text" json:"delivery_notes"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_amount"`
	Items          []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem requests packed stock in the same pack shapes the warehouse
// holds. UnitPrice is snapshotted when the line is added so later price
// edits never change an existing order. The Deducted* counters record what
// the line actually took from inventory; ShortfallUnits is the unmet
// remainder when a shortage was allowed through for production.
type OrderItem struct {
	ID                int              `gorm:"primary_key" json:"id"`
	OrderId           int              `gorm:"index;not null" json:"order_id"`
	FinishedProductId int              `gorm:"index;not null" json:"finished_product_id"`
	FinishedProduct   *FinishedProduct `gorm:"foreignKey:FinishedProductId" json:"finished_product,omitempty"`
	PackOf6           int              `gorm:"column:pack_of_6;default:0" json:"pack_of_6"`
	PackOf12          int              `gorm:"column:pack_of_12;default:0" json:"pack_of_12"`
	ExtraUnits        int              `gorm:"default:0" json:"extra_units"`
	UnitPrice         decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	DeductedPackOf6   int              `gorm:"column:deducted_pack_of_6;default:0" json:"deducted_pack_of_6"`
	DeductedPackOf12  int              `gorm:"column:deducted_pack_of_12;default:0" json:"deducted_pack_of_12"`
	DeductedExtra     int              `gorm:"column:deducted_extra;default:0" json:"deducted_extra"`
	ShortfallUnits    int              `gorm:"default:0" json:"shortfall_units"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	ShopId int            `json:"shop_id" binding:"required"`
	Items  []NewOrderItem `json:"items"`
}

type NewOrderItem struct {
	FinishedProductId int `json:"finished_product_id" binding:"required"`
	PackOf6           int `json:"pack_of_6"`
	PackOf12          int `json:"pack_of_12"`
	ExtraUnits        int `json:"extra_units"`
}

// TransitionPolicy relaxes the fulfillment rules for privileged flows.
// BypassStateChecks lets an owner repair a stuck order; the production
// flag lets an order line go through with a stock shortfall instead of
// failing.
type TransitionPolicy struct {
	BypassStateChecks          bool
	AllowProductionFulfillment bool
}

func (i *OrderItem) TotalUnits() int {
	return PackUnits(i.PackOf6, i.PackOf12, i.ExtraUnits)
}

// FulfilledUnits is what the line actually took from inventory.
func (i *OrderItem) FulfilledUnits() int {
	return PackUnits(i.DeductedPackOf6, i.DeductedPackOf12, i.DeductedExtra)
}

func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.TotalUnits())))
}

func CreateShop(ctx context.Context, input *NewShop) (*Shop, error) {
	if err := utils.ValidatePhoneNumber(input.ContactNumber); err != nil {
		return nil, err
	}
	shop := Shop{
		Name:          input.Name,
		Address:       input.Address,
		ContactNumber: input.ContactNumber,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&shop).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Shop](); err != nil {
		config.LogError(config.GetLogger(), "models", "CreateShop", "invalidate cache", shop.ID, err)
	}
	return &shop, nil
}

func ListShops(ctx context.Context) ([]*Shop, error) {
	if cached, err := utils.RetrieveRedisList[Shop](); err == nil && cached != nil {
		return cached, nil
	}
	db := config.GetDB()
	var shops []*Shop
	if err := db.WithContext(ctx).Order("name").Find(&shops).Error; err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[Shop](shops); err != nil {
		config.LogError(config.GetLogger(), "models", "ListShops", "store cache", nil, err)
	}
	return shops, nil
}

// addOrderLineTx creates one order line and takes its packs out of the
// product's inventory in the caller's transaction. The wholesale price is
// snapshotted onto the line here; later price edits never reprice an
// existing order. A shortage fails the line with ErrInsufficientInventory
// unless allowPartial lets it through with the shortfall recorded.
func addOrderLineTx(tx *gorm.DB, orderId int, input *NewOrderItem, allowPartial bool) (*OrderItem, error) {
	if input.PackOf6 < 0 || input.PackOf12 < 0 || input.ExtraUnits < 0 {
		return nil, errors.New("pack counts cannot be negative")
	}
	if PackUnits(input.PackOf6, input.PackOf12, input.ExtraUnits) == 0 {
		return nil, errors.New("order line cannot be empty")
	}

	var product FinishedProduct
	if err := tx.First(&product, input.FinishedProductId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	d, err := deductForOrder(tx, product.ID,
		input.PackOf6, input.PackOf12, input.ExtraUnits, allowPartial)
	if err != nil {
		return nil, err
	}

	item := OrderItem{
		OrderId:           orderId,
		FinishedProductId: product.ID,
		PackOf6:           input.PackOf6,
		PackOf12:          input.PackOf12,
		ExtraUnits:        input.ExtraUnits,
		UnitPrice:         product.WholesalePrice,
		DeductedPackOf6:   d.PackOf6,
		DeductedPackOf12:  d.PackOf12,
		DeductedExtra:     d.ExtraUnits,
		ShortfallUnits:    d.Shortfall,
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateOrder opens a draft order. Its lines hold their packed stock from
// the moment they are created; an unfillable line rejects the whole order.
func CreateOrder(ctx context.Context, input *NewOrder, policy TransitionPolicy) (*Order, error) {
	if err := utils.ValidateResourceId[Shop](ctx, input.ShopId); err != nil {
		return nil, errors.New("shop not found")
	}
	allowPartial := policy.AllowProductionFulfillment || config.AllowProductionFulfillment()

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	order := Order{
		ShopId:       input.ShopId,
		PlacedById:   userId,
		PlacedByName: userName,
		Status:       OrderStatusDraft,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range input.Items {
		item, err := addOrderLineTx(tx, order.ID, &input.Items[i], allowPartial)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		order.Items = append(order.Items, *item)
	}
	order.TotalAmount = orderTotal(order.Items)
	if err := tx.Model(&Order{}).Where("id = ?", order.ID).
		UpdateColumn("total_amount", order.TotalAmount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", order.ID, "orders", nil, &order,
		"Order created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func orderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Subtotal())
	}
	return total
}

// AddOrderItem appends a line to a draft order, deducting its packs.
func AddOrderItem(ctx context.Context, orderId int, input *NewOrderItem, policy TransitionPolicy) (*OrderItem, error) {
	allowPartial := policy.AllowProductionFulfillment || config.AllowProductionFulfillment()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.Status != OrderStatusDraft {
		tx.Rollback()
		return nil, &InvalidStateTransitionError{Action: "modify", From: order.Status}
	}

	item, err := addOrderLineTx(tx, order.ID, input, allowPartial)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := refreshOrderTotal(tx, order.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}

func refreshOrderTotal(tx *gorm.DB, orderId int) error {
	var items []OrderItem
	if err := tx.Where("order_id = ?", orderId).Find(&items).Error; err != nil {
		return err
	}
	return tx.Model(&Order{}).Where("id = ?", orderId).
		UpdateColumn("total_amount", orderTotal(items)).Error
}

func lockOrder(tx *gorm.DB, orderId int) (*Order, error) {
	var order Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

// SubmitOrder moves a draft into the review queue.
func SubmitOrder(ctx context.Context, orderId int, policy TransitionPolicy) (*Order, error) {
	return transitionOrder(ctx, orderId, OrderStatusSubmitted, "submit", policy, nil)
}

// MarkDelivered records that the invoiced goods reached the shop, along
// with the count the driver actually handed over and any delivery notes.
func MarkDelivered(ctx context.Context, orderId int, notes string, deliveredCount int, policy TransitionPolicy) (*Order, error) {
	if deliveredCount < 0 {
		return nil, errors.New("delivered count cannot be negative")
	}
	return transitionOrder(ctx, orderId, OrderStatusDelivered, "deliver", policy,
		func(tx *gorm.DB, order *Order) error {
			order.DeliveryNotes = notes
			order.DeliveredCount = deliveredCount
			return nil
		})
}

func transitionOrder(ctx context.Context, orderId int, to OrderStatus, action string,
	policy TransitionPolicy, mutate func(tx *gorm.DB, order *Order) error) (*Order, error) {

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !policy.BypassStateChecks && !canTransitionOrder(order.Status, to) {
		tx.Rollback()
		return nil, &InvalidStateTransitionError{Action: action, From: order.Status}
	}
	before := *order

	order.Status = to
	if mutate != nil {
		if err := mutate(tx, order); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*UPDATE*", order.ID, "orders", &before, order,
		fmt.Sprintf("Order %s", to)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, order.ID)
}

// ApproveOrder signs off a submitted order. The stock was already taken
// when the lines were created; approval only stamps the date.
func ApproveOrder(ctx context.Context, orderId int, policy TransitionPolicy) (*Order, error) {
	return transitionOrder(ctx, orderId, OrderStatusApproved, "approve", policy,
		func(tx *gorm.DB, order *Order) error {
			count, err := countOrderItems(tx, order.ID)
			if err != nil {
				return err
			}
			if count == 0 {
				return errors.New("order has no lines")
			}
			now := time.Now()
			order.ApprovalDate = &now
			return nil
		})
}

func countOrderItems(tx *gorm.DB, orderId int) (int64, error) {
	var count int64
	err := tx.Model(&OrderItem{}).Where("order_id = ?", orderId).Count(&count).Error
	return count, err
}

func invoiceNumberFor(orderId int, t time.Time) string {
	return fmt.Sprintf("INV-%s-%d", t.Format("20060102"), orderId)
}

// GenerateInvoice issues the invoice number and freezes the order total.
// Number issuance is serialized with a redis lock so two concurrent
// invoices can never share a number.
func GenerateInvoice(ctx context.Context, orderId int, policy TransitionPolicy) (*Order, error) {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, "invoice-number", 10*time.Second, nil)
		if err != nil {
			return nil, err
		}
		defer lock.Release(ctx)
	}

	return transitionOrder(ctx, orderId, OrderStatusInvoiced, "invoice", policy,
		func(tx *gorm.DB, order *Order) error {
			var items []OrderItem
			if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
				return err
			}

			now := time.Now()
			order.InvoiceNumber = invoiceNumberFor(order.ID, now)
			order.InvoiceDate = &now
			order.TotalAmount = orderTotal(items)
			return nil
		})
}

// RevertOrder is a compensating transaction, not a state transition: every
// pack the order deducted goes back into packing inventory, then the order
// and its lines are deleted. Orders with recorded payments cannot be
// reverted.
func RevertOrder(ctx context.Context, orderId int) error {
	paymentCount, err := utils.ResourceCountWhere[Payment](ctx, "order_id = ?", orderId)
	if err != nil {
		return err
	}
	if paymentCount > 0 {
		return ErrOrderHasPayments
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return err
	}
	switch order.Status {
	case OrderStatusDraft, OrderStatusApproved, OrderStatusInvoiced, OrderStatusDelivered:
	default:
		tx.Rollback()
		return &InvalidStateTransitionError{Action: "revert", From: order.Status}
	}

	var items []OrderItem
	if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range items {
		item := &items[i]
		if item.FulfilledUnits() == 0 {
			continue
		}
		if err := restoreInventory(tx, item.FinishedProductId,
			item.DeductedPackOf6, item.DeductedPackOf12, item.DeductedExtra); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Where("order_id = ?", order.ID).Delete(&OrderItem{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(order).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := createHistory(tx, ctx, "*DELETE*", order.ID, "orders", order, nil,
		"Order reverted"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).
		Preload("Shop").
		Preload("Items").
		Preload("Items.FinishedProduct").
		First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

func ListOrders(ctx context.Context, status string) ([]*Order, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Preload("Shop").Preload("Items").Order("id DESC")
	if status != "" {
		parsed, err := ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		query = query.Where("status = ?", parsed)
	}
	var orders []*Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderBalance returns the order total, the sum of recorded payments
// and the remaining balance.
func GetOrderBalance(ctx context.Context, orderId int) (total, paid, balance decimal.Decimal, err error) {
	db := config.GetDB()

	var order Order
	if err = db.WithContext(ctx).First(&order, orderId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = utils.ErrorRecordNotFound
		}
		return
	}
	paid, err = sumPayments(db.WithContext(ctx), orderId)
	if err != nil {
		return
	}
	total = order.TotalAmount
	balance = total.Sub(paid)
	return
}
