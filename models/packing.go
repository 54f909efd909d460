package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PackingSession is one packing run: finished pieces leave the sewing floor
// in 6-packs, 12-packs and loose units. Sessions are the append-only ledger
// total_packed is derived from.
type PackingSession struct {
	ID                int       `gorm:"primary_key" json:"id"`
	FinishedProductId int       `gorm:"index;not null" json:"finished_product_id"`
	Date              time.Time `gorm:"type:date;not null" json:"date"`
	PackOf6           int       `gorm:"column:pack_of_6;default:0" json:"pack_of_6"`
	PackOf12          int       `gorm:"column:pack_of_12;default:0" json:"pack_of_12"`
	ExtraUnits        int       `gorm:"default:0" json:"extra_units"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PackingInventory is the on-hand packed stock of one product, kept as the
// three counters the warehouse actually counts.
type PackingInventory struct {
	ID                int       `gorm:"primary_key" json:"id"`
	FinishedProductId int       `gorm:"uniqueIndex;not null" json:"finished_product_id"`
	PackOf6           int       `gorm:"column:pack_of_6;default:0" json:"pack_of_6"`
	PackOf12          int       `gorm:"column:pack_of_12;default:0" json:"pack_of_12"`
	ExtraUnits        int       `gorm:"default:0" json:"extra_units"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPackingSession struct {
	FinishedProductId int       `json:"finished_product_id" binding:"required"`
	Date              time.Time `json:"date"`
	PackOf6           int       `json:"pack_of_6"`
	PackOf12          int       `json:"pack_of_12"`
	ExtraUnits        int       `json:"extra_units"`
}

// PackUnits converts pack counts to piece units.
func PackUnits(packOf6, packOf12, extraUnits int) int {
	return packOf6*6 + packOf12*12 + extraUnits
}

func (s *PackingSession) TotalUnits() int {
	return PackUnits(s.PackOf6, s.PackOf12, s.ExtraUnits)
}

func (i *PackingInventory) TotalUnits() int {
	return PackUnits(i.PackOf6, i.PackOf12, i.ExtraUnits)
}

// firstOrCreatePackingInventory returns the product's locked inventory row,
// creating a zero row on first use.
func firstOrCreatePackingInventory(tx *gorm.DB, productId int) (*PackingInventory, error) {
	var inventory PackingInventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("finished_product_id = ?", productId).
		First(&inventory).Error
	if err == nil {
		return &inventory, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	inventory = PackingInventory{FinishedProductId: productId}
	if err := tx.Create(&inventory).Error; err != nil {
		return nil, err
	}
	// re-read under lock; a concurrent insert may have won the race
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("finished_product_id = ?", productId).
		First(&inventory).Error
	if err != nil {
		return nil, err
	}
	return &inventory, nil
}

// createPackingSessionTx appends a session, feeds the inventory counters and
// recomputes the product, all in the caller's transaction.
func createPackingSessionTx(tx *gorm.DB, ctx context.Context, input *NewPackingSession) (*PackingSession, error) {
	if input.PackOf6 < 0 || input.PackOf12 < 0 || input.ExtraUnits < 0 {
		return nil, errors.New("pack counts cannot be negative")
	}

	var product FinishedProduct
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, input.FinishedProductId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	units := PackUnits(input.PackOf6, input.PackOf12, input.ExtraUnits)
	if units > product.AvailableQty {
		return nil, ErrInsufficientAvailable
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	session := PackingSession{
		FinishedProductId: product.ID,
		Date:              date,
		PackOf6:           input.PackOf6,
		PackOf12:          input.PackOf12,
		ExtraUnits:        input.ExtraUnits,
	}
	if err := tx.Create(&session).Error; err != nil {
		return nil, err
	}

	if _, err := firstOrCreatePackingInventory(tx, product.ID); err != nil {
		return nil, err
	}
	err := tx.Model(&PackingInventory{}).
		Where("finished_product_id = ?", product.ID).
		Updates(map[string]interface{}{
			"pack_of_6":   gorm.Expr("pack_of_6 + ?", input.PackOf6),
			"pack_of_12":  gorm.Expr("pack_of_12 + ?", input.PackOf12),
			"extra_units": gorm.Expr("extra_units + ?", input.ExtraUnits),
		}).Error
	if err != nil {
		return nil, err
	}

	if err := recomputeFinishedProduct(tx, product.ID); err != nil {
		return nil, err
	}
	invalidateFinishedProductCache(product.ID)
	return &session, nil
}

// CreatePackingSession packs units of an approved product. Packing more
// than the available (sewn but unpacked) quantity fails with
// ErrInsufficientAvailable and nothing is written.
func CreatePackingSession(ctx context.Context, input *NewPackingSession) (*PackingSession, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	session, err := createPackingSessionTx(tx, ctx, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", session.ID, "packing_sessions", nil, session,
		"Packing session recorded"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return session, nil
}

// deduction is what deductForOrder actually took from the inventory.
type deduction struct {
	PackOf6    int
	PackOf12   int
	ExtraUnits int
	Shortfall  int
}

// deductForOrder removes an order line's pack counts from the product's
// inventory under row lock. With allowPartial each counter is deducted up
// to what is on hand and the unmet remainder is returned as a unit
// shortfall; without it any shortage fails with ErrInsufficientInventory.
func deductForOrder(tx *gorm.DB, productId int, packOf6, packOf12, extraUnits int, allowPartial bool) (*deduction, error) {
	if packOf6 < 0 || packOf12 < 0 || extraUnits < 0 {
		return nil, errors.New("pack counts cannot be negative")
	}

	inventory, err := firstOrCreatePackingInventory(tx, productId)
	if err != nil {
		return nil, err
	}

	d := deduction{PackOf6: packOf6, PackOf12: packOf12, ExtraUnits: extraUnits}
	if packOf6 > inventory.PackOf6 || packOf12 > inventory.PackOf12 || extraUnits > inventory.ExtraUnits {
		if !allowPartial {
			return nil, ErrInsufficientInventory
		}
		d.PackOf6 = min(packOf6, inventory.PackOf6)
		d.PackOf12 = min(packOf12, inventory.PackOf12)
		d.ExtraUnits = min(extraUnits, inventory.ExtraUnits)
		d.Shortfall = PackUnits(packOf6, packOf12, extraUnits) -
			PackUnits(d.PackOf6, d.PackOf12, d.ExtraUnits)
	}

	err = tx.Model(&PackingInventory{}).
		Where("finished_product_id = ?", productId).
		Updates(map[string]interface{}{
			"pack_of_6":   gorm.Expr("pack_of_6 - ?", d.PackOf6),
			"pack_of_12":  gorm.Expr("pack_of_12 - ?", d.PackOf12),
			"extra_units": gorm.Expr("extra_units - ?", d.ExtraUnits),
		}).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// restoreInventory is the inverse of deductForOrder: reverted orders put
// their deducted packs back on the shelf. The packing session ledger is not
// touched; the units were packed once and stay counted once.
func restoreInventory(tx *gorm.DB, productId int, packOf6, packOf12, extraUnits int) error {
	if _, err := firstOrCreatePackingInventory(tx, productId); err != nil {
		return err
	}
	return tx.Model(&PackingInventory{}).
		Where("finished_product_id = ?", productId).
		Updates(map[string]interface{}{
			"pack_of_6":   gorm.Expr("pack_of_6 + ?", packOf6),
			"pack_of_12":  gorm.Expr("pack_of_12 + ?", packOf12),
			"extra_units": gorm.Expr("extra_units + ?", extraUnits),
		}).Error
}

func GetPackingInventory(ctx context.Context, productId int) (*PackingInventory, error) {
	if err := utils.ValidateResourceId[FinishedProduct](ctx, productId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	db := config.GetDB()
	var inventory PackingInventory
	err := db.WithContext(ctx).Where("finished_product_id = ?", productId).First(&inventory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &PackingInventory{FinishedProductId: productId}, nil
	}
	if err != nil {
		return nil, err
	}
	return &inventory, nil
}

func ListPackingInventories(ctx context.Context) ([]*PackingInventory, error) {
	db := config.GetDB()
	var inventories []*PackingInventory
	if err := db.WithContext(ctx).Order("finished_product_id").Find(&inventories).Error; err != nil {
		return nil, err
	}
	return inventories, nil
}

func ListPackingSessions(ctx context.Context, productId int) ([]*PackingSession, error) {
	db := config.GetDB()
	var sessions []*PackingSession
	query := db.WithContext(ctx).Order("date DESC, id DESC")
	if productId > 0 {
		query = query.Where("finished_product_id = ?", productId)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
