package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FinishedProduct is the sellable aggregate of one cutting batch. It is
// created by approval and every counter on it is derived: the sewing and
// packing ledgers are the source of truth, recompute overwrites whatever
// is stored here.
type FinishedProduct struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CuttingRecordId int             `gorm:"uniqueIndex;not null" json:"cutting_record_id"`
	CuttingRecord   *CuttingRecord  `gorm:"foreignKey:CuttingRecordId" json:"cutting_record,omitempty"`
	ProductName     string          `gorm:"size:100;not null" json:"product_name"`
	SewnXS          int             `gorm:"column:sewn_xs;default:0" json:"sewn_xs"`
	SewnS           int             `gorm:"column:sewn_s;default:0" json:"sewn_s"`
	SewnM           int             `gorm:"column:sewn_m;default:0" json:"sewn_m"`
	SewnL           int             `gorm:"column:sewn_l;default:0" json:"sewn_l"`
	SewnXL          int             `gorm:"column:sewn_xl;default:0" json:"sewn_xl"`
	TotalSewn       int             `gorm:"default:0" json:"total_sewn"`
	TotalPacked     int             `gorm:"default:0" json:"total_packed"`
	AvailableQty    int             `gorm:"column:available_quantity;default:0" json:"available_quantity"`
	DamagedCount    int             `gorm:"default:0" json:"damaged_count"`
	RetailPrice     decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"retail_price"`
	WholesalePrice  decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"wholesale_price"`
	Provisional     bool            `gorm:"default:false" json:"provisional"`
	Notes           string          `gorm:"type:text" json:"notes"`
	ApprovedAt      time.Time       `json:"approved_at"`
	Images          []ProductImage  `gorm:"foreignKey:FinishedProductId" json:"images"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductImage struct {
	ID                int       `gorm:"primary_key" json:"id"`
	FinishedProductId int       `gorm:"index;not null" json:"finished_product_id"`
	ImageUrl          string    `gorm:"size:500;not null" json:"image_url"`
	ThumbnailUrl      string    `gorm:"size:500" json:"thumbnail_url"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type ApproveFinishedProductInput struct {
	CuttingRecordId int             `json:"cutting_record_id" binding:"required"`
	RetailPrice     decimal.Decimal `json:"retail_price"`
	WholesalePrice  decimal.Decimal `json:"wholesale_price"`
	// Provisional marks a product approved while its batch is still being
	// sewn; the counters keep flowing in either way.
	Provisional bool   `json:"provisional"`
	Notes       string `json:"notes"`
}

type UpdateFinishedProductPricesInput struct {
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
}

func invalidateFinishedProductCache(id int) {
	if err := utils.RemoveRedisInstance[FinishedProduct](id); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateFinishedProductCache", "remove instance", id, err)
	}
	if err := utils.RemoveRedisList[FinishedProduct](); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateFinishedProductCache", "remove list", id, err)
	}
}

// ApproveFinishedProduct promotes a cutting batch into a sellable product.
// One product per batch: a second approval fails with ErrAlreadyApproved.
func ApproveFinishedProduct(ctx context.Context, input *ApproveFinishedProductInput) (*FinishedProduct, error) {
	if input.RetailPrice.IsNegative() || input.WholesalePrice.IsNegative() {
		return nil, errors.New("prices cannot be negative")
	}

	db := config.GetDB()

	var record CuttingRecord
	if err := db.WithContext(ctx).First(&record, input.CuttingRecordId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	count, err := utils.ResourceCountWhere[FinishedProduct](ctx, "cutting_record_id = ?", record.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyApproved
	}

	product := FinishedProduct{
		CuttingRecordId: record.ID,
		ProductName:     record.ProductName,
		RetailPrice:     input.RetailPrice,
		WholesalePrice:  input.WholesalePrice,
		Provisional:     input.Provisional,
		Notes:           input.Notes,
		ApprovedAt:      time.Now(),
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := recomputeFinishedProduct(tx, product.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", product.ID, "finished_products", nil, &product,
		"Finished product approved"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	invalidateFinishedProductCache(product.ID)
	return GetFinishedProduct(ctx, product.ID)
}

// recomputeFinishedProduct rebuilds every derived counter of a product from
// the sewing and packing ledgers. Idempotent: running it twice in a row
// changes nothing.
func recomputeFinishedProduct(tx *gorm.DB, productId int) error {
	var product FinishedProduct
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	var sewn SewnTotals
	err := tx.Model(&DailySewingRecord{}).
		Joins("JOIN cutting_record_fabrics ON cutting_record_fabrics.id = daily_sewing_records.cutting_record_fabric_id").
		Where("cutting_record_fabrics.cutting_record_id = ?", product.CuttingRecordId).
		Select("COALESCE(SUM(sewn_xs),0) AS sewn_xs," +
			"COALESCE(SUM(sewn_s),0) AS sewn_s," +
			"COALESCE(SUM(sewn_m),0) AS sewn_m," +
			"COALESCE(SUM(sewn_l),0) AS sewn_l," +
			"COALESCE(SUM(sewn_xl),0) AS sewn_xl," +
			"COALESCE(SUM(damaged_count),0) AS damaged_count").
		Scan(&sewn).Error
	if err != nil {
		return err
	}

	var totalPacked int
	err = tx.Model(&PackingSession{}).
		Where("finished_product_id = ?", productId).
		Select("COALESCE(SUM(pack_of_6 * 6 + pack_of_12 * 12 + extra_units),0)").
		Scan(&totalPacked).Error
	if err != nil {
		return err
	}

	return tx.Model(&FinishedProduct{}).Where("id = ?", productId).Updates(map[string]interface{}{
		"sewn_xs":            sewn.SewnXS,
		"sewn_s":             sewn.SewnS,
		"sewn_m":             sewn.SewnM,
		"sewn_l":             sewn.SewnL,
		"sewn_xl":            sewn.SewnXL,
		"total_sewn":         sewn.TotalSewn(),
		"total_packed":       totalPacked,
		"available_quantity": sewn.TotalSewn() - totalPacked,
		"damaged_count":      sewn.DamagedCount,
	}).Error
}

// recomputeFinishedProductForBatch recomputes the product of a batch if the
// batch has been approved, and is a no-op otherwise. Runs in the caller's
// transaction so ledger write and aggregate update commit together.
func recomputeFinishedProductForBatch(tx *gorm.DB, cuttingRecordId int) error {
	var product FinishedProduct
	err := tx.Where("cutting_record_id = ?", cuttingRecordId).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := recomputeFinishedProduct(tx, product.ID); err != nil {
		return err
	}
	invalidateFinishedProductCache(product.ID)
	return nil
}

// RecomputeFinishedProduct is the repair entry point for a single product.
func RecomputeFinishedProduct(ctx context.Context, productId int) (*FinishedProduct, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := recomputeFinishedProduct(tx, productId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateFinishedProductCache(productId)
	return GetFinishedProduct(ctx, productId)
}

func UpdateFinishedProductPrices(ctx context.Context, productId int, input *UpdateFinishedProductPricesInput) (*FinishedProduct, error) {
	if input.RetailPrice.IsNegative() || input.WholesalePrice.IsNegative() {
		return nil, errors.New("prices cannot be negative")
	}
	if err := utils.ValidateResourceId[FinishedProduct](ctx, productId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Model(&FinishedProduct{}).Where("id = ?", productId).
		Updates(map[string]interface{}{
			"retail_price":    input.RetailPrice,
			"wholesale_price": input.WholesalePrice,
		}).Error
	if err != nil {
		return nil, err
	}

	invalidateFinishedProductCache(productId)
	return GetFinishedProduct(ctx, productId)
}

// GetFinishedProduct serves from the redis snapshot when present; the
// snapshot expires on its own and every write path invalidates it.
func GetFinishedProduct(ctx context.Context, id int) (*FinishedProduct, error) {
	if cached, err := utils.RetrieveRedis[FinishedProduct](id); err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var product FinishedProduct
	if err := db.WithContext(ctx).
		Preload("Images").
		Preload("CuttingRecord").
		Preload("CuttingRecord.Fabrics").
		First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if err := utils.StoreRedis[FinishedProduct](&product, product.ID); err != nil {
		config.LogError(config.GetLogger(), "models", "GetFinishedProduct", "store cache", id, err)
	}
	return &product, nil
}

func ListFinishedProducts(ctx context.Context) ([]*FinishedProduct, error) {
	if cached, err := utils.RetrieveRedisList[FinishedProduct](); err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var products []*FinishedProduct
	if err := db.WithContext(ctx).
		Preload("Images").
		Order("approved_at DESC").
		Find(&products).Error; err != nil {
		return nil, err
	}

	if err := utils.StoreRedisList[FinishedProduct](products); err != nil {
		config.LogError(config.GetLogger(), "models", "ListFinishedProducts", "store cache", nil, err)
	}
	return products, nil
}

func AddProductImage(ctx context.Context, productId int, imageUrl, thumbnailUrl string) (*ProductImage, error) {
	if err := utils.ValidateResourceId[FinishedProduct](ctx, productId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	image := ProductImage{
		FinishedProductId: productId,
		ImageUrl:          imageUrl,
		ThumbnailUrl:      thumbnailUrl,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&image).Error; err != nil {
		return nil, err
	}
	invalidateFinishedProductCache(productId)
	return &image, nil
}

func DeleteProductImage(ctx context.Context, imageId int) error {
	db := config.GetDB()
	var image ProductImage
	if err := db.WithContext(ctx).First(&image, imageId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if err := db.WithContext(ctx).Delete(&image).Error; err != nil {
		return err
	}
	invalidateFinishedProductCache(image.FinishedProductId)
	return nil
}
