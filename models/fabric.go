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

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Address   string    `gorm:"type:text" json:"address"`
	TelNo     string    `gorm:"size:15" json:"tel_no"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	TelNo   string `json:"tel_no"`
}

// FabricDefinition groups the shared information of a fabric: name,
// supplier and the date the lot arrived. The per-color facts live on
// FabricVariant.
type FabricDefinition struct {
	ID         int             `gorm:"primary_key" json:"id"`
	FabricName string          `gorm:"size:100;not null" json:"fabric_name" binding:"required"`
	SupplierId int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	DateAdded  time.Time       `gorm:"type:date;not null" json:"date_added"`
	Variants   []FabricVariant `gorm:"foreignKey:FabricDefinitionId" json:"variants"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FabricVariant is the stock ledger row: total_yard is the immutable
// baseline, available_yard the remaining balance consumed by cutting.
type FabricVariant struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	FabricDefinitionId int             `gorm:"index;not null" json:"fabric_definition_id"`
	Color              string          `gorm:"size:50;not null" json:"color"`
	ColorName          string          `gorm:"size:50" json:"color_name"`
	TotalYard          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_yard"`
	AvailableYard      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"available_yard"`
	PricePerYard       decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"price_per_yard"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewFabricDefinition struct {
	FabricName string             `json:"fabric_name" binding:"required"`
	SupplierId int                `json:"supplier_id" binding:"required"`
	DateAdded  time.Time          `json:"date_added"`
	Variants   []NewFabricVariant `json:"variants"`
}

type NewFabricVariant struct {
	Color        string          `json:"color" binding:"required"`
	TotalYard    decimal.Decimal `json:"total_yard" binding:"required"`
	PricePerYard decimal.Decimal `json:"price_per_yard"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	if err := utils.ValidatePhoneNumber(input.TelNo); err != nil {
		return nil, err
	}

	supplier := Supplier{
		Name:    input.Name,
		Address: input.Address,
		TelNo:   input.TelNo,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func ListSuppliers(ctx context.Context) ([]*Supplier, error) {
	db := config.GetDB()
	var suppliers []*Supplier
	if err := db.WithContext(ctx).Order("name").Find(&suppliers).Error; err != nil {
		return nil, err
	}
	return suppliers, nil
}

func CreateFabricDefinition(ctx context.Context, input *NewFabricDefinition) (*FabricDefinition, error) {
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return nil, errors.New("supplier not found")
	}

	dateAdded := input.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now()
	}

	variants := make([]FabricVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		if v.TotalYard.IsNegative() {
			return nil, errors.New("total yard cannot be negative")
		}
		variants = append(variants, FabricVariant{
			Color:         v.Color,
			ColorName:     ColorNameFor(v.Color),
			TotalYard:     v.TotalYard,
			AvailableYard: v.TotalYard,
			PricePerYard:  v.PricePerYard,
		})
	}

	definition := FabricDefinition{
		FabricName: input.FabricName,
		SupplierId: input.SupplierId,
		DateAdded:  dateAdded,
		Variants:   variants,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&definition).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", definition.ID, "fabric_definitions", nil, &definition,
		"Fabric definition created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &definition, nil
}

func AddFabricVariant(ctx context.Context, definitionId int, input *NewFabricVariant) (*FabricVariant, error) {
	if err := utils.ValidateResourceId[FabricDefinition](ctx, definitionId); err != nil {
		return nil, errors.New("fabric definition not found")
	}
	if input.TotalYard.IsNegative() {
		return nil, errors.New("total yard cannot be negative")
	}

	variant := FabricVariant{
		FabricDefinitionId: definitionId,
		Color:              input.Color,
		ColorName:          ColorNameFor(input.Color),
		TotalYard:          input.TotalYard,
		AvailableYard:      input.TotalYard,
		PricePerYard:       input.PricePerYard,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func GetFabricDefinition(ctx context.Context, id int) (*FabricDefinition, error) {
	db := config.GetDB()
	var definition FabricDefinition
	if err := db.WithContext(ctx).Preload("Variants").First(&definition, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &definition, nil
}

func ListFabricDefinitions(ctx context.Context) ([]*FabricDefinition, error) {
	db := config.GetDB()
	var definitions []*FabricDefinition
	if err := db.WithContext(ctx).Preload("Variants").Order("date_added DESC").Find(&definitions).Error; err != nil {
		return nil, err
	}
	return definitions, nil
}

// GetAvailableYard returns the current yard balance of a variant.
func GetAvailableYard(ctx context.Context, variantId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var available decimal.Decimal
	err := db.WithContext(ctx).Model(&FabricVariant{}).
		Where("id = ?", variantId).
		Select("available_yard").
		Scan(&available).Error
	if err != nil {
		return decimal.Zero, err
	}
	return available, nil
}

// reserveYards locks the variant row, checks the balance and decrements it.
// Fails with ErrInsufficientStock without mutating anything.
func reserveYards(tx *gorm.DB, variantId int, yards decimal.Decimal) error {
	if yards.IsNegative() {
		return errors.New("yard usage cannot be negative")
	}

	var variant FabricVariant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&variant, variantId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	if yards.GreaterThan(variant.AvailableYard) {
		return ErrInsufficientStock
	}

	return tx.Model(&FabricVariant{}).Where("id = ?", variantId).
		UpdateColumn("available_yard", gorm.Expr("available_yard - ?", yards)).Error
}

// releaseYards returns yards to the variant. The balance is clamped at
// total_yard; a clamp means the ledger and the cutting records have
// diverged, which is logged loudly instead of silently widening the stock.
func releaseYards(tx *gorm.DB, variantId int, yards decimal.Decimal) error {
	if yards.IsNegative() {
		return errors.New("yard release cannot be negative")
	}

	var variant FabricVariant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&variant, variantId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	newAvailable := variant.AvailableYard.Add(yards)
	if newAvailable.GreaterThan(variant.TotalYard) {
		config.LogWarn(config.GetLogger(), "models", "releaseYards",
			"release would exceed total_yard; clamping (ledger desync)",
			map[string]interface{}{
				"variant_id": variantId,
				"available":  variant.AvailableYard.String(),
				"release":    yards.String(),
				"total":      variant.TotalYard.String(),
			})
		newAvailable = variant.TotalYard
	}

	return tx.Model(&FabricVariant{}).Where("id = ?", variantId).
		UpdateColumn("available_yard", newAvailable).Error
}
