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

// CuttingRecord is a production batch: one garment cut from one fabric
// definition on one date, consuming one or more color variants of it.
type CuttingRecord struct {
	ID                 int                   `gorm:"primary_key" json:"id"`
	ProductName        string                `gorm:"size:100;not null" json:"product_name" binding:"required"`
	FabricDefinitionId int                   `gorm:"index;not null" json:"fabric_definition_id"`
	FabricDefinition   *FabricDefinition     `gorm:"foreignKey:FabricDefinitionId" json:"fabric_definition,omitempty"`
	Description        string                `gorm:"type:text" json:"description"`
	DateCut            time.Time             `gorm:"type:date;not null" json:"date_cut"`
	Fabrics            []CuttingRecordFabric `gorm:"foreignKey:CuttingRecordId" json:"fabrics"`
	CreatedAt          time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// CuttingRecordFabric is one fabric line of a batch. Creating a line
// reserves yard_used from the variant; the per-size counters are the cut
// capacity the sewing stage is bounded by.
type CuttingRecordFabric struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CuttingRecordId int             `gorm:"index;not null" json:"cutting_record_id"`
	FabricVariantId int             `gorm:"index;not null" json:"fabric_variant_id"`
	FabricVariant   *FabricVariant  `gorm:"foreignKey:FabricVariantId" json:"fabric_variant,omitempty"`
	YardUsed        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"yard_used"`
	CutXS           int             `gorm:"column:cut_xs;default:0" json:"cut_xs"`
	CutS            int             `gorm:"column:cut_s;default:0" json:"cut_s"`
	CutM            int             `gorm:"column:cut_m;default:0" json:"cut_m"`
	CutL            int             `gorm:"column:cut_l;default:0" json:"cut_l"`
	CutXL           int             `gorm:"column:cut_xl;default:0" json:"cut_xl"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCuttingRecord struct {
	ProductName        string                   `json:"product_name" binding:"required"`
	FabricDefinitionId int                      `json:"fabric_definition_id" binding:"required"`
	Description        string                   `json:"description"`
	DateCut            time.Time                `json:"date_cut"`
	Fabrics            []NewCuttingRecordFabric `json:"fabrics" binding:"required,min=1"`
}

type NewCuttingRecordFabric struct {
	FabricVariantId int             `json:"fabric_variant_id" binding:"required"`
	YardUsed        decimal.Decimal `json:"yard_used" binding:"required"`
	CutXS           int             `json:"cut_xs"`
	CutS            int             `json:"cut_s"`
	CutM            int             `json:"cut_m"`
	CutL            int             `json:"cut_l"`
	CutXL           int             `json:"cut_xl"`
}

type UpdateCuttingRecordFabricInput struct {
	FabricVariantId int             `json:"fabric_variant_id" binding:"required"`
	YardUsed        decimal.Decimal `json:"yard_used" binding:"required"`
	CutXS           int             `json:"cut_xs"`
	CutS            int             `json:"cut_s"`
	CutM            int             `json:"cut_m"`
	CutL            int             `json:"cut_l"`
	CutXL           int             `json:"cut_xl"`
}

// TotalCut is the batch capacity of the line across all sizes.
func (f *CuttingRecordFabric) TotalCut() int {
	return f.CutXS + f.CutS + f.CutM + f.CutL + f.CutXL
}

func (f *CuttingRecordFabric) cutForSize(size string) int {
	switch size {
	case "xs":
		return f.CutXS
	case "s":
		return f.CutS
	case "m":
		return f.CutM
	case "l":
		return f.CutL
	case "xl":
		return f.CutXL
	}
	return 0
}

func (in *UpdateCuttingRecordFabricInput) cutForSize(size string) int {
	switch size {
	case "xs":
		return in.CutXS
	case "s":
		return in.CutS
	case "m":
		return in.CutM
	case "l":
		return in.CutL
	case "xl":
		return in.CutXL
	}
	return 0
}

func (in *UpdateCuttingRecordFabricInput) totalCut() int {
	return in.CutXS + in.CutS + in.CutM + in.CutL + in.CutXL
}

// validateVariantBelongs rejects a line whose color variant comes from a
// different fabric definition than the batch was cut from.
func validateVariantBelongs(ctx context.Context, variantId, definitionId int) error {
	count, err := utils.ResourceCountWhere[FabricVariant](ctx,
		"id = ? AND fabric_definition_id = ?", variantId, definitionId)
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("fabric variant does not belong to the batch fabric definition")
	}
	return nil
}

func validateCuttingLine(line *NewCuttingRecordFabric) error {
	if line.YardUsed.IsNegative() {
		return errors.New("yard used cannot be negative")
	}
	if line.CutXS < 0 || line.CutS < 0 || line.CutM < 0 || line.CutL < 0 || line.CutXL < 0 {
		return errors.New("cut counts cannot be negative")
	}
	return nil
}

// CreateCuttingRecord inserts a batch and reserves the yards of every fabric
// line in one transaction. Any failing line rolls the whole batch back.
func CreateCuttingRecord(ctx context.Context, input *NewCuttingRecord) (*CuttingRecord, error) {
	if err := utils.ValidateResourceId[FabricDefinition](ctx, input.FabricDefinitionId); err != nil {
		return nil, errors.New("fabric definition not found")
	}
	for i := range input.Fabrics {
		if err := validateCuttingLine(&input.Fabrics[i]); err != nil {
			return nil, err
		}
		if err := validateVariantBelongs(ctx, input.Fabrics[i].FabricVariantId, input.FabricDefinitionId); err != nil {
			return nil, err
		}
	}

	dateCut := input.DateCut
	if dateCut.IsZero() {
		dateCut = time.Now()
	}

	record := CuttingRecord{
		ProductName:        input.ProductName,
		FabricDefinitionId: input.FabricDefinitionId,
		Description:        input.Description,
		DateCut:            dateCut,
	}
	for _, line := range input.Fabrics {
		record.Fabrics = append(record.Fabrics, CuttingRecordFabric{
			FabricVariantId: line.FabricVariantId,
			YardUsed:        line.YardUsed,
			CutXS:           line.CutXS,
			CutS:            line.CutS,
			CutM:            line.CutM,
			CutL:            line.CutL,
			CutXL:           line.CutXL,
		})
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	for _, line := range record.Fabrics {
		if err := reserveYards(tx, line.FabricVariantId, line.YardUsed); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*CREATE*", record.ID, "cutting_records", nil, &record,
		"Cutting record created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AddCuttingRecordFabric appends a fabric line to an existing batch,
// reserving its yards.
func AddCuttingRecordFabric(ctx context.Context, recordId int, input *NewCuttingRecordFabric) (*CuttingRecordFabric, error) {
	if err := validateCuttingLine(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var record CuttingRecord
	if err := db.WithContext(ctx).First(&record, recordId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("cutting record not found")
		}
		return nil, err
	}
	if err := validateVariantBelongs(ctx, input.FabricVariantId, record.FabricDefinitionId); err != nil {
		return nil, err
	}

	line := CuttingRecordFabric{
		CuttingRecordId: recordId,
		FabricVariantId: input.FabricVariantId,
		YardUsed:        input.YardUsed,
		CutXS:           input.CutXS,
		CutS:            input.CutS,
		CutM:            input.CutM,
		CutL:            input.CutL,
		CutXL:           input.CutXL,
	}

	tx := db.WithContext(ctx).Begin()
	if err := reserveYards(tx, line.FabricVariantId, line.YardUsed); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&line).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateCuttingRecordFabric rewrites a fabric line. Same variant: only the
// yard delta moves against the ledger (positive delta reserves, negative
// releases). Different variant: the old variant gets its full yards back
// and the new variant is charged in full, both inside one transaction.
// The corrected cut counts are re-checked against the sewing ledger: a
// size cannot shrink below what is already sewn, the total cannot shrink
// below sewn plus damaged, and the variant is frozen once sewing entries
// reference the line.
func UpdateCuttingRecordFabric(ctx context.Context, lineId int, input *UpdateCuttingRecordFabricInput) (*CuttingRecordFabric, error) {
	if input.YardUsed.IsNegative() {
		return nil, errors.New("yard used cannot be negative")
	}
	if input.CutXS < 0 || input.CutS < 0 || input.CutM < 0 || input.CutL < 0 || input.CutXL < 0 {
		return nil, errors.New("cut counts cannot be negative")
	}
	if err := utils.ValidateResourceId[FabricVariant](ctx, input.FabricVariantId); err != nil {
		return nil, errors.New("fabric variant not found")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	var line CuttingRecordFabric
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&line, lineId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	before := line

	totals, err := sewnTotalsForLine(tx, line.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if line.FabricVariantId != input.FabricVariantId {
		var sewingCount int64
		if err := tx.Model(&DailySewingRecord{}).
			Where("cutting_record_fabric_id = ?", line.ID).
			Count(&sewingCount).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if sewingCount > 0 {
			tx.Rollback()
			return nil, ErrHasSewingRecords
		}
		var record CuttingRecord
		if err := tx.First(&record, line.CuttingRecordId).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := validateVariantBelongs(ctx, input.FabricVariantId, record.FabricDefinitionId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	for _, size := range SizeNames {
		sewn := totals.sewnForSize(size)
		if sewn > input.cutForSize(size) {
			tx.Rollback()
			return nil, &SewingLimitError{Size: size, Cut: input.cutForSize(size), Sewn: sewn}
		}
	}
	if totals.TotalSewn()+totals.DamagedCount > input.totalCut() {
		tx.Rollback()
		return nil, ErrTotalCapacityExceeded
	}

	if line.FabricVariantId == input.FabricVariantId {
		delta := input.YardUsed.Sub(line.YardUsed)
		switch {
		case delta.IsPositive():
			if err := reserveYards(tx, line.FabricVariantId, delta); err != nil {
				tx.Rollback()
				return nil, err
			}
		case delta.IsNegative():
			if err := releaseYards(tx, line.FabricVariantId, delta.Neg()); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	} else {
		if err := releaseYards(tx, line.FabricVariantId, line.YardUsed); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := reserveYards(tx, input.FabricVariantId, input.YardUsed); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	line.FabricVariantId = input.FabricVariantId
	line.YardUsed = input.YardUsed
	line.CutXS = input.CutXS
	line.CutS = input.CutS
	line.CutM = input.CutM
	line.CutL = input.CutL
	line.CutXL = input.CutXL

	if err := tx.Save(&line).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, ctx, "*UPDATE*", line.ID, "cutting_record_fabrics", &before, &line,
		"Cutting fabric line updated"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// CuttingLineHasSewing reports whether any daily sewing entry references
// the line.
func CuttingLineHasSewing(ctx context.Context, lineId int) (bool, error) {
	count, err := utils.ResourceCountWhere[DailySewingRecord](ctx, "cutting_record_fabric_id = ?", lineId)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteCuttingRecordFabric removes a line and releases its yards. A line
// with sewing entries against it is immutable.
func DeleteCuttingRecordFabric(ctx context.Context, lineId int) error {
	hasSewing, err := CuttingLineHasSewing(ctx, lineId)
	if err != nil {
		return err
	}
	if hasSewing {
		return ErrHasSewingRecords
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	var line CuttingRecordFabric
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&line, lineId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if err := releaseYards(tx, line.FabricVariantId, line.YardUsed); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&line).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := createHistory(tx, ctx, "*DELETE*", line.ID, "cutting_record_fabrics", &line, nil,
		"Cutting fabric line deleted"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// DeleteCuttingRecord removes a batch and all its lines, releasing every
// line's yards. Refused when the batch has been approved into a finished
// product or when any line has sewing entries.
func DeleteCuttingRecord(ctx context.Context, recordId int) error {
	db := config.GetDB()

	var record CuttingRecord
	if err := db.WithContext(ctx).Preload("Fabrics").First(&record, recordId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	approved, err := utils.ResourceCountWhere[FinishedProduct](ctx, "cutting_record_id = ?", recordId)
	if err != nil {
		return err
	}
	if approved > 0 {
		return ErrBatchApproved
	}
	for _, line := range record.Fabrics {
		hasSewing, err := CuttingLineHasSewing(ctx, line.ID)
		if err != nil {
			return err
		}
		if hasSewing {
			return ErrHasSewingRecords
		}
	}

	tx := db.WithContext(ctx).Begin()
	for _, line := range record.Fabrics {
		if err := releaseYards(tx, line.FabricVariantId, line.YardUsed); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Where("cutting_record_id = ?", recordId).Delete(&CuttingRecordFabric{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&record).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := createHistory(tx, ctx, "*DELETE*", record.ID, "cutting_records", &record, nil,
		"Cutting record deleted"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func GetCuttingRecord(ctx context.Context, id int) (*CuttingRecord, error) {
	db := config.GetDB()
	var record CuttingRecord
	if err := db.WithContext(ctx).
		Preload("Fabrics").
		Preload("Fabrics.FabricVariant").
		First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func ListCuttingRecords(ctx context.Context) ([]*CuttingRecord, error) {
	db := config.GetDB()
	var records []*CuttingRecord
	if err := db.WithContext(ctx).
		Preload("Fabrics").
		Preload("Fabrics.FabricVariant").
		Order("date_cut DESC, id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
