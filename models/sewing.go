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

// DailySewingRecord is one day's sewing report against a single cutting
// line. Entries are append-only: corrections are made with a compensating
// entry, never by editing history.
type DailySewingRecord struct {
	ID                    int       `gorm:"primary_key" json:"id"`
	CuttingRecordFabricId int       `gorm:"index;not null" json:"cutting_record_fabric_id"`
	Date                  time.Time `gorm:"type:date;not null" json:"date"`
	SewnXS                int       `gorm:"column:sewn_xs;default:0" json:"sewn_xs"`
	SewnS                 int       `gorm:"column:sewn_s;default:0" json:"sewn_s"`
	SewnM                 int       `gorm:"column:sewn_m;default:0" json:"sewn_m"`
	SewnL                 int       `gorm:"column:sewn_l;default:0" json:"sewn_l"`
	SewnXL                int       `gorm:"column:sewn_xl;default:0" json:"sewn_xl"`
	DamagedCount          int       `gorm:"default:0" json:"damaged_count"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewDailySewingRecord struct {
	CuttingRecordFabricId int       `json:"cutting_record_fabric_id" binding:"required"`
	Date                  time.Time `json:"date"`
	SewnXS                int       `json:"sewn_xs"`
	SewnS                 int       `json:"sewn_s"`
	SewnM                 int       `json:"sewn_m"`
	SewnL                 int       `json:"sewn_l"`
	SewnXL                int       `json:"sewn_xl"`
	DamagedCount          int       `json:"damaged_count"`
}

// SewnTotals is the cumulative sewing position of one cutting line.
type SewnTotals struct {
	SewnXS       int `json:"sewn_xs"`
	SewnS        int `json:"sewn_s"`
	SewnM        int `json:"sewn_m"`
	SewnL        int `json:"sewn_l"`
	SewnXL       int `json:"sewn_xl"`
	DamagedCount int `json:"damaged_count"`
}

func (t *SewnTotals) TotalSewn() int {
	return t.SewnXS + t.SewnS + t.SewnM + t.SewnL + t.SewnXL
}

func (t *SewnTotals) sewnForSize(size string) int {
	switch size {
	case "xs":
		return t.SewnXS
	case "s":
		return t.SewnS
	case "m":
		return t.SewnM
	case "l":
		return t.SewnL
	case "xl":
		return t.SewnXL
	}
	return 0
}

func (r *NewDailySewingRecord) sewnForSize(size string) int {
	switch size {
	case "xs":
		return r.SewnXS
	case "s":
		return r.SewnS
	case "m":
		return r.SewnM
	case "l":
		return r.SewnL
	case "xl":
		return r.SewnXL
	}
	return 0
}

func sewnTotalsForLine(tx *gorm.DB, lineId int) (*SewnTotals, error) {
	var totals SewnTotals
	err := tx.Model(&DailySewingRecord{}).
		Where("cutting_record_fabric_id = ?", lineId).
		Select("COALESCE(SUM(sewn_xs),0) AS sewn_xs," +
			"COALESCE(SUM(sewn_s),0) AS sewn_s," +
			"COALESCE(SUM(sewn_m),0) AS sewn_m," +
			"COALESCE(SUM(sewn_l),0) AS sewn_l," +
			"COALESCE(SUM(sewn_xl),0) AS sewn_xl," +
			"COALESCE(SUM(damaged_count),0) AS damaged_count").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// AddDailySewingRecord appends a sewing entry. The cutting line is locked
// for the duration so concurrent entries serialize; the per-size limit and
// the total capacity limit are both checked against the cumulative sums
// before the insert. If the batch already has an approved finished product
// its totals are recomputed in the same transaction.
func AddDailySewingRecord(ctx context.Context, input *NewDailySewingRecord) (*DailySewingRecord, error) {
	if input.SewnXS < 0 || input.SewnS < 0 || input.SewnM < 0 ||
		input.SewnL < 0 || input.SewnXL < 0 || input.DamagedCount < 0 {
		return nil, errors.New("sewn and damaged counts cannot be negative")
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	var line CuttingRecordFabric
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&line, input.CuttingRecordFabricId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	totals, err := sewnTotalsForLine(tx, line.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, size := range SizeNames {
		requested := input.sewnForSize(size)
		if requested == 0 {
			continue
		}
		cut := line.cutForSize(size)
		sewn := totals.sewnForSize(size)
		if sewn+requested > cut {
			tx.Rollback()
			return nil, &SewingLimitError{Size: size, Cut: cut, Sewn: sewn, Requested: requested}
		}
	}

	requestedTotal := input.SewnXS + input.SewnS + input.SewnM + input.SewnL + input.SewnXL + input.DamagedCount
	if totals.TotalSewn()+totals.DamagedCount+requestedTotal > line.TotalCut() {
		tx.Rollback()
		return nil, ErrTotalCapacityExceeded
	}

	record := DailySewingRecord{
		CuttingRecordFabricId: line.ID,
		Date:                  date,
		SewnXS:                input.SewnXS,
		SewnS:                 input.SewnS,
		SewnM:                 input.SewnM,
		SewnL:                 input.SewnL,
		SewnXL:                input.SewnXL,
		DamagedCount:          input.DamagedCount,
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recomputeFinishedProductForBatch(tx, line.CuttingRecordId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetSewnTotals returns the cumulative sewn and damaged counts of a line.
func GetSewnTotals(ctx context.Context, lineId int) (*SewnTotals, error) {
	if err := utils.ValidateResourceId[CuttingRecordFabric](ctx, lineId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	db := config.GetDB()
	return sewnTotalsForLine(db.WithContext(ctx), lineId)
}

// GetTodaySewingCount sums today's sewing output across all lines.
func GetTodaySewingCount(ctx context.Context) (int, error) {
	db := config.GetDB()
	today, err := utils.ConvertToDate(time.Now(), "")
	if err != nil {
		return 0, err
	}
	var total int
	err = db.WithContext(ctx).Model(&DailySewingRecord{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(sewn_xs + sewn_s + sewn_m + sewn_l + sewn_xl),0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func ListSewingHistory(ctx context.Context, lineId int) ([]*DailySewingRecord, error) {
	db := config.GetDB()
	var records []*DailySewingRecord
	if err := db.WithContext(ctx).
		Where("cutting_record_fabric_id = ?", lineId).
		Order("date DESC, id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
