package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ProductPackingReportRow is the per-batch production position: what was
// sewn, what was packed, what sits in inventory and what is still loose.
type ProductPackingReportRow struct {
	ProductId        int       `json:"id"`
	ProductName      string    `json:"product_name"`
	ApprovedAt       time.Time `json:"approved_at"`
	TotalSewn        int       `json:"total_sewn"`
	TotalPacked      int       `json:"total_packed"`
	CurrentInventory int       `json:"current_inventory"`
	AvailableQty     int       `json:"available_quantity"`
}

func GetProductPackingReport(ctx context.Context) ([]*ProductPackingReportRow, error) {
	db := config.GetDB()

	var products []*FinishedProduct
	if err := db.WithContext(ctx).Order("approved_at DESC").Find(&products).Error; err != nil {
		return nil, err
	}

	var inventories []*PackingInventory
	if err := db.WithContext(ctx).Find(&inventories).Error; err != nil {
		return nil, err
	}
	onHand := make(map[int]int, len(inventories))
	for _, inv := range inventories {
		onHand[inv.FinishedProductId] = inv.TotalUnits()
	}

	rows := make([]*ProductPackingReportRow, 0, len(products))
	for _, p := range products {
		name := p.ProductName
		if name == "" {
			name = fmt.Sprintf("Batch %d", p.CuttingRecordId)
		}
		rows = append(rows, &ProductPackingReportRow{
			ProductId:        p.ID,
			ProductName:      name,
			ApprovedAt:       p.ApprovedAt,
			TotalSewn:        p.TotalSewn,
			TotalPacked:      p.TotalPacked,
			CurrentInventory: onHand[p.ID],
			AvailableQty:     p.AvailableQty,
		})
	}
	return rows, nil
}

// SalesSummaryRow aggregates one shop's invoiced orders over a period.
type SalesSummaryRow struct {
	ShopId     int             `json:"shop_id"`
	ShopName   string          `json:"shop_name"`
	OrderCount int             `json:"order_count"`
	TotalSales decimal.Decimal `json:"total_sales"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	Balance    decimal.Decimal `json:"balance"`
}

func GetSalesSummary(ctx context.Context, from, to time.Time) ([]*SalesSummaryRow, error) {
	db := config.GetDB()

	var orders []*Order
	query := db.WithContext(ctx).Preload("Shop").
		Where("status NOT IN ?", []OrderStatus{OrderStatusDraft, OrderStatusSubmitted, OrderStatusApproved})
	if !from.IsZero() {
		query = query.Where("invoice_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("invoice_date <= ?", to)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}

	byShop := make(map[int]*SalesSummaryRow)
	var shopOrder []int
	for _, order := range orders {
		row, ok := byShop[order.ShopId]
		if !ok {
			row = &SalesSummaryRow{ShopId: order.ShopId}
			if order.Shop != nil {
				row.ShopName = order.Shop.Name
			}
			byShop[order.ShopId] = row
			shopOrder = append(shopOrder, order.ShopId)
		}
		paid, err := sumPayments(db.WithContext(ctx), order.ID)
		if err != nil {
			return nil, err
		}
		row.OrderCount++
		row.TotalSales = row.TotalSales.Add(order.TotalAmount)
		row.TotalPaid = row.TotalPaid.Add(paid)
	}

	rows := make([]*SalesSummaryRow, 0, len(byShop))
	for _, shopId := range shopOrder {
		row := byShop[shopId]
		row.Balance = row.TotalSales.Sub(row.TotalPaid)
		rows = append(rows, row)
	}
	return rows, nil
}

// ExportSalesReportXLSX renders the sales summary as a spreadsheet for the
// owner's monthly bookkeeping.
func ExportSalesReportXLSX(ctx context.Context, from, to time.Time) (*excelize.File, error) {
	rows, err := GetSalesSummary(ctx, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sales"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Shop", "Orders", "Total Sales", "Total Paid", "Balance"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for r, row := range rows {
		values := []interface{}{
			row.ShopName,
			row.OrderCount,
			row.TotalSales.InexactFloat64(),
			row.TotalPaid.InexactFloat64(),
			row.Balance.InexactFloat64(),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return f, nil
}
