package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/models"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/shopspring/decimal"
)

// setupIntegrationEnv spins up disposable MySQL and redis containers,
// points the config at them and migrates the schema. Tests that call it
// are skipped unless INTEGRATION_TESTS=1.
func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "garment_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUserRoleInContext(ctx, "O")
	return ctx
}

// seedFabricVariant creates a supplier, a fabric definition and returns the
// single variant with the given yards.
func seedFabricVariant(t *testing.T, ctx context.Context, yards string) *models.FabricVariant {
	t.Helper()
	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Golden Thread Textiles"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	definition, err := models.CreateFabricDefinition(ctx, &models.NewFabricDefinition{
		FabricName: "Cotton Twill",
		SupplierId: supplier.ID,
		Variants: []models.NewFabricVariant{
			{Color: "#000080", TotalYard: decimal.RequireFromString(yards)},
		},
	})
	if err != nil {
		t.Fatalf("CreateFabricDefinition: %v", err)
	}
	return &definition.Variants[0]
}

func TestYardConservation(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "100")

	if variant.ColorName != "Navy" {
		t.Fatalf("expected color name Navy; got %q", variant.ColorName)
	}

	// First batch takes 60 of the 100 yards.
	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Polo Shirt",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("60"), CutM: 30},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}

	available, err := models.GetAvailableYard(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetAvailableYard: %v", err)
	}
	if available.Cmp(decimal.RequireFromString("40")) != 0 {
		t.Fatalf("expected 40 yards available; got %s", available)
	}

	// A second batch asking for 50 must be rejected whole.
	_, err = models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Polo Shirt 2",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("50"), CutM: 25},
		},
	})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock; got %v", err)
	}
	available, _ = models.GetAvailableYard(ctx, variant.ID)
	if available.Cmp(decimal.RequireFromString("40")) != 0 {
		t.Fatalf("rejected cut must not move the ledger; got %s", available)
	}

	// Deleting the batch returns its yards.
	if err := models.DeleteCuttingRecord(ctx, record.ID); err != nil {
		t.Fatalf("DeleteCuttingRecord: %v", err)
	}
	available, _ = models.GetAvailableYard(ctx, variant.ID)
	if available.Cmp(decimal.RequireFromString("100")) != 0 {
		t.Fatalf("expected 100 yards after delete; got %s", available)
	}
}

func TestCuttingLineUpdateMovesDelta(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "100")

	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "T-Shirt",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("30"), CutS: 15},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}
	line := record.Fabrics[0]

	// Raising yard_used from 30 to 45 moves only the 15 yard delta.
	_, err = models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: variant.ID,
		YardUsed:        decimal.RequireFromString("45"),
		CutS:            20,
	})
	if err != nil {
		t.Fatalf("UpdateCuttingRecordFabric: %v", err)
	}
	available, _ := models.GetAvailableYard(ctx, variant.ID)
	if available.Cmp(decimal.RequireFromString("55")) != 0 {
		t.Fatalf("expected 55 yards after raise; got %s", available)
	}

	// Lowering back to 20 releases 25.
	_, err = models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: variant.ID,
		YardUsed:        decimal.RequireFromString("20"),
		CutS:            10,
	})
	if err != nil {
		t.Fatalf("UpdateCuttingRecordFabric (lower): %v", err)
	}
	available, _ = models.GetAvailableYard(ctx, variant.ID)
	if available.Cmp(decimal.RequireFromString("80")) != 0 {
		t.Fatalf("expected 80 yards after lower; got %s", available)
	}
}

func TestCuttingLineShrinkBoundedBySewn(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "100")

	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Jacket",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("40"), CutM: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}
	line := record.Fabrics[0]

	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnM: 7, DamagedCount: 1,
	}); err != nil {
		t.Fatalf("AddDailySewingRecord: %v", err)
	}

	// Shrinking m below the 7 already sewn is rejected whole.
	_, err = models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: variant.ID,
		YardUsed:        decimal.RequireFromString("40"),
		CutM:            5,
	})
	var limitErr *models.SewingLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected SewingLimitError; got %v", err)
	}
	if limitErr.Size != "m" || limitErr.Cut != 5 || limitErr.Sewn != 7 {
		t.Fatalf("unexpected limit error detail: %+v", limitErr)
	}
	fetched, err := models.GetCuttingRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetCuttingRecord: %v", err)
	}
	if fetched.Fabrics[0].CutM != 10 {
		t.Fatalf("rejected shrink must not change the line; got %+v", fetched.Fabrics[0])
	}

	// 7 fits the size but 7 sewn + 1 damaged does not fit the total of 7.
	_, err = models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: variant.ID,
		YardUsed:        decimal.RequireFromString("40"),
		CutM:            7,
	})
	if !errors.Is(err, models.ErrTotalCapacityExceeded) {
		t.Fatalf("expected ErrTotalCapacityExceeded; got %v", err)
	}

	// Shrinking to exactly sewn + damaged is the tightest valid correction.
	if _, err := models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: variant.ID,
		YardUsed:        decimal.RequireFromString("40"),
		CutM:            8,
	}); err != nil {
		t.Fatalf("UpdateCuttingRecordFabric (valid shrink): %v", err)
	}

	// The variant is frozen once sewing entries reference the line.
	other, err := models.AddFabricVariant(ctx, variant.FabricDefinitionId, &models.NewFabricVariant{
		Color:     "#FF0000",
		TotalYard: decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("AddFabricVariant: %v", err)
	}
	_, err = models.UpdateCuttingRecordFabric(ctx, line.ID, &models.UpdateCuttingRecordFabricInput{
		FabricVariantId: other.ID,
		YardUsed:        decimal.RequireFromString("40"),
		CutM:            8,
	})
	if !errors.Is(err, models.ErrHasSewingRecords) {
		t.Fatalf("expected ErrHasSewingRecords; got %v", err)
	}
}

func TestDeleteApprovedBatchRefused(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "60")

	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Apron",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("20"), CutM: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}

	// Approved with no sewing yet: the sewing guard alone would let the
	// delete through and strand the product row.
	if _, err := models.ApproveFinishedProduct(ctx, &models.ApproveFinishedProductInput{
		CuttingRecordId: record.ID,
	}); err != nil {
		t.Fatalf("ApproveFinishedProduct: %v", err)
	}

	if err := models.DeleteCuttingRecord(ctx, record.ID); !errors.Is(err, models.ErrBatchApproved) {
		t.Fatalf("expected ErrBatchApproved; got %v", err)
	}
	available, err := models.GetAvailableYard(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetAvailableYard: %v", err)
	}
	if available.Cmp(decimal.RequireFromString("40")) != 0 {
		t.Fatalf("refused delete must not move the ledger; got %s", available)
	}
}

func TestSewingLimits(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "50")

	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Dress",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("20"), CutM: 7, CutL: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}
	line := record.Fabrics[0]

	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnM: 5,
	}); err != nil {
		t.Fatalf("first sewing entry: %v", err)
	}

	// 5 sewn + 5 requested > 7 cut for size m.
	_, err = models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnM: 5,
	})
	var limitErr *models.SewingLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected SewingLimitError; got %v", err)
	}
	if limitErr.Size != "m" || limitErr.Cut != 7 || limitErr.Sewn != 5 {
		t.Fatalf("unexpected limit error detail: %+v", limitErr)
	}

	// The remaining 2 fit.
	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnM: 2,
	}); err != nil {
		t.Fatalf("remaining sewing entry: %v", err)
	}

	// Damaged pieces count against the line's total capacity of 11.
	_, err = models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnL: 4, DamagedCount: 1,
	})
	if !errors.Is(err, models.ErrTotalCapacityExceeded) {
		t.Fatalf("expected ErrTotalCapacityExceeded; got %v", err)
	}

	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnL: 3, DamagedCount: 1,
	}); err != nil {
		t.Fatalf("final sewing entry: %v", err)
	}

	totals, err := models.GetSewnTotals(ctx, line.ID)
	if err != nil {
		t.Fatalf("GetSewnTotals: %v", err)
	}
	if totals.SewnM != 7 || totals.SewnL != 3 || totals.DamagedCount != 1 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestApproveAndRecompute(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variant := seedFabricVariant(t, ctx, "80")

	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Hoodie",
		FabricDefinitionId: variant.FabricDefinitionId,
		Description:        "first hoodie run of the season",
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("40"), CutS: 10, CutM: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}
	line := record.Fabrics[0]

	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnS: 6, SewnM: 8,
	}); err != nil {
		t.Fatalf("AddDailySewingRecord: %v", err)
	}

	product, err := models.ApproveFinishedProduct(ctx, &models.ApproveFinishedProductInput{
		CuttingRecordId: record.ID,
		RetailPrice:     decimal.RequireFromString("25"),
		WholesalePrice:  decimal.RequireFromString("18"),
		Provisional:     true,
		Notes:           "sewing still in progress",
	})
	if err != nil {
		t.Fatalf("ApproveFinishedProduct: %v", err)
	}
	if product.TotalSewn != 14 || product.AvailableQty != 14 {
		t.Fatalf("expected 14 sewn/available; got sewn=%d available=%d", product.TotalSewn, product.AvailableQty)
	}
	if !product.Provisional || product.Notes != "sewing still in progress" {
		t.Fatalf("provisional flag or notes not recorded: %+v", product)
	}
	fetched, err := models.GetCuttingRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetCuttingRecord: %v", err)
	}
	if fetched.FabricDefinitionId != variant.FabricDefinitionId ||
		fetched.Description != "first hoodie run of the season" {
		t.Fatalf("batch fabric tie or description not recorded: %+v", fetched)
	}

	_, err = models.ApproveFinishedProduct(ctx, &models.ApproveFinishedProductInput{CuttingRecordId: record.ID})
	if !errors.Is(err, models.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved; got %v", err)
	}

	// Sewing after approval flows into the product in the same commit.
	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: line.ID, SewnS: 4,
	}); err != nil {
		t.Fatalf("post-approval sewing: %v", err)
	}
	product, err = models.GetFinishedProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetFinishedProduct: %v", err)
	}
	if product.TotalSewn != 18 {
		t.Fatalf("expected 18 sewn after new entry; got %d", product.TotalSewn)
	}

	// Recompute is idempotent.
	first, err := models.RecomputeFinishedProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("RecomputeFinishedProduct: %v", err)
	}
	second, err := models.RecomputeFinishedProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("RecomputeFinishedProduct (again): %v", err)
	}
	if first.TotalSewn != second.TotalSewn ||
		first.TotalPacked != second.TotalPacked ||
		first.AvailableQty != second.AvailableQty {
		t.Fatalf("recompute not idempotent: %+v vs %+v", first, second)
	}
}

// seedApprovedProduct builds a batch with `sewn` finished pieces (size m)
// and returns the approved product.
func seedApprovedProduct(t *testing.T, ctx context.Context, sewn int) *models.FinishedProduct {
	t.Helper()
	variant := seedFabricVariant(t, ctx, "500")
	record, err := models.CreateCuttingRecord(ctx, &models.NewCuttingRecord{
		ProductName:        "Work Shirt",
		FabricDefinitionId: variant.FabricDefinitionId,
		Fabrics: []models.NewCuttingRecordFabric{
			{FabricVariantId: variant.ID, YardUsed: decimal.RequireFromString("100"), CutM: sewn},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingRecord: %v", err)
	}
	if _, err := models.AddDailySewingRecord(ctx, &models.NewDailySewingRecord{
		CuttingRecordFabricId: record.Fabrics[0].ID, SewnM: sewn,
	}); err != nil {
		t.Fatalf("AddDailySewingRecord: %v", err)
	}
	product, err := models.ApproveFinishedProduct(ctx, &models.ApproveFinishedProductInput{
		CuttingRecordId: record.ID,
		RetailPrice:     decimal.RequireFromString("30"),
		WholesalePrice:  decimal.RequireFromString("20"),
	})
	if err != nil {
		t.Fatalf("ApproveFinishedProduct: %v", err)
	}
	return product
}

func TestPackingAvailability(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	product := seedApprovedProduct(t, ctx, 20)

	// 30 units cannot come out of 20 available.
	_, err := models.CreatePackingSession(ctx, &models.NewPackingSession{
		FinishedProductId: product.ID, PackOf12: 2, PackOf6: 1,
	})
	if !errors.Is(err, models.ErrInsufficientAvailable) {
		t.Fatalf("expected ErrInsufficientAvailable; got %v", err)
	}

	if _, err := models.CreatePackingSession(ctx, &models.NewPackingSession{
		FinishedProductId: product.ID, PackOf12: 1, PackOf6: 1,
	}); err != nil {
		t.Fatalf("CreatePackingSession: %v", err)
	}

	product, err = models.GetFinishedProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetFinishedProduct: %v", err)
	}
	if product.TotalPacked != 18 || product.AvailableQty != 2 {
		t.Fatalf("expected packed=18 available=2; got packed=%d available=%d",
			product.TotalPacked, product.AvailableQty)
	}

	inventory, err := models.GetPackingInventory(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetPackingInventory: %v", err)
	}
	if inventory.PackOf12 != 1 || inventory.PackOf6 != 1 || inventory.ExtraUnits != 0 {
		t.Fatalf("unexpected inventory: %+v", inventory)
	}
}

func TestOrderLifecycleAndPayments(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	product := seedApprovedProduct(t, ctx, 30)

	if _, err := models.CreatePackingSession(ctx, &models.NewPackingSession{
		FinishedProductId: product.ID, PackOf12: 2, PackOf6: 1,
	}); err != nil {
		t.Fatalf("CreatePackingSession: %v", err)
	}

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "City Mart"})
	if err != nil {
		t.Fatalf("CreateShop: %v", err)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ShopId: shop.ID,
		Items: []models.NewOrderItem{
			{FinishedProductId: product.ID, PackOf12: 2, PackOf6: 1},
		},
	}, models.TransitionPolicy{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// 30 units at the snapshotted wholesale price of 20.
	if order.TotalAmount.Cmp(decimal.RequireFromString("600")) != 0 {
		t.Fatalf("expected total 600; got %s", order.TotalAmount)
	}

	// The lines hold their stock from the moment the order is created.
	inventory, _ := models.GetPackingInventory(ctx, product.ID)
	if inventory.TotalUnits() != 0 {
		t.Fatalf("expected empty inventory after order creation; got %+v", inventory)
	}

	// Approval out of order is rejected.
	if _, err := models.ApproveOrder(ctx, order.ID, models.TransitionPolicy{}); err == nil {
		t.Fatal("expected state error approving a draft")
	}

	if _, err := models.SubmitOrder(ctx, order.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if _, err := models.ApproveOrder(ctx, order.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}

	order, err = models.GenerateInvoice(ctx, order.ID, models.TransitionPolicy{})
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}
	wantPrefix := "INV-" + time.Now().Format("20060102") + "-"
	if !strings.HasPrefix(order.InvoiceNumber, wantPrefix) {
		t.Fatalf("invoice number %q missing prefix %q", order.InvoiceNumber, wantPrefix)
	}

	order, err = models.MarkDelivered(ctx, order.ID, "left with the manager", 30, models.TransitionPolicy{})
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if order.DeliveredCount != 30 || order.DeliveryNotes != "left with the manager" {
		t.Fatalf("delivery fields not recorded: %+v", order)
	}

	// Partial payment moves the order to partially_paid.
	if _, err := models.RecordPayment(ctx, &models.NewPayment{
		OrderId: order.ID,
		Amount:  decimal.RequireFromString("250"),
		Method:  "cash",
	}); err != nil {
		t.Fatalf("RecordPayment (partial): %v", err)
	}
	order, _ = models.GetOrder(ctx, order.ID)
	if order.Status != models.OrderStatusPartiallyPaid {
		t.Fatalf("expected partially_paid; got %s", order.Status)
	}

	// Overpayment is rejected whole.
	_, err = models.RecordPayment(ctx, &models.NewPayment{
		OrderId: order.ID,
		Amount:  decimal.RequireFromString("400"),
		Method:  "cash",
	})
	if !errors.Is(err, models.ErrPaymentExceedsTotal) {
		t.Fatalf("expected ErrPaymentExceedsTotal; got %v", err)
	}

	if _, err := models.RecordPayment(ctx, &models.NewPayment{
		OrderId: order.ID,
		Amount:  decimal.RequireFromString("350"),
		Method:  "bank_transfer",
	}); err != nil {
		t.Fatalf("RecordPayment (final): %v", err)
	}

	order, _ = models.GetOrder(ctx, order.ID)
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("expected paid; got %s", order.Status)
	}
	_, paid, balance, err := models.GetOrderBalance(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrderBalance: %v", err)
	}
	if paid.Cmp(decimal.RequireFromString("600")) != 0 || !balance.IsZero() {
		t.Fatalf("expected paid=600 balance=0; got paid=%s balance=%s", paid, balance)
	}

	method, err := models.GetLatestPaymentMethod(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetLatestPaymentMethod: %v", err)
	}
	if method != models.PaymentMethodBankTransfer {
		t.Fatalf("expected bank_transfer; got %s", method)
	}
}

func TestOrderShortfallWithProductionFulfillment(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	product := seedApprovedProduct(t, ctx, 30)

	// Only 12 units packed; the order wants 24.
	if _, err := models.CreatePackingSession(ctx, &models.NewPackingSession{
		FinishedProductId: product.ID, PackOf12: 1,
	}); err != nil {
		t.Fatalf("CreatePackingSession: %v", err)
	}

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "Night Market Stall"})
	if err != nil {
		t.Fatalf("CreateShop: %v", err)
	}
	// A strict order fails on the shortage and nothing is written.
	_, err = models.CreateOrder(ctx, &models.NewOrder{
		ShopId: shop.ID,
		Items:  []models.NewOrderItem{{FinishedProductId: product.ID, PackOf12: 2}},
	}, models.TransitionPolicy{})
	if !errors.Is(err, models.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory; got %v", err)
	}
	inventory, _ := models.GetPackingInventory(ctx, product.ID)
	if inventory.PackOf12 != 1 {
		t.Fatalf("rejected order must not move inventory; got %+v", inventory)
	}

	// Production fulfillment takes what is on hand and records the rest.
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ShopId: shop.ID,
		Items:  []models.NewOrderItem{{FinishedProductId: product.ID, PackOf12: 2}},
	}, models.TransitionPolicy{AllowProductionFulfillment: true})
	if err != nil {
		t.Fatalf("CreateOrder (production): %v", err)
	}
	item := order.Items[0]
	if item.DeductedPackOf12 != 1 || item.ShortfallUnits != 12 {
		t.Fatalf("expected deducted=1 pack, shortfall=12 units; got %+v", item)
	}
	// The full requested quantity is still billed.
	if order.TotalAmount.Cmp(decimal.RequireFromString("480")) != 0 {
		t.Fatalf("expected total 480; got %s", order.TotalAmount)
	}
}

func TestRevertRestoresInventory(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	product := seedApprovedProduct(t, ctx, 30)

	if _, err := models.CreatePackingSession(ctx, &models.NewPackingSession{
		FinishedProductId: product.ID, PackOf12: 2,
	}); err != nil {
		t.Fatalf("CreatePackingSession: %v", err)
	}

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "Corner Store"})
	if err != nil {
		t.Fatalf("CreateShop: %v", err)
	}
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ShopId: shop.ID,
		Items:  []models.NewOrderItem{{FinishedProductId: product.ID, PackOf12: 2}},
	}, models.TransitionPolicy{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	inventory, _ := models.GetPackingInventory(ctx, product.ID)
	if inventory.PackOf12 != 0 {
		t.Fatalf("expected inventory drained; got %+v", inventory)
	}

	if _, err := models.SubmitOrder(ctx, order.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if _, err := models.ApproveOrder(ctx, order.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}

	if err := models.RevertOrder(ctx, order.ID); err != nil {
		t.Fatalf("RevertOrder: %v", err)
	}
	if _, err := models.GetOrder(ctx, order.ID); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected reverted order to be gone; got %v", err)
	}

	inventory, _ = models.GetPackingInventory(ctx, product.ID)
	if inventory.PackOf12 != 2 {
		t.Fatalf("expected 2 twelve-packs restored; got %+v", inventory)
	}

	// Restoring inventory must not distort the product aggregates.
	product, err = models.GetFinishedProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetFinishedProduct: %v", err)
	}
	if product.TotalPacked != 24 || product.AvailableQty != 6 {
		t.Fatalf("expected packed=24 available=6 after revert; got packed=%d available=%d",
			product.TotalPacked, product.AvailableQty)
	}

	// An order with payments cannot be reverted.
	order2, err := models.CreateOrder(ctx, &models.NewOrder{
		ShopId: shop.ID,
		Items:  []models.NewOrderItem{{FinishedProductId: product.ID, PackOf12: 1}},
	}, models.TransitionPolicy{})
	if err != nil {
		t.Fatalf("CreateOrder (second): %v", err)
	}
	if _, err := models.SubmitOrder(ctx, order2.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("SubmitOrder (second): %v", err)
	}
	if _, err := models.ApproveOrder(ctx, order2.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("ApproveOrder (second): %v", err)
	}
	if _, err := models.GenerateInvoice(ctx, order2.ID, models.TransitionPolicy{}); err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}
	if _, err := models.RecordPayment(ctx, &models.NewPayment{
		OrderId: order2.ID,
		Amount:  decimal.RequireFromString("100"),
		Method:  "cash",
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if err := models.RevertOrder(ctx, order2.ID); !errors.Is(err, models.ErrOrderHasPayments) {
		t.Fatalf("expected ErrOrderHasPayments; got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("garment-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("garment-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=garment_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
