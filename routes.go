package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/middlewares"
	"bitbucket.org/mmdatafocus/garment_backend/models"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/gin-gonic/gin"
)

func registerRoutes(r *gin.Engine) {
	r.POST("/api/auth/login", loginHandler)

	api := r.Group("/api", middlewares.RequireAuth())

	admin := api.Group("", middlewares.RequireRole(
		string(models.UserRoleAdmin), string(models.UserRoleOwner)))
	admin.POST("/auth/register", registerHandler)

	api.POST("/suppliers", createSupplierHandler)
	api.GET("/suppliers", listSuppliersHandler)

	api.POST("/fabrics", createFabricDefinitionHandler)
	api.GET("/fabrics", listFabricDefinitionsHandler)
	api.GET("/fabrics/:id", getFabricDefinitionHandler)
	api.POST("/fabrics/:id/variants", addFabricVariantHandler)

	api.POST("/cutting-records", createCuttingRecordHandler)
	api.GET("/cutting-records", listCuttingRecordsHandler)
	api.GET("/cutting-records/:id", getCuttingRecordHandler)
	api.POST("/cutting-records/:id/fabrics", addCuttingRecordFabricHandler)
	api.PUT("/cutting-fabrics/:id", updateCuttingRecordFabricHandler)
	api.DELETE("/cutting-fabrics/:id", deleteCuttingRecordFabricHandler)
	api.DELETE("/cutting-records/:id", deleteCuttingRecordHandler)

	api.POST("/sewing-records", addDailySewingRecordHandler)
	api.GET("/cutting-fabrics/:id/sewing", listSewingHistoryHandler)
	api.GET("/cutting-fabrics/:id/sewn-totals", getSewnTotalsHandler)
	api.GET("/sewing/today", getTodaySewingCountHandler)

	admin.POST("/finished-products", approveFinishedProductHandler)
	api.GET("/finished-products", listFinishedProductsHandler)
	api.GET("/finished-products/:id", getFinishedProductHandler)
	admin.PUT("/finished-products/:id/prices", updateFinishedProductPricesHandler)
	admin.POST("/finished-products/:id/recompute", recomputeFinishedProductHandler)
	api.POST("/finished-products/:id/images", uploadProductImageHandler)
	api.DELETE("/product-images/:id", deleteProductImageHandler)

	api.POST("/packing-sessions", createPackingSessionHandler)
	api.GET("/packing-sessions", listPackingSessionsHandler)
	api.GET("/packing-inventory", listPackingInventoriesHandler)
	api.GET("/finished-products/:id/packing-inventory", getPackingInventoryHandler)

	api.POST("/shops", createShopHandler)
	api.GET("/shops", listShopsHandler)

	api.POST("/orders", createOrderHandler)
	api.GET("/orders", listOrdersHandler)
	api.GET("/orders/:id", getOrderHandler)
	api.POST("/orders/:id/items", addOrderItemHandler)
	api.POST("/orders/:id/submit", submitOrderHandler)
	admin.POST("/orders/:id/approve", approveOrderHandler)
	admin.POST("/orders/:id/invoice", generateInvoiceHandler)
	api.POST("/orders/:id/deliver", markDeliveredHandler)
	admin.POST("/orders/:id/revert", revertOrderHandler)
	api.GET("/orders/:id/balance", getOrderBalanceHandler)

	api.POST("/payments", recordPaymentHandler)
	api.GET("/orders/:id/payments", listPaymentsHandler)
	api.GET("/orders/overdue-credit", listOverdueCreditOrdersHandler)

	api.GET("/reports/packing", productPackingReportHandler)
	api.GET("/reports/sales", salesSummaryHandler)
	api.GET("/reports/sales/export", exportSalesReportHandler)

	api.GET("/histories", listHistoriesHandler)
}

// httpStatusForError maps model errors to HTTP statuses. Conservation
// failures are client errors: the request asked for more than the ledgers
// hold.
func httpStatusForError(err error) int {
	var stateErr *models.InvalidStateTransitionError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case models.IsConservationError(err),
		errors.Is(err, models.ErrAlreadyApproved),
		errors.Is(err, models.ErrBatchApproved),
		errors.Is(err, models.ErrHasSewingRecords),
		errors.Is(err, models.ErrOrderHasPayments),
		errors.As(err, &stateErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := httpStatusForError(err)
	if status == http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func abortBindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func loginHandler(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	token, user, err := models.Authenticate(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func registerHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func listSuppliersHandler(c *gin.Context) {
	suppliers, err := models.ListSuppliers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func createFabricDefinitionHandler(c *gin.Context) {
	var input models.NewFabricDefinition
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	definition, err := models.CreateFabricDefinition(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, definition)
}

func listFabricDefinitionsHandler(c *gin.Context) {
	definitions, err := models.ListFabricDefinitions(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, definitions)
}

func getFabricDefinitionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	definition, err := models.GetFabricDefinition(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, definition)
}

func addFabricVariantHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewFabricVariant
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	variant, err := models.AddFabricVariant(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, variant)
}

func createCuttingRecordHandler(c *gin.Context) {
	var input models.NewCuttingRecord
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	record, err := models.CreateCuttingRecord(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func listCuttingRecordsHandler(c *gin.Context) {
	records, err := models.ListCuttingRecords(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func getCuttingRecordHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	record, err := models.GetCuttingRecord(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func addCuttingRecordFabricHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewCuttingRecordFabric
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	line, err := models.AddCuttingRecordFabric(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func updateCuttingRecordFabricHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.UpdateCuttingRecordFabricInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	line, err := models.UpdateCuttingRecordFabric(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func deleteCuttingRecordFabricHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteCuttingRecordFabric(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteCuttingRecordHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteCuttingRecord(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func addDailySewingRecordHandler(c *gin.Context) {
	var input models.NewDailySewingRecord
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	record, err := models.AddDailySewingRecord(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func listSewingHistoryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	records, err := models.ListSewingHistory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func getSewnTotalsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	totals, err := models.GetSewnTotals(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func getTodaySewingCountHandler(c *gin.Context) {
	count, err := models.GetTodaySewingCount(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_sewn_today": count})
}

func approveFinishedProductHandler(c *gin.Context) {
	var input models.ApproveFinishedProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	product, err := models.ApproveFinishedProduct(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listFinishedProductsHandler(c *gin.Context) {
	products, err := models.ListFinishedProducts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getFinishedProductHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	product, err := models.GetFinishedProduct(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func updateFinishedProductPricesHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.UpdateFinishedProductPricesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	product, err := models.UpdateFinishedProductPrices(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func recomputeFinishedProductHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	product, err := models.RecomputeFinishedProduct(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func deleteProductImageHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteProductImage(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func createPackingSessionHandler(c *gin.Context) {
	var input models.NewPackingSession
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	session, err := models.CreatePackingSession(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func listPackingSessionsHandler(c *gin.Context) {
	productId, _ := strconv.Atoi(c.Query("product_id"))
	sessions, err := models.ListPackingSessions(c.Request.Context(), productId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func listPackingInventoriesHandler(c *gin.Context) {
	inventories, err := models.ListPackingInventories(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventories)
}

func getPackingInventoryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	inventory, err := models.GetPackingInventory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

func createShopHandler(c *gin.Context) {
	var input models.NewShop
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	shop, err := models.CreateShop(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shop)
}

func listShopsHandler(c *gin.Context) {
	shops, err := models.ListShops(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, shops)
}

func createOrderHandler(c *gin.Context) {
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	order, err := models.CreateOrder(c.Request.Context(), &input, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func listOrdersHandler(c *gin.Context) {
	orders, err := models.ListOrders(c.Request.Context(), c.Query("status"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func getOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := models.GetOrder(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func addOrderItemHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewOrderItem
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	item, err := models.AddOrderItem(c.Request.Context(), id, &input, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func transitionPolicyFromRequest(c *gin.Context) models.TransitionPolicy {
	role, _ := utils.GetUserRoleFromContext(c.Request.Context())
	return models.TransitionPolicy{
		BypassStateChecks:          c.Query("bypass_state_checks") == "true" && role == string(models.UserRoleOwner),
		AllowProductionFulfillment: c.Query("allow_production") == "true",
	}
}

func submitOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := models.SubmitOrder(c.Request.Context(), id, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func approveOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := models.ApproveOrder(c.Request.Context(), id, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func generateInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := models.GenerateInvoice(c.Request.Context(), id, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func markDeliveredHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input struct {
		Notes          string `json:"notes"`
		DeliveredCount int    `json:"delivered_count"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			abortBindError(c, err)
			return
		}
	}
	order, err := models.MarkDelivered(c.Request.Context(), id,
		input.Notes, input.DeliveredCount, transitionPolicyFromRequest(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func revertOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.RevertOrder(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getOrderBalanceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	total, paid, balance, err := models.GetOrderBalance(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	method, err := models.GetLatestPaymentMethod(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_amount":          total,
		"total_paid":            paid,
		"balance":               balance,
		"latest_payment_method": method,
	})
}

func recordPaymentHandler(c *gin.Context) {
	var input models.NewPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		abortBindError(c, err)
		return
	}
	payment, err := models.RecordPayment(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func listPaymentsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	payments, err := models.ListPayments(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func listOverdueCreditOrdersHandler(c *gin.Context) {
	orders, err := models.ListOverdueCreditOrders(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func productPackingReportHandler(c *gin.Context) {
	rows, err := models.GetProductPackingReport(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func reportPeriod(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, fmt.Errorf("invalid from date: %w", err)
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, fmt.Errorf("invalid to date: %w", err)
		}
	}
	return from, to, nil
}

func salesSummaryHandler(c *gin.Context) {
	from, to, err := reportPeriod(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := models.GetSalesSummary(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func exportSalesReportHandler(c *gin.Context) {
	from, to, err := reportPeriod(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "export-sales-report")
	defer span.End()
	file, err := models.ExportSalesReportXLSX(ctx, from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="sales-report.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		c.Error(err)
	}
}

func listHistoriesHandler(c *gin.Context) {
	referenceType := c.Query("reference_type")
	referenceId, _ := strconv.Atoi(c.Query("reference_id"))
	histories, err := models.GetHistories(c.Request.Context(), referenceType, referenceId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, histories)
}
