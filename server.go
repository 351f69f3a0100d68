package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/middlewares"
	"github.com/quantabooks/crm_backend/models"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("quantabooks-crm")

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	router := buildRouter()

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Connect after the server is listening so the container becomes ready fast.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func buildRouter() *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middlewares.CorrelationMiddleware())
	router.Use(middlewares.AuthMiddleware())

	router.GET("/healthz", healthHandler)

	api := router.Group("/api")
	{
		// Pure calculation previews. Safe to call on every keystroke: no DB,
		// no state, same inputs always produce the same response body.
		api.POST("/documents/totals", previewDocumentTotalsHandler)
		api.POST("/allocations/even-split", evenSplitHandler)
		api.POST("/allocations/proportional-split", proportionalSplitHandler)

		api.GET("/allocations/:refType/:refId", getAllocationsHandler)
		api.PUT("/allocations/:refType/:refId", replaceAllocationsHandler)

		api.POST("/invoices", createInvoiceHandler)
		api.GET("/invoices", listInvoicesHandler)
		api.GET("/invoices/:id", getInvoiceHandler)
		api.PUT("/invoices/:id", updateInvoiceHandler)
		api.POST("/invoices/:id/void", voidInvoiceHandler)

		api.POST("/quotes", createQuoteHandler)
		api.GET("/quotes", listQuotesHandler)
		api.GET("/quotes/:id", getQuoteHandler)
		api.POST("/quotes/:id/convert", convertQuoteHandler)

		api.POST("/expenses", createExpenseHandler)
		api.GET("/expenses", listExpensesHandler)
		api.GET("/expenses/:id", getExpenseHandler)
		api.PUT("/expenses/:id", updateExpenseHandler)
		api.DELETE("/expenses/:id", deleteExpenseHandler)

		api.POST("/payments", createPaymentHandler)
		api.GET("/payments", listPaymentsHandler)
		api.GET("/payments/:id", getPaymentHandler)
		api.DELETE("/payments/:id", deletePaymentHandler)

		api.POST("/taxes", createTaxHandler)
		api.GET("/taxes", listTaxesHandler)
		api.GET("/taxes/:id", getTaxHandler)
		api.PUT("/taxes/:id", updateTaxHandler)
		api.DELETE("/taxes/:id", deleteTaxHandler)

		api.POST("/projects", createProjectHandler)
		api.GET("/projects", listProjectsHandler)
		api.GET("/projects/:id", getProjectHandler)

		api.POST("/customers", createCustomerHandler)
		api.GET("/customers", listCustomersHandler)
		api.GET("/customers/:id", getCustomerHandler)
		api.PUT("/customers/:id", updateCustomerHandler)
	}

	return router
}

// healthHandler reports readiness of the backing stores. Liveness is implied
// by answering at all; a degraded dependency turns the status without failing
// the request, so orchestrators can distinguish starting from broken.
func healthHandler(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	redisStatus := "ok"

	if db := config.GetDB(); db == nil {
		dbStatus = "connecting"
		status = http.StatusServiceUnavailable
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if rdb := config.GetRedisDB(); rdb == nil {
		redisStatus = "connecting"
		status = http.StatusServiceUnavailable
	} else if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
		redisStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"database": dbStatus, "redis": redisStatus})
}

/* error mapping */

// respondError maps model errors onto HTTP statuses. Typed calculation and
// validation errors become 422s with a structured body the UI can render
// inline; everything else is a plain message.
func respondError(c *gin.Context, err error) {
	logger := config.GetLogger()

	var invalidInput *models.InvalidInputError
	if errors.As(err, &invalidInput) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": invalidInput.Error(),
			"field": invalidInput.Field,
		})
		return
	}

	var overAllocation *models.OverAllocationError
	if errors.As(err, &overAllocation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": overAllocation.Error(),
			"sum":   overAllocation.Sum,
		})
		return
	}

	var emptyTarget *models.EmptyTargetError
	if errors.As(err, &emptyTarget) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    emptyTarget.Error(),
			"position": emptyTarget.Position,
		})
		return
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}

	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	config.LogError(logger, "server.go", "respondError", "request failed", nil, err)
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

/* calculation previews */

type totalsPreviewRequest struct {
	Details       []models.NewLineItem    `json:"details" binding:"required"`
	DiscountType  *models.DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal         `json:"discount_value"`
	DepositType   *models.DepositType     `json:"deposit_type"`
	DepositValue  decimal.Decimal         `json:"deposit_value"`
	DocumentTaxes []models.NewDocumentTax `json:"document_taxes"`
}

func previewDocumentTotalsHandler(c *gin.Context) {
	_, span := tracer.Start(c.Request.Context(), "previewDocumentTotals")
	defer span.End()

	var req totalsPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err)
		return
	}

	items, err := models.BuildLineItems(req.Details)
	if err != nil {
		respondError(c, err)
		return
	}
	totals, err := models.CalculateDocumentTotals(items,
		models.DiscountInput{Type: req.DiscountType, Value: req.DiscountValue},
		req.DocumentTaxes,
		models.DepositInput{Type: req.DepositType, Value: req.DepositValue},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

type splitRequest struct {
	Targets      []models.AllocationTargetInput `json:"targets" binding:"required"`
	SourceAmount *decimal.Decimal               `json:"source_amount"`
}

func evenSplitHandler(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err)
		return
	}
	allocations, err := models.EvenSplit(req.Targets)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSplit(c, allocations, req.SourceAmount)
}

func proportionalSplitHandler(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err)
		return
	}
	allocations, err := models.ProportionalSplit(req.Targets)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSplit(c, allocations, req.SourceAmount)
}

func respondSplit(c *gin.Context, allocations []models.NewAllocation, sourceAmount *decimal.Decimal) {
	response := gin.H{"allocations": allocations}
	if sourceAmount != nil {
		response["amounts"] = models.AllocationAmounts(*sourceAmount, allocations)
	}
	c.JSON(http.StatusOK, response)
}

/* allocations */

func allocationRef(c *gin.Context) (models.AllocationReferenceType, int, bool) {
	refType, err := models.ParseAllocationReferenceType(c.Param("refType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", 0, false
	}
	refId, err := strconv.Atoi(c.Param("refId"))
	if err != nil || refId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference id"})
		return "", 0, false
	}
	return refType, refId, true
}

func getAllocationsHandler(c *gin.Context) {
	refType, refId, ok := allocationRef(c)
	if !ok {
		return
	}
	allocations, err := models.GetAllocations(c.Request.Context(), refType, refId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, allocations)
}

func replaceAllocationsHandler(c *gin.Context) {
	refType, refId, ok := allocationRef(c)
	if !ok {
		return
	}
	var input []models.NewAllocation
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	allocations, err := models.ReplaceAllocations(c.Request.Context(), refType, refId, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, allocations)
}

/* invoices */

func createInvoiceHandler(c *gin.Context) {
	var input models.NewInvoice
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	invoice, err := models.CreateInvoice(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func listInvoicesHandler(c *gin.Context) {
	var customerId *int
	if v := c.Query("customer_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer_id"})
			return
		}
		customerId = &id
	}
	invoices, err := models.GetInvoices(c.Request.Context(), customerId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func getInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	invoice, err := models.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func updateInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewInvoice
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	invoice, err := models.UpdateInvoice(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func voidInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	invoice, err := models.VoidInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

/* quotes */

func createQuoteHandler(c *gin.Context) {
	var input models.NewQuote
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	quote, err := models.CreateQuote(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quote)
}

func listQuotesHandler(c *gin.Context) {
	quotes, err := models.GetQuotes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func getQuoteHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	quote, err := models.GetQuote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func convertQuoteHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	invoice, err := models.ConvertQuoteToInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

/* expenses */

func createExpenseHandler(c *gin.Context) {
	var input models.NewExpense
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	expense, err := models.CreateExpense(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func listExpensesHandler(c *gin.Context) {
	expenses, err := models.GetExpenses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func getExpenseHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	expense, err := models.GetExpense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func updateExpenseHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewExpense
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	expense, err := models.UpdateExpense(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func deleteExpenseHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	expense, err := models.DeleteExpense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

/* payments */

func createPaymentHandler(c *gin.Context) {
	var input models.NewPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	payment, err := models.CreatePayment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func listPaymentsHandler(c *gin.Context) {
	var invoiceId *int
	if v := c.Query("invoice_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice_id"})
			return
		}
		invoiceId = &id
	}
	payments, err := models.GetPayments(c.Request.Context(), invoiceId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func getPaymentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	payment, err := models.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func deletePaymentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	payment, err := models.DeletePayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

/* taxes */

func createTaxHandler(c *gin.Context) {
	var input models.NewTax
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	tax, err := models.CreateTax(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tax)
}

func listTaxesHandler(c *gin.Context) {
	taxes, err := models.GetTaxes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taxes)
}

func getTaxHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	tax, err := models.GetTax(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tax)
}

func updateTaxHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewTax
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	tax, err := models.UpdateTax(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tax)
}

func deleteTaxHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	tax, err := models.DeleteTax(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tax)
}

/* projects */

func createProjectHandler(c *gin.Context) {
	var input models.NewProject
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	project, err := models.CreateProject(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func listProjectsHandler(c *gin.Context) {
	projects, err := models.GetProjects(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func getProjectHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	project, err := models.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

/* customers */

func createCustomerHandler(c *gin.Context) {
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func listCustomersHandler(c *gin.Context) {
	customers, err := models.GetCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func getCustomerHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	customer, err := models.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func updateCustomerHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	customer, err := models.UpdateCustomer(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}
