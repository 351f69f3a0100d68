package models_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/models"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: the expense row and its allocation rows must commit in one
// transaction. A failed allocation insert once left the expense persisted
// with no allocation set while the caller saw an error.
func TestCreateExpense_AllocationFailureRollsBackDocument(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "crm_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetBusinessIdInContext(ctx, "biz-expense-atomicity")

	// Service targets skip project-key validation, so an oversized target id
	// survives until the allocation INSERT fails on the column limit. That
	// failure must take the expense row down with it.
	oversizedTarget := strings.Repeat("x", 80)
	_, err := models.CreateExpense(ctx, &models.NewExpense{
		ExpenseDate:  time.Now().UTC(),
		SupplierName: "Hosting Co",
		Amount:       decimal.NewFromInt(100),
		Allocations: []models.NewAllocation{
			{TargetType: models.AllocationTargetTypeService, TargetId: oversizedTarget, Percentage: decimal.NewFromInt(100)},
		},
	})
	if err == nil {
		t.Fatalf("expected allocation insert failure to surface")
	}

	expenses, err := models.GetExpenses(ctx)
	if err != nil {
		t.Fatalf("GetExpenses: %v", err)
	}
	if len(expenses) != 0 {
		t.Fatalf("failed allocation save must roll back the expense, found %d rows", len(expenses))
	}

	// A valid submission still persists both sides together.
	expense, err := models.CreateExpense(ctx, &models.NewExpense{
		ExpenseDate:  time.Now().UTC(),
		SupplierName: "Hosting Co",
		Amount:       decimal.NewFromInt(100),
		Allocations: []models.NewAllocation{
			{TargetType: models.AllocationTargetTypeService, TargetId: "managed-hosting", Percentage: decimal.NewFromInt(100)},
		},
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	allocations, err := models.GetAllocations(ctx, models.AllocationReferenceTypeExpense, expense.ID)
	if err != nil {
		t.Fatalf("GetAllocations: %v", err)
	}
	if len(allocations) != 1 || allocations[0].TargetId != "managed-hosting" {
		t.Fatalf("expected one allocation row for the expense, got %v", allocations)
	}
}
