package models_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/models"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: tax rate reads go through the redis cache, and every write path
// must invalidate it. A stale cached rate silently mispriced document taxes.
func TestGetTax_CachesUntilInvalidatedByUpdate(t *testing.T) {
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

	ctx = utils.SetBusinessIdInContext(ctx, "biz-tax-cache")

	created, err := models.CreateTax(ctx, &models.NewTax{Name: "VAT", Rate: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("CreateTax: %v", err)
	}

	// First read populates the cache.
	got, err := models.GetTax(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTax: %v", err)
	}
	if !got.Rate.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected rate 5, got %s", got.Rate)
	}

	// Change the row behind the cache's back: the next read must come from
	// the cache, proving reads go through it.
	db := config.GetDB()
	if err := db.Model(&models.Tax{}).Where("id = ?", created.ID).Update("rate", decimal.NewFromInt(7)).Error; err != nil {
		t.Fatalf("raw rate update: %v", err)
	}
	got, err = models.GetTax(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTax(cached): %v", err)
	}
	if !got.Rate.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected cached rate 5, got %s", got.Rate)
	}

	// UpdateTax invalidates; the read after it sees the new rate.
	if _, err := models.UpdateTax(ctx, created.ID, &models.NewTax{Name: "VAT", Rate: decimal.NewFromInt(9)}); err != nil {
		t.Fatalf("UpdateTax: %v", err)
	}
	got, err = models.GetTax(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTax(after update): %v", err)
	}
	if !got.Rate.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected invalidated cache to serve rate 9, got %s", got.Rate)
	}
}
