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

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/models"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: saving an allocation set must replace the previous set wholesale.
// A save that appended instead of replacing once left documents summing past
// 100 after a target was removed in the UI.
func TestReplaceAllocations_ReplacesWholesale(t *testing.T) {
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

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetBusinessIdInContext(ctx, "biz-alloc-test")

	first, err := models.EvenSplit([]models.AllocationTargetInput{
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-a"},
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-b"},
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-c"},
	})
	if err != nil {
		t.Fatalf("EvenSplit: %v", err)
	}
	saved, err := models.ReplaceAllocations(ctx, models.AllocationReferenceTypeInvoice, 1, first)
	if err != nil {
		t.Fatalf("ReplaceAllocations(first): %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("expected 3 saved allocations, got %d", len(saved))
	}

	// Second save drops proj-c and rebalances. The old rows must be gone,
	// not accumulated alongside the new ones.
	second := []models.NewAllocation{
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-a", Percentage: decimal.NewFromInt(70)},
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-b", Percentage: decimal.NewFromInt(30)},
	}
	if _, err := models.ReplaceAllocations(ctx, models.AllocationReferenceTypeInvoice, 1, second); err != nil {
		t.Fatalf("ReplaceAllocations(second): %v", err)
	}

	loaded, err := models.GetAllocations(ctx, models.AllocationReferenceTypeInvoice, 1)
	if err != nil {
		t.Fatalf("GetAllocations: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 allocations after replace, got %d", len(loaded))
	}
	if loaded[0].TargetId != "proj-a" || loaded[1].TargetId != "proj-b" {
		t.Fatalf("expected submission order preserved, got %s, %s", loaded[0].TargetId, loaded[1].TargetId)
	}
	if loaded[0].SortOrder != 0 || loaded[1].SortOrder != 1 {
		t.Fatalf("expected sort orders 0,1 got %d,%d", loaded[0].SortOrder, loaded[1].SortOrder)
	}
	if !loaded[0].Percentage.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected proj-a at 70%%, got %s", loaded[0].Percentage)
	}

	// An over-allocated submission is rejected before any row is touched.
	over := []models.NewAllocation{
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-a", Percentage: decimal.NewFromInt(60)},
		{TargetType: models.AllocationTargetTypeProject, TargetId: "proj-b", Percentage: decimal.RequireFromString("40.01")},
	}
	_, err = models.ReplaceAllocations(ctx, models.AllocationReferenceTypeInvoice, 1, over)
	var overAlloc *models.OverAllocationError
	if !errors.As(err, &overAlloc) {
		t.Fatalf("expected OverAllocationError, got %v", err)
	}
	loaded, err = models.GetAllocations(ctx, models.AllocationReferenceTypeInvoice, 1)
	if err != nil {
		t.Fatalf("GetAllocations after rejected save: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("rejected save must leave existing rows intact, got %d rows", len(loaded))
	}

	// An empty submission clears the set entirely.
	if _, err := models.ReplaceAllocations(ctx, models.AllocationReferenceTypeInvoice, 1, nil); err != nil {
		t.Fatalf("ReplaceAllocations(empty): %v", err)
	}
	loaded, err = models.GetAllocations(ctx, models.AllocationReferenceTypeInvoice, 1)
	if err != nil {
		t.Fatalf("GetAllocations after clear: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no allocations after clearing, got %d", len(loaded))
	}

	// Another business saving against the same reference id never collides.
	otherCtx := utils.SetBusinessIdInContext(context.Background(), "biz-other")
	if _, err := models.ReplaceAllocations(otherCtx, models.AllocationReferenceTypeInvoice, 1, second); err != nil {
		t.Fatalf("ReplaceAllocations(other business): %v", err)
	}
	loaded, err = models.GetAllocations(ctx, models.AllocationReferenceTypeInvoice, 1)
	if err != nil {
		t.Fatalf("GetAllocations cross-business: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("business scoping leak: saw %d rows from another business", len(loaded))
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("crm-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("crm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=crm_test",
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
