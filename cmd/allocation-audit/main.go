// Command allocation-audit scans saved allocation sets and reports any
// whose percentages sum above 100. Validation prevents this on the write
// path, so a hit here means a manual data edit or a legacy import.
package main

import (
	"fmt"
	"os"

	"github.com/quantabooks/crm_backend/config"
	"github.com/shopspring/decimal"
)

type allocationGroup struct {
	BusinessId    string
	ReferenceType string
	ReferenceId   int
	Count         int
	TotalPct      decimal.Decimal
}

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	logger := config.GetLogger()

	var groups []allocationGroup
	err := db.Table("allocations").
		Select("business_id, reference_type, reference_id, COUNT(*) AS count, SUM(percentage) AS total_pct").
		Group("business_id, reference_type, reference_id").
		Having("SUM(percentage) > ?", decimal.NewFromInt(100)).
		Order("business_id, reference_type, reference_id").
		Scan(&groups).Error
	if err != nil {
		config.LogError(logger, "main.go", "main", "audit query failed", nil, err)
		os.Exit(1)
	}

	if len(groups) == 0 {
		fmt.Println("no over-allocated documents found")
		return
	}

	for _, g := range groups {
		fmt.Printf("business=%s %s/%d: %d allocations summing to %s%%\n",
			g.BusinessId, g.ReferenceType, g.ReferenceId, g.Count, g.TotalPct.String())
	}
	os.Exit(2)
}
