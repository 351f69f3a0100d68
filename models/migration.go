package models

import (
	"log"

	"github.com/quantabooks/crm_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Customer{}, &Project{}, &Tax{},
		&Invoice{}, &InvoiceDetail{}, &InvoiceDetailTax{}, &InvoiceDocumentTax{},
		&Quote{}, &QuoteDetail{}, &QuoteDetailTax{}, &QuoteDocumentTax{},
		&Expense{},
		&Payment{},
		&Allocation{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
