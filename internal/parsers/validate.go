package parsers

import (
	"fmt"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/logger"
)

// MaxReportedErrors caps the error list returned by validation. Rows past the
// cap are still counted; a trailing notice records the overflow.
const MaxReportedErrors = 500

// ValidationResult is the outcome of validating the six parsed tables.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Errors   []RowError     `json:"errors"`
	Warnings []RowError     `json:"warnings"`
	Summary  map[string]int `json:"summary"`
}

// Validate runs dataset-level checks on top of the row errors collected
// during parsing. Parse errors are fatal; referential gaps and an empty
// credit notes table are warnings.
func Validate(dataset *models.Dataset, parseErrors []RowError) *ValidationResult {
	log := logger.GetGlobalLogger().WithComponent("validator")

	result := &ValidationResult{
		Errors:   append([]RowError(nil), parseErrors...),
		Warnings: []RowError{},
		Summary:  map[string]int{},
	}

	checkDuplicates(result, TableAccounts, "account_id", len(dataset.Accounts), func(i int) string {
		return dataset.Accounts[i].AccountID
	})
	checkDuplicates(result, TableCustomers, "customer_id", len(dataset.Customers), func(i int) string {
		return dataset.Customers[i].CustomerID
	})
	checkDuplicates(result, TableSubscriptions, "subscription_id", len(dataset.Subscriptions), func(i int) string {
		return dataset.Subscriptions[i].SubscriptionID
	})
	checkDuplicates(result, TableInvoices, "invoice_id", len(dataset.Invoices), func(i int) string {
		return dataset.Invoices[i].InvoiceID
	})
	checkDuplicates(result, TablePayments, "payment_id", len(dataset.Payments), func(i int) string {
		return dataset.Payments[i].PaymentID
	})
	checkDuplicates(result, TableCreditNotes, "credit_note_id", len(dataset.CreditNotes), func(i int) string {
		return dataset.CreditNotes[i].CreditNoteID
	})

	// Referential gaps are warnings: the engine tolerates orphans and reports
	// them as UNKNOWN exposure or exclusions downstream.
	for i, s := range dataset.Subscriptions {
		if _, ok := dataset.AccountsByID[s.AccountID]; !ok {
			result.Warnings = append(result.Warnings, RowError{
				File: TableSubscriptions, Row: i + 1, Field: "account_id",
				Message: fmt.Sprintf("account %q not found in accounts table", s.AccountID),
			})
		}
		if s.MRR.IsNegative() {
			result.Warnings = append(result.Warnings, RowError{
				File: TableSubscriptions, Row: i + 1, Field: "mrr",
				Message: "negative mrr; subscription will be excluded from analysis",
			})
		}
		if s.EndDate.Before(s.StartDate) {
			result.Warnings = append(result.Warnings, RowError{
				File: TableSubscriptions, Row: i + 1, Field: "end_date",
				Message: "end_date precedes start_date; subscription will be excluded from analysis",
			})
		}
	}
	for i, inv := range dataset.Invoices {
		if _, ok := dataset.CustomersByID[inv.CustomerID]; !ok {
			result.Warnings = append(result.Warnings, RowError{
				File: TableInvoices, Row: i + 1, Field: "customer_id",
				Message: fmt.Sprintf("customer %q not found in customers table", inv.CustomerID),
			})
		}
	}
	for i, p := range dataset.Payments {
		if _, ok := dataset.InvoicesByID[p.InvoiceID]; !ok {
			result.Warnings = append(result.Warnings, RowError{
				File: TablePayments, Row: i + 1, Field: "invoice_id",
				Message: fmt.Sprintf("invoice %q not found in invoices table", p.InvoiceID),
			})
		}
	}
	for i, cn := range dataset.CreditNotes {
		if _, ok := dataset.CustomersByID[cn.CustomerID]; !ok {
			result.Warnings = append(result.Warnings, RowError{
				File: TableCreditNotes, Row: i + 1, Field: "customer_id",
				Message: fmt.Sprintf("customer %q not found in customers table", cn.CustomerID),
			})
		}
	}

	if len(dataset.CreditNotes) == 0 {
		result.Warnings = append(result.Warnings, RowError{
			File: TableCreditNotes, Row: 0, Field: "table",
			Message: "credit notes table is empty; analysis proceeds without credit netting",
		})
	}

	total := len(result.Errors)
	if total > MaxReportedErrors {
		result.Errors = result.Errors[:MaxReportedErrors]
		result.Errors = append(result.Errors, RowError{
			File: "validation", Row: 0, Field: "errors",
			Message: fmt.Sprintf("%d additional errors not shown", total-MaxReportedErrors),
		})
	}

	result.Valid = total == 0
	result.Summary = map[string]int{
		TableAccounts:      len(dataset.Accounts),
		TableCustomers:     len(dataset.Customers),
		TableSubscriptions: len(dataset.Subscriptions),
		TableInvoices:      len(dataset.Invoices),
		TablePayments:      len(dataset.Payments),
		TableCreditNotes:   len(dataset.CreditNotes),
		"errors":           total,
		"warnings":         len(result.Warnings),
	}

	log.WithFields(logger.Fields{
		"valid":    result.Valid,
		"errors":   total,
		"warnings": len(result.Warnings),
	}).Info("validation completed")

	return result
}

// checkDuplicates reports rows whose primary key repeats an earlier row.
func checkDuplicates(result *ValidationResult, table, field string, n int, key func(int) string) {
	seen := make(map[string]int, n)
	for i := 0; i < n; i++ {
		k := key(i)
		if first, dup := seen[k]; dup {
			result.Errors = append(result.Errors, RowError{
				File: table, Row: i + 1, Field: field,
				Message: fmt.Sprintf("duplicate %s %q (first seen at row %d)", field, k, first),
			})
			continue
		}
		seen[k] = i + 1
	}
}
