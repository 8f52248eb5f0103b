// Package parsers loads the six input tables from CSV and validates them.
//
// Parsing is lenient about presentation (header aliases, currency symbols,
// extra whitespace) and strict about content. Each table parser returns the
// typed rows it could build plus a list of row-level errors keyed by
// {file, row, field}; only unreadable input or a missing required column
// aborts the parse outright.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/errors"
	"revenue-reconciliation-service/pkg/logger"
)

// RowError locates a problem in one cell of one input row. Row numbers are
// 1-based and count data rows, excluding the header.
type RowError struct {
	File    string `json:"file"`
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	return fmt.Sprintf("%s row %d [%s]: %s", e.File, e.Row, e.Field, e.Message)
}

// Table names used as the File component of RowError and as template keys.
const (
	TableAccounts      = "accounts"
	TableCustomers     = "customers"
	TableSubscriptions = "subscriptions"
	TableInvoices      = "invoices"
	TablePayments      = "payments"
	TableCreditNotes   = "credit_notes"
)

// TableNames lists the six tables in ingestion order.
var TableNames = []string{
	TableAccounts, TableCustomers, TableSubscriptions,
	TableInvoices, TablePayments, TableCreditNotes,
}

// columnAliases maps canonical column names to accepted header spellings.
// Headers are normalized (lower-case, separators collapsed to underscores)
// before lookup, so each alias is written in normalized form.
var columnAliases = map[string]map[string][]string{
	TableAccounts: {
		"account_id":     {"account_id", "id", "acct_id", "crm_id"},
		"account_name":   {"account_name", "name", "company", "company_name"},
		"account_status": {"account_status", "status", "state"},
		"email_domain":   {"email_domain", "domain", "email"},
	},
	TableCustomers: {
		"customer_id":     {"customer_id", "id", "cust_id", "billing_id"},
		"customer_name":   {"customer_name", "name", "company", "company_name"},
		"customer_status": {"customer_status", "status", "state"},
		"email_domain":    {"email_domain", "domain", "email"},
	},
	TableSubscriptions: {
		"subscription_id": {"subscription_id", "id", "sub_id"},
		"account_id":      {"account_id", "acct_id", "crm_id"},
		"start_date":      {"start_date", "start", "term_start"},
		"end_date":        {"end_date", "end", "term_end"},
		"mrr":             {"mrr", "monthly_amount", "monthly_revenue"},
		"currency":        {"currency", "currency_code"},
		"pricing_model":   {"pricing_model", "pricing", "model"},
		"ramp_schedule":   {"ramp_schedule", "ramp", "schedule"},
	},
	TableInvoices: {
		"invoice_id":      {"invoice_id", "id", "inv_id", "invoice_number"},
		"customer_id":     {"customer_id", "cust_id", "billing_id"},
		"subscription_id": {"subscription_id", "sub_id"},
		"invoice_date":    {"invoice_date", "date", "issued"},
		"period_start":    {"period_start", "service_start", "billing_start"},
		"period_end":      {"period_end", "service_end", "billing_end"},
		"amount":          {"amount", "total", "invoice_amount"},
		"status":          {"status", "state"},
	},
	TablePayments: {
		"payment_id":   {"payment_id", "id", "pay_id"},
		"invoice_id":   {"invoice_id", "inv_id", "invoice_number"},
		"payment_date": {"payment_date", "date", "received"},
		"amount":       {"amount", "paid", "payment_amount"},
	},
	TableCreditNotes: {
		"credit_note_id": {"credit_note_id", "id", "cn_id", "credit_id"},
		"customer_id":    {"customer_id", "cust_id", "billing_id"},
		"invoice_id":     {"invoice_id", "inv_id", "invoice_number"},
		"credit_date":    {"credit_date", "date", "issued"},
		"amount":         {"amount", "total", "credit_amount"},
		"reason":         {"reason", "memo", "description"},
	},
}

// requiredColumns lists the canonical columns that must resolve for each
// table. Optional columns (email_domain, ramp_schedule, the invoice hint on
// credit notes) are absent here.
var requiredColumns = map[string][]string{
	TableAccounts:      {"account_id", "account_name"},
	TableCustomers:     {"customer_id", "customer_name"},
	TableSubscriptions: {"subscription_id", "account_id", "start_date", "end_date", "mrr"},
	TableInvoices:      {"invoice_id", "customer_id", "invoice_date", "period_start", "period_end", "amount", "status"},
	TablePayments:      {"payment_id", "invoice_id", "payment_date", "amount"},
	TableCreditNotes:   {"credit_note_id", "customer_id", "credit_date", "amount"},
}

// normalizeHeader canonicalizes a raw CSV header cell for alias lookup.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\uFEFF")
	replacer := strings.NewReplacer(" ", "_", "-", "_", ".", "_", "/", "_")
	h = replacer.Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}

// columnMap resolves the header row of a table into canonical-name → index.
func columnMap(table string, headers []string) (map[string]int, *errors.Error) {
	aliases := columnAliases[table]
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	out := make(map[string]int, len(aliases))
	for canonical, accepted := range aliases {
		for _, alias := range accepted {
			for i, h := range normalized {
				if h == alias {
					if _, taken := out[canonical]; !taken {
						out[canonical] = i
					}
				}
			}
			if _, found := out[canonical]; found {
				break
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns[table] {
		if _, ok := out[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.CategoryParse, errors.CodeMissingColumn,
			"%s table is missing required columns: %s", table, strings.Join(missing, ", ")).
			WithSuggestion("check the header row against the downloadable template").
			WithContext("file", table).
			WithContext("missing", missing)
	}
	return out, nil
}

// rowReader walks the data rows of one table, resolving columns by canonical
// name and collecting cell-level errors.
type rowReader struct {
	table  string
	cols   map[string]int
	record []string
	row    int
	errs   *[]RowError
	failed bool
}

// field returns the named cell, or "" when the column is absent.
func (r *rowReader) field(name string) string {
	idx, ok := r.cols[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func (r *rowReader) addError(field, message string) {
	*r.errs = append(*r.errs, RowError{File: r.table, Row: r.row, Field: field, Message: message})
	r.failed = true
}

// readTable drives the CSV reader and invokes build for each data row.
func readTable(table string, src io.Reader, errs *[]RowError, build func(r *rowReader)) *errors.Error {
	log := logger.GetGlobalLogger().WithComponent("parsers").WithField("table", table)

	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.Newf(errors.CategoryParse, errors.CodeInvalidFormat,
				"%s table is empty", table).
				WithSuggestion("upload a CSV with a header row and data rows").
				WithContext("file", table)
		}
		return errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat,
			fmt.Sprintf("failed to read %s header row", table)).
			WithContext("file", table)
	}

	cols, colErr := columnMap(table, headers)
	if colErr != nil {
		return colErr
	}

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			row++
			*errs = append(*errs, RowError{File: table, Row: row, Field: "record",
				Message: fmt.Sprintf("malformed CSV row: %v", err)})
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		row++
		build(&rowReader{table: table, cols: cols, record: record, row: row, errs: errs})
	}

	log.WithFields(logger.Fields{"rows": row, "errors": len(*errs)}).Debug("parsed table")
	return nil
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseAccounts parses the accounts table.
func ParseAccounts(src io.Reader) ([]*models.Account, []RowError, *errors.Error) {
	var out []*models.Account
	var errs []RowError
	err := readTable(TableAccounts, src, &errs, func(r *rowReader) {
		id := r.field("account_id")
		name := r.field("account_name")
		if id == "" {
			r.addError("account_id", "account_id is required")
		}
		if name == "" {
			r.addError("account_name", "account_name is required")
		}
		status, parseErr := models.ParseAccountStatus(r.field("account_status"))
		if parseErr != nil {
			r.addError("account_status", parseErr.Error())
		}
		if r.failed {
			return
		}
		account := models.NewAccount(id, name, r.field("email_domain"))
		account.AccountStatus = status
		out = append(out, account)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// ParseCustomers parses the customers table.
func ParseCustomers(src io.Reader) ([]*models.Customer, []RowError, *errors.Error) {
	var out []*models.Customer
	var errs []RowError
	err := readTable(TableCustomers, src, &errs, func(r *rowReader) {
		id := r.field("customer_id")
		name := r.field("customer_name")
		if id == "" {
			r.addError("customer_id", "customer_id is required")
		}
		if name == "" {
			r.addError("customer_name", "customer_name is required")
		}
		status, parseErr := models.ParseCustomerStatus(r.field("customer_status"))
		if parseErr != nil {
			r.addError("customer_status", parseErr.Error())
		}
		if r.failed {
			return
		}
		customer := models.NewCustomer(id, name, r.field("email_domain"))
		customer.CustomerStatus = status
		out = append(out, customer)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// ParseSubscriptions parses the subscriptions table.
func ParseSubscriptions(src io.Reader) ([]*models.Subscription, []RowError, *errors.Error) {
	var out []*models.Subscription
	var errs []RowError
	err := readTable(TableSubscriptions, src, &errs, func(r *rowReader) {
		sub := &models.Subscription{
			SubscriptionID: r.field("subscription_id"),
			AccountID:      r.field("account_id"),
		}
		if sub.SubscriptionID == "" {
			r.addError("subscription_id", "subscription_id is required")
		}
		if sub.AccountID == "" {
			r.addError("account_id", "account_id is required")
		}

		var parseErr error
		if sub.StartDate, parseErr = models.ParseDate(r.field("start_date")); parseErr != nil {
			r.addError("start_date", parseErr.Error())
		}
		if sub.EndDate, parseErr = models.ParseDate(r.field("end_date")); parseErr != nil {
			r.addError("end_date", parseErr.Error())
		}
		if sub.MRR, parseErr = models.ParseDecimalFromString(r.field("mrr")); parseErr != nil {
			r.addError("mrr", parseErr.Error())
		}
		if sub.RampSchedule, parseErr = models.ParseRampSchedule(r.field("ramp_schedule")); parseErr != nil {
			r.addError("ramp_schedule", parseErr.Error())
		}
		if sub.PricingModel, parseErr = models.ParsePricingModel(r.field("pricing_model"), len(sub.RampSchedule) > 0); parseErr != nil {
			r.addError("pricing_model", parseErr.Error())
		}
		if currency := r.field("currency"); currency != "" {
			if !models.IsValidCurrencyCode(currency) {
				r.addError("currency", fmt.Sprintf("invalid currency code %q", currency))
			}
			sub.Currency = currency
		}
		if r.failed {
			return
		}
		out = append(out, sub)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// ParseInvoices parses the invoices table.
func ParseInvoices(src io.Reader) ([]*models.Invoice, []RowError, *errors.Error) {
	var out []*models.Invoice
	var errs []RowError
	err := readTable(TableInvoices, src, &errs, func(r *rowReader) {
		inv := &models.Invoice{
			InvoiceID:      r.field("invoice_id"),
			CustomerID:     r.field("customer_id"),
			SubscriptionID: r.field("subscription_id"),
		}
		if inv.InvoiceID == "" {
			r.addError("invoice_id", "invoice_id is required")
		}
		if inv.CustomerID == "" {
			r.addError("customer_id", "customer_id is required")
		}

		var parseErr error
		if inv.InvoiceDate, parseErr = models.ParseDate(r.field("invoice_date")); parseErr != nil {
			r.addError("invoice_date", parseErr.Error())
		}
		if inv.PeriodStart, parseErr = models.ParseDate(r.field("period_start")); parseErr != nil {
			r.addError("period_start", parseErr.Error())
		}
		if inv.PeriodEnd, parseErr = models.ParseDate(r.field("period_end")); parseErr != nil {
			r.addError("period_end", parseErr.Error())
		}
		if inv.Amount, parseErr = models.ParseDecimalFromString(r.field("amount")); parseErr != nil {
			r.addError("amount", parseErr.Error())
		}
		if inv.Status, parseErr = models.ParseInvoiceStatus(r.field("status")); parseErr != nil {
			r.addError("status", parseErr.Error())
		}

		if !r.failed && inv.PeriodEnd.Before(inv.PeriodStart) {
			r.addError("period_end", "period_end precedes period_start")
		}
		if r.failed {
			return
		}
		out = append(out, inv)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// ParsePayments parses the payments table.
func ParsePayments(src io.Reader) ([]*models.Payment, []RowError, *errors.Error) {
	var out []*models.Payment
	var errs []RowError
	err := readTable(TablePayments, src, &errs, func(r *rowReader) {
		p := &models.Payment{
			PaymentID: r.field("payment_id"),
			InvoiceID: r.field("invoice_id"),
		}
		if p.PaymentID == "" {
			r.addError("payment_id", "payment_id is required")
		}
		if p.InvoiceID == "" {
			r.addError("invoice_id", "invoice_id is required")
		}

		var parseErr error
		if p.PaymentDate, parseErr = models.ParseDate(r.field("payment_date")); parseErr != nil {
			r.addError("payment_date", parseErr.Error())
		}
		if p.Amount, parseErr = models.ParseDecimalFromString(r.field("amount")); parseErr != nil {
			r.addError("amount", parseErr.Error())
		}
		if r.failed {
			return
		}
		out = append(out, p)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// ParseCreditNotes parses the credit notes table. An empty table is not an
// error here; the validator downgrades it to a warning.
func ParseCreditNotes(src io.Reader) ([]*models.CreditNote, []RowError, *errors.Error) {
	var out []*models.CreditNote
	var errs []RowError
	err := readTable(TableCreditNotes, src, &errs, func(r *rowReader) {
		cn := &models.CreditNote{
			CreditNoteID: r.field("credit_note_id"),
			CustomerID:   r.field("customer_id"),
			InvoiceID:    r.field("invoice_id"),
			Reason:       r.field("reason"),
		}
		if cn.CreditNoteID == "" {
			r.addError("credit_note_id", "credit_note_id is required")
		}
		if cn.CustomerID == "" {
			r.addError("customer_id", "customer_id is required")
		}

		var parseErr error
		if cn.CreditDate, parseErr = models.ParseDate(r.field("credit_date")); parseErr != nil {
			r.addError("credit_date", parseErr.Error())
		}
		if cn.Amount, parseErr = models.ParseDecimalFromString(r.field("amount")); parseErr != nil {
			r.addError("amount", parseErr.Error())
		}
		if !r.failed && cn.Amount.IsNegative() {
			r.addError("amount", "credit note amount cannot be negative")
		}
		if r.failed {
			return
		}
		out = append(out, cn)
	})
	if err != nil {
		return nil, errs, err
	}
	return out, errs, nil
}

// TableSources carries one reader per input table, keyed by table name.
type TableSources map[string]io.Reader

// ParseAll parses all six tables and returns the assembled dataset plus the
// combined row-error list. A fatal error on any table aborts the whole parse.
// The credit notes table alone may be absent; the validator downgrades that
// to a warning.
func ParseAll(sources TableSources) (*models.Dataset, []RowError, *errors.Error) {
	var all []RowError

	for _, table := range TableNames {
		if sources[table] == nil && table != TableCreditNotes {
			return nil, nil, errors.Newf(errors.CategoryFile, errors.CodeFileNotFound,
				"%s table was not provided", table).
				WithSuggestion("upload all six input tables").
				WithContext("file", table)
		}
	}

	accounts, errs, err := ParseAccounts(sources[TableAccounts])
	all = append(all, errs...)
	if err != nil {
		return nil, all, err
	}
	customers, errs, err := ParseCustomers(sources[TableCustomers])
	all = append(all, errs...)
	if err != nil {
		return nil, all, err
	}
	subscriptions, errs, err := ParseSubscriptions(sources[TableSubscriptions])
	all = append(all, errs...)
	if err != nil {
		return nil, all, err
	}
	invoices, errs, err := ParseInvoices(sources[TableInvoices])
	all = append(all, errs...)
	if err != nil {
		return nil, all, err
	}
	payments, errs, err := ParsePayments(sources[TablePayments])
	all = append(all, errs...)
	if err != nil {
		return nil, all, err
	}
	var creditNotes []*models.CreditNote
	if sources[TableCreditNotes] != nil {
		creditNotes, errs, err = ParseCreditNotes(sources[TableCreditNotes])
		all = append(all, errs...)
		if err != nil {
			return nil, all, err
		}
	}

	dataset := models.NewDataset(accounts, customers, subscriptions, invoices, payments, creditNotes)
	return dataset, all, nil
}
