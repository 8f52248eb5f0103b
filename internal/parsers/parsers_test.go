package parsers

import (
	"strings"
	"testing"
)

func TestParseAccountsWithAliasedHeaders(t *testing.T) {
	csvData := "ID,Company Name,Domain\nACC-1,Acme Inc,acme.com\nACC-2,Globex,globex.io\n"

	accounts, rowErrs, err := ParseAccounts(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Expected aliased headers to parse, got error: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Errorf("Expected no row errors, got %v", rowErrs)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].AccountID != "ACC-1" || accounts[0].AccountName != "Acme Inc" {
		t.Errorf("Unexpected first account: %+v", accounts[0])
	}
	if accounts[1].EmailDomain != "globex.io" {
		t.Errorf("Expected email domain globex.io, got %s", accounts[1].EmailDomain)
	}
}

func TestParseAccountsStatus(t *testing.T) {
	csvData := "account_id,account_name,account_status\n" +
		"ACC-1,Acme Inc,prospect\n" +
		"ACC-2,Globex,\n" +
		"ACC-3,Initech,dormant\n"

	accounts, rowErrs, err := ParseAccounts(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Expected accounts to parse, got error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 valid accounts, got %d", len(accounts))
	}
	if !accounts[0].IsProspect() {
		t.Error("Expected ACC-1 to be a prospect")
	}
	if accounts[1].AccountStatus != "active" {
		t.Errorf("Expected blank status to default to active, got %s", accounts[1].AccountStatus)
	}
	if len(rowErrs) != 1 || rowErrs[0].Field != "account_status" {
		t.Errorf("Expected one account_status row error, got %v", rowErrs)
	}
}

func TestParseSubscriptionsPricingModel(t *testing.T) {
	csvData := "subscription_id,account_id,start_date,end_date,mrr,pricing_model,currency\n" +
		"SUB-1,ACC-1,2024-01-01,2024-12-31,1000,usage,USD\n" +
		"SUB-2,ACC-1,2024-01-01,2024-12-31,1000,,EUR\n" +
		"SUB-3,ACC-1,2024-01-01,2024-12-31,1000,flat,XXXX\n"

	subs, rowErrs, err := ParseSubscriptions(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Expected subscriptions to parse, got error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Expected 2 valid subscriptions, got %d", len(subs))
	}
	if subs[0].PricingModel != "usage" {
		t.Errorf("Expected usage pricing to be preserved, got %s", subs[0].PricingModel)
	}
	if subs[1].PricingModel != "flat" {
		t.Errorf("Expected blank pricing to default to flat, got %s", subs[1].PricingModel)
	}
	if len(rowErrs) != 1 || rowErrs[0].Field != "currency" {
		t.Errorf("Expected one currency row error, got %v", rowErrs)
	}
}

func TestParseAccountsMissingColumn(t *testing.T) {
	csvData := "account_id,email_domain\nACC-1,acme.com\n"

	_, _, err := ParseAccounts(strings.NewReader(csvData))
	if err == nil {
		t.Fatal("Expected an error for a missing required column")
	}
	if err.Code != "missing_column" {
		t.Errorf("Expected missing_column code, got %s", err.Code)
	}
}

func TestParseSubscriptionsRowErrors(t *testing.T) {
	csvData := "subscription_id,account_id,start_date,end_date,mrr\n" +
		"SUB-1,ACC-1,2024-01-01,2024-12-31,1000.00\n" +
		"SUB-2,ACC-1,not-a-date,2024-12-31,1000.00\n" +
		"SUB-3,ACC-1,2024-01-01,2024-12-31,abc\n"

	subs, rowErrs, err := ParseSubscriptions(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Expected parse to continue past bad rows, got error: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("Expected 1 valid subscription, got %d", len(subs))
	}
	if len(rowErrs) != 2 {
		t.Fatalf("Expected 2 row errors, got %d: %v", len(rowErrs), rowErrs)
	}
	if rowErrs[0].Row != 2 || rowErrs[0].Field != "start_date" {
		t.Errorf("Unexpected first row error: %+v", rowErrs[0])
	}
	if rowErrs[1].Row != 3 || rowErrs[1].Field != "mrr" {
		t.Errorf("Unexpected second row error: %+v", rowErrs[1])
	}
}

func TestParseSubscriptionsRampSchedule(t *testing.T) {
	csvData := "subscription_id,account_id,start_date,end_date,mrr,ramp_schedule\n" +
		`SUB-1,ACC-1,2024-01-01,2024-12-31,1000.00,"[{""effective_date"":""2024-07-01"",""mrr"":1500}]"` + "\n"

	subs, rowErrs, err := ParseSubscriptions(strings.NewReader(csvData))
	if err != nil || len(rowErrs) != 0 {
		t.Fatalf("Expected ramp schedule to parse, got err=%v rowErrs=%v", err, rowErrs)
	}
	if len(subs[0].RampSchedule) != 1 {
		t.Fatalf("Expected 1 ramp step, got %d", len(subs[0].RampSchedule))
	}
	if subs[0].RampSchedule[0].MRR.String() != "1500" {
		t.Errorf("Expected ramp MRR 1500, got %s", subs[0].RampSchedule[0].MRR.String())
	}
}

func TestParseInvoicesNormalizesStatus(t *testing.T) {
	csvData := "invoice_id,customer_id,invoice_date,period_start,period_end,amount,status\n" +
		"INV-1,CUS-1,2024-01-01,2024-01-01,2024-01-31,$1000.00,posted\n" +
		"INV-2,CUS-1,2024-02-01,2024-02-01,2024-02-29,1000.00,settled\n"

	invoices, rowErrs, err := ParseInvoices(strings.NewReader(csvData))
	if err != nil || len(rowErrs) != 0 {
		t.Fatalf("Expected invoices to parse, got err=%v rowErrs=%v", err, rowErrs)
	}
	if invoices[0].Status != "unpaid" {
		t.Errorf("Expected posted to normalize to unpaid, got %s", invoices[0].Status)
	}
	if invoices[1].Status != "paid" {
		t.Errorf("Expected settled to normalize to paid, got %s", invoices[1].Status)
	}
	if invoices[0].Amount.String() != "1000" {
		t.Errorf("Expected currency symbol stripped, got %s", invoices[0].Amount.String())
	}
}

func TestParseInvoicesInvertedPeriod(t *testing.T) {
	csvData := "invoice_id,customer_id,invoice_date,period_start,period_end,amount,status\n" +
		"INV-1,CUS-1,2024-01-01,2024-01-31,2024-01-01,1000.00,paid\n"

	invoices, rowErrs, _ := ParseInvoices(strings.NewReader(csvData))
	if len(invoices) != 0 {
		t.Errorf("Expected inverted period row to be rejected, got %d invoices", len(invoices))
	}
	if len(rowErrs) != 1 || rowErrs[0].Field != "period_end" {
		t.Errorf("Expected a period_end row error, got %v", rowErrs)
	}
}

func TestParseAllAndValidate(t *testing.T) {
	sources := TableSources{
		TableAccounts:      strings.NewReader("account_id,account_name\nACC-1,Acme Inc\nACC-1,Acme Again\n"),
		TableCustomers:     strings.NewReader("customer_id,customer_name\nCUS-1,Acme\n"),
		TableSubscriptions: strings.NewReader("subscription_id,account_id,start_date,end_date,mrr\nSUB-1,ACC-1,2024-01-01,2024-12-31,1000\nSUB-2,ACC-9,2024-01-01,2024-12-31,1000\n"),
		TableInvoices:      strings.NewReader("invoice_id,customer_id,invoice_date,period_start,period_end,amount,status\nINV-1,CUS-1,2024-01-01,2024-01-01,2024-01-31,1000,paid\n"),
		TablePayments:      strings.NewReader("payment_id,invoice_id,payment_date,amount\nPAY-1,INV-9,2024-01-15,1000\n"),
	}

	dataset, parseErrs, err := ParseAll(sources)
	if err != nil {
		t.Fatalf("Expected ParseAll to succeed, got error: %v", err)
	}

	result := Validate(dataset, parseErrs)
	if result.Valid {
		t.Error("Expected validation to fail on the duplicate account id")
	}

	foundDup := false
	for _, e := range result.Errors {
		if e.Field == "account_id" && strings.Contains(e.Message, "duplicate") {
			foundDup = true
		}
	}
	if !foundDup {
		t.Errorf("Expected a duplicate account_id error, got %v", result.Errors)
	}

	warnings := map[string]bool{}
	for _, w := range result.Warnings {
		warnings[w.File+"/"+w.Field] = true
	}
	if !warnings["subscriptions/account_id"] {
		t.Error("Expected a warning for the orphan subscription")
	}
	if !warnings["payments/invoice_id"] {
		t.Error("Expected a warning for the orphan payment")
	}
	if !warnings["credit_notes/table"] {
		t.Error("Expected a warning for the empty credit notes table")
	}
}

func TestValidateMissingTable(t *testing.T) {
	sources := TableSources{
		TableAccounts: strings.NewReader("account_id,account_name\nACC-1,Acme\n"),
	}
	_, _, err := ParseAll(sources)
	if err == nil {
		t.Fatal("Expected an error when required tables are missing")
	}
	if err.Category != "file" {
		t.Errorf("Expected file category, got %s", err.Category)
	}
}

func TestTemplates(t *testing.T) {
	for _, name := range TemplateNames() {
		tmpl, err := Template(name)
		if err != nil {
			t.Errorf("Expected a template for %s, got error: %v", name, err)
			continue
		}
		if !strings.Contains(tmpl, "\n") {
			t.Errorf("Expected template %s to contain a data row", name)
		}
	}
	if _, err := Template("bogus"); err == nil {
		t.Error("Expected an error for an unknown template")
	}
}
