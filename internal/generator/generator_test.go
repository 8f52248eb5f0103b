package generator

import (
	"strings"
	"testing"

	"revenue-reconciliation-service/internal/identity"
	"revenue-reconciliation-service/internal/parsers"
)

func TestGenerateDeterministic(t *testing.T) {
	first := New(DefaultSeed).Generate()
	second := New(DefaultSeed).Generate()

	for name, content := range first.Tables {
		if second.Tables[name] != content {
			t.Errorf("Expected identical %s tables for the same seed", name)
		}
	}
}

func TestGenerateTableShapes(t *testing.T) {
	out := New(DefaultSeed).Generate()

	if out.Counts[parsers.TableAccounts] != 60 {
		t.Errorf("Expected 60 accounts, got %d", out.Counts[parsers.TableAccounts])
	}
	if out.Counts[parsers.TableCustomers] != 59 {
		t.Errorf("Expected 59 customers, got %d", out.Counts[parsers.TableCustomers])
	}
	if out.Counts[parsers.TableSubscriptions] != 66 {
		t.Errorf("Expected 66 subscriptions, got %d", out.Counts[parsers.TableSubscriptions])
	}
	if out.Counts[parsers.TableInvoices] < 300 {
		t.Errorf("Expected a full year of invoices, got %d", out.Counts[parsers.TableInvoices])
	}
	if out.Counts[parsers.TableCreditNotes] < 4 {
		t.Errorf("Expected planted credit notes, got %d", out.Counts[parsers.TableCreditNotes])
	}
	if out.PeriodStart.Year() != 2024 || out.PeriodEnd.Month() != 12 {
		t.Errorf("Unexpected period %s..%s", out.PeriodStart, out.PeriodEnd)
	}
}

func TestGenerateParsesCleanly(t *testing.T) {
	out := New(DefaultSeed).Generate()

	dataset, rowErrs, err := parsers.ParseAll(out.Sources())
	if err != nil {
		t.Fatalf("Expected the tables to parse, got %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("Expected no row errors, got %v", rowErrs[0])
	}

	result := parsers.Validate(dataset, rowErrs)
	if !result.Valid {
		t.Errorf("Expected a valid dataset, got errors %v", result.Errors)
	}
}

func TestGeneratePlantedIdentityAnomalies(t *testing.T) {
	out := New(DefaultSeed).Generate()
	dataset, _, err := parsers.ParseAll(out.Sources())
	if err != nil {
		t.Fatalf("Expected the tables to parse, got %v", err)
	}

	res := identity.NewResolver().Resolve(dataset.Accounts, dataset.Customers, nil)

	if len(res.PendingReview) != 2 {
		t.Errorf("Expected the two fuzzy names pending review, got %d", len(res.PendingReview))
	}
	if len(res.Prospects) != 2 {
		t.Errorf("Expected two prospect accounts, got %d", len(res.Prospects))
	}
	if len(res.UnmatchedAccounts) != 2 {
		t.Errorf("Expected two unmatched accounts, got %d", len(res.UnmatchedAccounts))
	}
	if len(res.UnmatchedCustomers) != 3 {
		t.Errorf("Expected the three orphan billing customers, got %d", len(res.UnmatchedCustomers))
	}
}

func TestGeneratePlantedBillingAnomalies(t *testing.T) {
	out := New(DefaultSeed).Generate()
	dataset, _, err := parsers.ParseAll(out.Sources())
	if err != nil {
		t.Fatalf("Expected the tables to parse, got %v", err)
	}

	byCustomer := map[string][]string{}
	for _, inv := range dataset.Invoices {
		byCustomer[inv.CustomerID] = append(byCustomer[inv.CustomerID],
			inv.PeriodStart.Format("2006-01"))
	}

	// SYNTH-012 maps to CUST-012: August and September are never invoiced.
	months := strings.Join(byCustomer["CUST-012"], " ")
	if strings.Contains(months, "2024-08") || strings.Contains(months, "2024-09") {
		t.Errorf("Expected August and September missing for CUST-012, got %s", months)
	}

	unpaid := 0
	for _, inv := range dataset.Invoices {
		if inv.Status == "unpaid" {
			unpaid++
		}
	}
	if unpaid != 3 {
		t.Errorf("Expected three unpaid fourth-quarter invoices, got %d", unpaid)
	}

	standalone := 0
	for _, cn := range dataset.CreditNotes {
		if cn.InvoiceID == "" {
			standalone++
		}
	}
	if standalone == 0 {
		t.Error("Expected at least one standalone credit note")
	}
}
