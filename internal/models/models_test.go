package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"1000.50", "1000.5", false},
		{"$1,234.56", "1234.56", false},
		{" 42 ", "42", false},
		{"-99.99", "-99.99", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		d, err := ParseDecimalFromString(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDecimalFromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && d.String() != tt.expected {
			t.Errorf("ParseDecimalFromString(%q) = %s, expected %s", tt.input, d.String(), tt.expected)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-10")
	if err != nil {
		t.Fatalf("Expected ISO date to parse, got error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.February || d.Day() != 10 {
		t.Errorf("Expected 2024-02-10, got %s", d.Format("2006-01-02"))
	}

	if _, err := ParseDate("not-a-date"); err == nil {
		t.Error("Expected an error for a malformed date")
	}
	if _, err := ParseDate(""); err == nil {
		t.Error("Expected an error for an empty date")
	}
}

func TestParseInvoiceStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected InvoiceStatus
		wantErr  bool
	}{
		{"paid", InvoiceStatusPaid, false},
		{"settled", InvoiceStatusPaid, false},
		{"posted", InvoiceStatusUnpaid, false},
		{"UNPAID", InvoiceStatusUnpaid, false},
		{"partial", InvoiceStatusPartial, false},
		{"void", InvoiceStatusVoid, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		status, err := ParseInvoiceStatus(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInvoiceStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if status != tt.expected {
			t.Errorf("ParseInvoiceStatus(%q) = %s, expected %s", tt.input, status, tt.expected)
		}
	}
}

func TestParseRampSchedule(t *testing.T) {
	steps, err := ParseRampSchedule(`[{"effective_date":"2024-06-01","mrr":2000},{"effective_date":"2024-03-01","mrr":1500}]`)
	if err != nil {
		t.Fatalf("Expected ramp schedule to parse, got error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 ramp steps, got %d", len(steps))
	}
	if !steps[0].EffectiveDate.Before(steps[1].EffectiveDate) {
		t.Error("Expected ramp steps sorted by effective date")
	}
	if steps[0].MRR.String() != "1500" {
		t.Errorf("Expected first step MRR 1500, got %s", steps[0].MRR.String())
	}

	empty, err := ParseRampSchedule("")
	if err != nil || empty != nil {
		t.Errorf("Expected empty cell to yield no ramp, got %v, %v", empty, err)
	}
}

func TestDayArithmetic(t *testing.T) {
	if got := DaysInMonth(date("2024-02-15")); got != 29 {
		t.Errorf("Expected 29 days in Feb 2024, got %d", got)
	}
	if got := DaysInMonth(date("2023-02-15")); got != 28 {
		t.Errorf("Expected 28 days in Feb 2023, got %d", got)
	}
	if got := InclusiveDays(date("2024-02-10"), date("2024-02-29")); got != 20 {
		t.Errorf("Expected 20 inclusive days, got %d", got)
	}
	if got := InclusiveDays(date("2024-01-05"), date("2024-01-05")); got != 1 {
		t.Errorf("Expected single-day interval to count 1, got %d", got)
	}
	if got := InclusiveDays(date("2024-01-05"), date("2024-01-04")); got != 0 {
		t.Errorf("Expected inverted interval to count 0, got %d", got)
	}
}

func TestOverlapDays(t *testing.T) {
	// Invoice 2024-01-15..2024-03-14 against January.
	if got := OverlapDays(date("2024-01-15"), date("2024-03-14"), date("2024-01-01"), date("2024-01-31")); got != 17 {
		t.Errorf("Expected 17 overlap days with January, got %d", got)
	}
	if got := OverlapDays(date("2024-01-15"), date("2024-03-14"), date("2024-02-01"), date("2024-02-29")); got != 29 {
		t.Errorf("Expected 29 overlap days with February, got %d", got)
	}
	if got := OverlapDays(date("2024-01-15"), date("2024-03-14"), date("2024-03-01"), date("2024-03-31")); got != 14 {
		t.Errorf("Expected 14 overlap days with March, got %d", got)
	}
	if got := OverlapDays(date("2024-01-01"), date("2024-01-31"), date("2024-02-01"), date("2024-02-29")); got != 0 {
		t.Errorf("Expected no overlap across disjoint months, got %d", got)
	}
}

func TestSubscriptionStructure(t *testing.T) {
	good := &Subscription{
		SubscriptionID: "SUB-1",
		AccountID:      "ACC-1",
		StartDate:      date("2024-01-01"),
		EndDate:        date("2024-12-31"),
		MRR:            decimal.NewFromInt(1000),
	}
	if good.HasUnsupportedStructure() {
		t.Error("Expected a well-formed subscription to be supported")
	}
	if good.ARR().String() != "12000" {
		t.Errorf("Expected ARR 12000, got %s", good.ARR().String())
	}

	negative := &Subscription{
		SubscriptionID: "SUB-2",
		AccountID:      "ACC-1",
		StartDate:      date("2024-01-01"),
		EndDate:        date("2024-12-31"),
		MRR:            decimal.NewFromInt(-500),
	}
	if !negative.HasUnsupportedStructure() {
		t.Error("Expected negative MRR to be unsupported")
	}

	inverted := &Subscription{
		SubscriptionID: "SUB-3",
		AccountID:      "ACC-1",
		StartDate:      date("2024-06-01"),
		EndDate:        date("2024-01-01"),
		MRR:            decimal.NewFromInt(500),
	}
	if !inverted.HasUnsupportedStructure() {
		t.Error("Expected end-before-start to be unsupported")
	}
}

func TestVarianceStatusPriority(t *testing.T) {
	order := []VarianceStatus{
		StatusMissingInvoice, StatusUnpaidAR, StatusUnderBilled,
		StatusOverBilled, StatusUnknown, StatusClean,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("Expected %s to outrank %s", order[i-1], order[i])
		}
	}
}

func TestDatasetIndexes(t *testing.T) {
	d := NewDataset(
		[]*Account{NewAccount("ACC-1", "Acme Inc", "acme.com")},
		[]*Customer{NewCustomer("CUS-1", "Acme", "acme.com")},
		[]*Subscription{{SubscriptionID: "SUB-1", AccountID: "ACC-1", StartDate: date("2024-01-01"), EndDate: date("2024-12-31"), MRR: decimal.NewFromInt(1000)}},
		[]*Invoice{{InvoiceID: "INV-1", CustomerID: "CUS-1", Amount: decimal.NewFromInt(1000), Status: InvoiceStatusPaid, PeriodStart: date("2024-01-01"), PeriodEnd: date("2024-01-31"), InvoiceDate: date("2024-01-01")}},
		[]*Payment{{PaymentID: "PAY-1", InvoiceID: "INV-1", PaymentDate: date("2024-01-15"), Amount: decimal.NewFromInt(1000)}},
		nil,
	)

	if d.AccountsByID["ACC-1"] == nil {
		t.Error("Expected account index to contain ACC-1")
	}
	if len(d.PaymentsByInvoice["INV-1"]) != 1 {
		t.Errorf("Expected 1 payment indexed for INV-1, got %d", len(d.PaymentsByInvoice["INV-1"]))
	}
	if len(d.SubscriptionsByAccount()["ACC-1"]) != 1 {
		t.Error("Expected subscription grouped under ACC-1")
	}
	if len(d.InvoicesByCustomer()["CUS-1"]) != 1 {
		t.Error("Expected invoice grouped under CUS-1")
	}
}
