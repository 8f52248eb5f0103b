package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDecimalFromString parses a decimal value from a CSV cell, tolerating
// currency symbols and thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD), with a few fallback formats
// seen in exported billing data.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Truncate(24 * time.Hour), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParseInvoiceStatus normalizes and validates an invoice status. Values from
// common billing exports map onto the canonical set (posted becomes unpaid,
// settled becomes paid).
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "settled":
		return InvoiceStatusPaid, nil
	case "unpaid", "posted", "open":
		return InvoiceStatusUnpaid, nil
	case "partial", "partially_paid":
		return InvoiceStatusPartial, nil
	case "void", "voided", "cancelled", "canceled":
		return InvoiceStatusVoid, nil
	default:
		return "", fmt.Errorf("invalid invoice status '%s': must be one of paid, unpaid, partial, void", s)
	}
}

// ParseRampSchedule parses the optional ramp_schedule cell. The cell holds a
// JSON array of {"effective_date","mrr"} objects; an empty cell means no ramp.
// The returned schedule is sorted by effective date.
func ParseRampSchedule(s string) ([]RampStep, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}

	var raw []struct {
		EffectiveDate string `json:"effective_date"`
		MRR           json.Number `json:"mrr"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid ramp schedule '%s': %w", s, err)
	}

	steps := make([]RampStep, 0, len(raw))
	for _, r := range raw {
		date, err := ParseDate(r.EffectiveDate)
		if err != nil {
			return nil, fmt.Errorf("invalid ramp effective date: %w", err)
		}
		mrr, err := ParseDecimalFromString(r.MRR.String())
		if err != nil {
			return nil, fmt.Errorf("invalid ramp mrr: %w", err)
		}
		steps = append(steps, RampStep{EffectiveDate: date, MRR: mrr})
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].EffectiveDate.Before(steps[j].EffectiveDate)
	})
	return steps, nil
}

// ParseAccountStatus normalizes and validates an account status. A blank
// cell defaults to active.
func ParseAccountStatus(s string) (AccountStatus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AccountStatusActive, nil
	}
	status := AccountStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid account status '%s': must be one of active, churned, prospect", s)
	}
	return status, nil
}

// ParseCustomerStatus normalizes and validates a customer status. A blank
// cell defaults to active.
func ParseCustomerStatus(s string) (CustomerStatus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CustomerStatusActive, nil
	}
	status := CustomerStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid customer status '%s': must be one of active, cancelled, paused", s)
	}
	return status, nil
}

// ParsePricingModel normalizes and validates a pricing model. A blank cell
// defaults to flat, or ramp when the row carries a ramp schedule.
func ParsePricingModel(s string, hasRamp bool) (PricingModel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		if hasRamp {
			return PricingRamp, nil
		}
		return PricingFlat, nil
	}
	model := PricingModel(s)
	if !model.IsValid() {
		return "", fmt.Errorf("invalid pricing model '%s': must be one of flat, ramp, usage", s)
	}
	return model, nil
}

// IsValidCurrencyCode checks a three-letter ISO-style currency code.
func IsValidCurrencyCode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// MonthKey formats a date as its YYYY-MM period label.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// DaysInMonth returns the number of calendar days in the month containing t.
func DaysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// InclusiveDays counts the days in the inclusive interval [start, end].
func InclusiveDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// OverlapDays counts the inclusive-day overlap of [aStart,aEnd] and
// [bStart,bEnd]. Zero means no overlap.
func OverlapDays(aStart, aEnd, bStart, bEnd time.Time) int {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return InclusiveDays(start, end)
}
