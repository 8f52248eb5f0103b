package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/errors"
)

// Settings configure one reconciliation session. Currency is display-only
// and never alters arithmetic; tolerance widens or narrows the clean band.
type Settings struct {
	Currency    string          `json:"currency"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Tolerance   decimal.Decimal `json:"tolerance"`
}

// DefaultSettings covers calendar year 2024 in USD with a $1.00 tolerance.
func DefaultSettings() Settings {
	return Settings{
		Currency:    "USD",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Tolerance:   decimal.NewFromInt(1),
	}
}

var settingKeys = map[string]bool{
	"currency":     true,
	"period_start": true,
	"period_end":   true,
	"tolerance":    true,
}

// ParseSettings overlays raw key-value options onto the defaults. Unknown
// keys are rejected.
func ParseSettings(raw map[string]string) (Settings, error) {
	s := DefaultSettings()
	for key := range raw {
		if !settingKeys[key] {
			return s, errors.New(errors.CategoryConfiguration, errors.CodeUnknownSetting,
				fmt.Sprintf("unknown setting %q", key)).
				WithSuggestion("Recognized settings: currency, period_start, period_end, tolerance")
		}
	}

	if v, ok := raw["currency"]; ok {
		if !models.IsValidCurrencyCode(v) {
			return s, errors.ConfigurationError(errors.CodeInvalidSetting, "currency", v)
		}
		s.Currency = v
	}
	if v, ok := raw["period_start"]; ok {
		t, err := models.ParseDate(v)
		if err != nil {
			return s, errors.ConfigurationError(errors.CodeInvalidSetting, "period_start", v)
		}
		s.PeriodStart = t
	}
	if v, ok := raw["period_end"]; ok {
		t, err := models.ParseDate(v)
		if err != nil {
			return s, errors.ConfigurationError(errors.CodeInvalidSetting, "period_end", v)
		}
		s.PeriodEnd = t
	}
	if v, ok := raw["tolerance"]; ok {
		d, err := models.ParseDecimalFromString(v)
		if err != nil || d.IsNegative() {
			return s, errors.ConfigurationError(errors.CodeInvalidSetting, "tolerance", v)
		}
		s.Tolerance = d
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate enforces the period alignment rules: start on the first of a
// month, end on the last of a month, start before end.
func (s Settings) Validate() error {
	if s.PeriodStart.Day() != 1 {
		return errors.ConfigurationError(errors.CodeInvalidSetting, "period_start",
			s.PeriodStart.Format("2006-01-02")).
			WithSuggestion("period_start must be the first day of a month")
	}
	_, monthLast := models.MonthBounds(s.PeriodEnd)
	if !s.PeriodEnd.Equal(monthLast) {
		return errors.ConfigurationError(errors.CodeInvalidSetting, "period_end",
			s.PeriodEnd.Format("2006-01-02")).
			WithSuggestion("period_end must be the last day of a month")
	}
	if s.PeriodEnd.Before(s.PeriodStart) {
		return errors.ConfigurationError(errors.CodeInvalidSetting, "period_end",
			s.PeriodEnd.Format("2006-01-02")).
			WithSuggestion("period_end must not precede period_start")
	}
	return nil
}
