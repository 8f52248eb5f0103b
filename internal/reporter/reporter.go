// Package reporter renders reconciliation artifacts for export.
//
// Three CSV exports (accounts, per-account lineage, exclusions), a console
// summary for one-shot CLI runs, and a PDF score report. CSV column sets are
// stable: downstream spreadsheets key on the header names.
package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/internal/scoring"
	"revenue-reconciliation-service/pkg/logger"
)

// Exporter writes the export formats.
type Exporter struct {
	log logger.Logger
}

// NewExporter creates an Exporter.
func NewExporter() *Exporter {
	return &Exporter{log: logger.GetGlobalLogger().WithComponent("reporter")}
}

// Filename builds the attachment name for an export, stamped with the day.
func Filename(kind, ext string, now time.Time) string {
	return fmt.Sprintf("revrecon_%s_%s.%s", kind, now.UTC().Format("2006-01-02"), ext)
}

var accountsHeader = []string{
	"rsx_id", "account_id", "account_name", "customer_id", "match_type",
	"subscriptions", "periods", "expected_total", "invoiced_total",
	"credit_notes_total", "collected_total", "total_variance",
	"primary_variance_type", "lineage_status", "currency",
}

// AccountsCSV writes the account summaries, optionally filtered to a set of
// primary variance statuses.
func (e *Exporter) AccountsCSV(w io.Writer, summaries []*models.AccountSummary, currency string, statuses []models.VarianceStatus) error {
	keep := map[models.VarianceStatus]bool{}
	for _, s := range statuses {
		keep[s] = true
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(accountsHeader); err != nil {
		return err
	}
	for _, sum := range summaries {
		if len(keep) > 0 && !keep[sum.PrimaryVarianceType] {
			continue
		}
		record := []string{
			sum.RSXID,
			sum.AccountID,
			sum.AccountName,
			sum.CustomerID,
			string(sum.MatchType),
			strconv.Itoa(sum.SubscriptionCount),
			strings.Join(sum.Periods, ";"),
			sum.TotalExpected.StringFixed(2),
			sum.TotalInvoiced.StringFixed(2),
			sum.TotalCreditNotes.StringFixed(2),
			sum.TotalCollected.StringFixed(2),
			sum.TotalVariance.StringFixed(2),
			string(sum.PrimaryVarianceType),
			string(sum.LineageStatus),
			currency,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var lineageHeader = []string{
	"period", "subscription_id", "segment_id", "expected", "invoiced",
	"credit_notes", "effective_invoiced", "collected", "variance",
	"status", "allocation_method", "prorated",
}

// LineageCSV writes one account's per-segment variance rows sorted by period.
// Segments carry the proration flag.
func (e *Exporter) LineageCSV(w io.Writer, rsxID string, variances []*models.SegmentVariance, segments []*models.RevenueSegment) error {
	prorated := map[string]bool{}
	for _, seg := range segments {
		prorated[seg.SegmentID] = seg.IsProrated
	}

	rows := make([]*models.SegmentVariance, 0, len(variances))
	for _, v := range variances {
		if v.RSXID == rsxID {
			rows = append(rows, v)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Period != rows[j].Period {
			return rows[i].Period < rows[j].Period
		}
		return rows[i].SegmentID < rows[j].SegmentID
	})

	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(lineageHeader); err != nil {
		return err
	}
	for _, v := range rows {
		flag := "no"
		if prorated[v.SegmentID] {
			flag = "yes"
		}
		record := []string{
			v.Period,
			v.SubscriptionID,
			v.SegmentID,
			v.Expected.StringFixed(2),
			v.Invoiced.StringFixed(2),
			v.CreditNotes.StringFixed(2),
			v.EffectiveInvoiced.StringFixed(2),
			v.Collected.StringFixed(2),
			v.Variance.StringFixed(2),
			string(v.Status),
			v.AllocationMethod,
			flag,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var exclusionsHeader = []string{
	"record_type", "record_id", "reason_code", "description", "excluded_at", "session_id",
}

// ExclusionsCSV writes the exclusion log for one session.
func (e *Exporter) ExclusionsCSV(w io.Writer, sessionID string, exclusions []*models.Exclusion) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(exclusionsHeader); err != nil {
		return err
	}
	for _, ex := range exclusions {
		record := []string{
			ex.RecordType,
			ex.RecordID,
			string(ex.ReasonCode),
			ex.Description,
			ex.ExcludedAt.UTC().Format(time.RFC3339),
			sessionID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ConsoleSummary prints a terminal-friendly run summary: score, components,
// coverage, revenue at risk, and the top findings.
func (e *Exporter) ConsoleSummary(w io.Writer, score *scoring.Score, summaries []*models.AccountSummary, currency string) error {
	fmt.Fprintf(w, "STRUCTURAL INTEGRITY SCORE: %d (%s)\n", score.Overall, strings.ToUpper(score.Band))
	fmt.Fprintf(w, "%s\n\n", score.Interpretation)

	fmt.Fprintf(w, "=== COMPONENTS ===\n")
	fmt.Fprintf(w, "  Entity match rate:     %6.1f%%\n", score.Components.EntityMatchRate)
	fmt.Fprintf(w, "  Billing coverage:      %6.1f%%\n", score.Components.BillingCoverage)
	fmt.Fprintf(w, "  Variance cleanliness:  %6.1f%%\n", score.Components.VarianceCleanliness)
	fmt.Fprintf(w, "  Lineage completeness:  %6.1f%%\n\n", score.Components.LineageCompleteness)

	fmt.Fprintf(w, "=== COVERAGE ===\n")
	fmt.Fprintf(w, "  Subscriptions: %d of %d (%.1f%%)\n", score.Coverage.MatchedSubscriptions,
		score.Coverage.TotalSubscriptions, score.Coverage.SubscriptionPct)
	fmt.Fprintf(w, "  ARR:           %.1f%%\n\n", score.Coverage.ARRPct)

	if len(score.RevenueAtRisk) > 0 {
		total := decimal.Zero
		for _, r := range score.RevenueAtRisk {
			total = total.Add(r.Amount)
		}
		fmt.Fprintf(w, "=== REVENUE AT RISK: %s %s ===\n", currency, formatAmount(total))
		for _, r := range score.RevenueAtRisk {
			fmt.Fprintf(w, "  %-22s %12s  (%d accounts)\n", r.Status, formatAmount(r.Amount), r.Accounts)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(score.QuickFindings) > 0 {
		fmt.Fprintf(w, "=== TOP FINDINGS ===\n")
		for _, f := range score.QuickFindings {
			fmt.Fprintf(w, "  %-10s %-30s %-18s %12s\n", f.AccountID, f.AccountName, f.Status, formatAmount(f.Variance))
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "Accounts analyzed: %d\n", len(summaries))
	return nil
}

// formatAmount renders a decimal with thousands separators and two places.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	out := b.String() + "." + parts[1]
	if neg {
		return "-" + out
	}
	return out
}
