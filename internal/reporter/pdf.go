package reporter

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/scoring"
)

// ReportMeta carries the session context stamped onto the PDF header.
type ReportMeta struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Currency    string
	GeneratedAt time.Time
}

// ScoreReportPDF renders the structural integrity report.
func (e *Exporter) ScoreReportPDF(score *scoring.Score, meta ReportMeta) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Structural Integrity Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(14,
		col.New(12).Add(
			text.New(fmt.Sprintf("Analysis period: %s to %s",
				meta.PeriodStart.Format("2006-01-02"), meta.PeriodEnd.Format("2006-01-02")), props.Text{Top: 0, Size: 9}),
			text.New("Generated: "+meta.GeneratedAt.UTC().Format("2006-01-02 15:04"), props.Text{Top: 4, Size: 9}),
			text.New("Currency: "+meta.Currency, props.Text{Top: 8, Size: 9}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, fmt.Sprintf("Score: %d (%s)", score.Overall, score.Band), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)
	m.AddRow(8,
		text.NewCol(12, score.Interpretation, props.Text{Size: 9}),
	)

	m.AddRow(10,
		text.NewCol(6, "Component", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}),
		text.NewCol(3, "Score", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3, Align: align.Right}),
		text.NewCol(3, "Weight", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3, Align: align.Right}),
	)
	components := []struct {
		label  string
		value  float64
		weight float64
	}{
		{"Entity match rate", score.Components.EntityMatchRate, scoring.WeightEntityMatch * 100},
		{"Billing coverage", score.Components.BillingCoverage, scoring.WeightBillingCover * 100},
		{"Variance cleanliness", score.Components.VarianceCleanliness, scoring.WeightVarianceClean * 100},
		{"Lineage completeness", score.Components.LineageCompleteness, scoring.WeightLineage * 100},
	}
	for _, c := range components {
		m.AddRow(7,
			text.NewCol(6, c.label, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%.1f%%", c.value), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, fmt.Sprintf("%.0f%%", c.weight), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		text.NewCol(12, fmt.Sprintf("Coverage: %d of %d subscriptions (%.1f%%), ARR %.1f%%",
			score.Coverage.MatchedSubscriptions, score.Coverage.TotalSubscriptions,
			score.Coverage.SubscriptionPct, score.Coverage.ARRPct), props.Text{Size: 9, Top: 3}),
	)

	if len(score.RevenueAtRisk) > 0 {
		total := decimal.Zero
		for _, r := range score.RevenueAtRisk {
			total = total.Add(r.Amount)
		}
		m.AddRow(10,
			text.NewCol(12, fmt.Sprintf("Revenue at Risk: %s %s", meta.Currency, formatAmount(total)), props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Top:   3,
			}),
		)
		m.AddRow(8,
			text.NewCol(6, "Type", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.NewCol(3, "Accounts", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, r := range score.RevenueAtRisk {
			m.AddRow(7,
				text.NewCol(6, string(r.Status), props.Text{Size: 9}),
				text.NewCol(3, formatAmount(r.Amount), props.Text{Size: 9, Align: align.Right}),
				text.NewCol(3, fmt.Sprintf("%d", r.Accounts), props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	if len(score.QuickFindings) > 0 {
		m.AddRow(10,
			text.NewCol(12, "Top Findings", props.Text{Size: 12, Style: fontstyle.Bold, Top: 3}),
		)
		m.AddRow(8,
			text.NewCol(3, "Account", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(4, "Name", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Status", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(2, "Variance", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, f := range score.QuickFindings {
			m.AddRow(7,
				text.NewCol(3, f.AccountID, props.Text{Size: 9}),
				text.NewCol(4, f.AccountName, props.Text{Size: 9}),
				text.NewCol(3, string(f.Status), props.Text{Size: 9}),
				text.NewCol(2, formatAmount(f.Variance), props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	m.AddRow(14,
		col.New(12).Add(
			text.New("Deferred revenue modelling is not included in this analysis.", props.Text{Top: 4, Size: 8}),
			text.New("All calculations are deterministic and rule-based.", props.Text{Top: 8, Size: 8}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
