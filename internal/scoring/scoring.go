// Package scoring condenses a reconciliation run into the four-component
// portfolio score, the coverage panel, revenue at risk, and quick findings.
package scoring

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/logger"
)

// Component weights. They sum to 1.
const (
	WeightEntityMatch    = 0.25
	WeightBillingCover   = 0.35
	WeightVarianceClean  = 0.25
	WeightLineage        = 0.15
	DefaultFindingsLimit = 5
)

// Band thresholds on the overall score.
const (
	BandGreen  = "green"
	BandAmber  = "amber"
	BandOrange = "orange"
	BandRed    = "red"
)

var interpretations = map[string]string{
	BandGreen:  "Strong revenue integrity. Billing closely tracks bookings and variances are isolated.",
	BandAmber:  "Generally sound with localized gaps. Review the flagged accounts before close.",
	BandOrange: "Material reconciliation gaps. Billing coverage or identity linkage needs attention.",
	BandRed:    "Revenue data cannot be trusted as reported. Resolve identity and billing gaps first.",
}

// Components are the weighted score inputs, each in [0,100].
type Components struct {
	EntityMatchRate     float64 `json:"entity_match_rate"`
	BillingCoverage     float64 `json:"billing_coverage"`
	VarianceCleanliness float64 `json:"variance_cleanliness"`
	LineageCompleteness float64 `json:"lineage_completeness"`
}

// Coverage reports how much of the book the reconciliation reached.
type Coverage struct {
	MatchedSubscriptions int     `json:"matched_subscriptions"`
	TotalSubscriptions   int     `json:"total_subscriptions"`
	SubscriptionPct      float64 `json:"subscription_pct"`
	ARRPct               float64 `json:"arr_pct"`
}

// RiskEntry aggregates exposure for one non-clean variance kind.
type RiskEntry struct {
	Status   models.VarianceStatus `json:"status"`
	Amount   decimal.Decimal       `json:"amount"`
	Accounts int                   `json:"accounts"`
}

// Finding is one headline account for the dashboard.
type Finding struct {
	RSXID       string                `json:"rsx_id"`
	AccountID   string                `json:"account_id"`
	AccountName string                `json:"account_name"`
	Status      models.VarianceStatus `json:"status"`
	Variance    decimal.Decimal       `json:"variance"`
}

// Score is the complete scoring artifact for a run.
type Score struct {
	Overall        int         `json:"overall"`
	Band           string      `json:"band"`
	Interpretation string      `json:"interpretation"`
	Components     Components  `json:"components"`
	Coverage       Coverage    `json:"coverage"`
	RevenueAtRisk  []RiskEntry `json:"revenue_at_risk"`
	QuickFindings  []Finding   `json:"quick_findings"`
}

// Inputs carries the artifacts the scorer reads.
type Inputs struct {
	Spine         []*models.IdentityLink
	Subscriptions []*models.Subscription
	Segments      []*models.RevenueSegment
	Variances     []*models.SegmentVariance
	Allocations   []*models.Allocation
	Summaries     []*models.AccountSummary
}

// Scorer computes portfolio scores.
type Scorer struct {
	log           logger.Logger
	findingsLimit int
}

// NewScorer creates a Scorer with the default findings limit.
func NewScorer() *Scorer {
	return &Scorer{
		log:           logger.GetGlobalLogger().WithComponent("scoring"),
		findingsLimit: DefaultFindingsLimit,
	}
}

// Compute derives the score from a finished reconciliation.
func (s *Scorer) Compute(in Inputs) *Score {
	comps := Components{
		EntityMatchRate:     entityMatchRate(in.Spine),
		BillingCoverage:     billingCoverage(in),
		VarianceCleanliness: statusShare(in.Variances, func(v *models.SegmentVariance) bool { return v.Status == models.StatusClean }),
		LineageCompleteness: statusShare(in.Variances, func(v *models.SegmentVariance) bool {
			m := models.AllocationMethod(v.AllocationMethod)
			return m == models.AllocationExact || m == models.AllocationProportional
		}),
	}

	weighted := WeightEntityMatch*comps.EntityMatchRate +
		WeightBillingCover*comps.BillingCoverage +
		WeightVarianceClean*comps.VarianceCleanliness +
		WeightLineage*comps.LineageCompleteness
	overall := int(math.Round(weighted))
	band := bandFor(overall)

	score := &Score{
		Overall:        overall,
		Band:           band,
		Interpretation: interpretations[band],
		Components:     comps,
		Coverage:       coverage(in),
		RevenueAtRisk:  revenueAtRisk(in.Summaries),
		QuickFindings:  quickFindings(in.Summaries, s.findingsLimit),
	}

	s.log.WithFields(logger.Fields{
		"overall": overall,
		"band":    band,
	}).Info("portfolio score computed")
	return score
}

func bandFor(overall int) string {
	switch {
	case overall >= 90:
		return BandGreen
	case overall >= 75:
		return BandAmber
	case overall >= 60:
		return BandOrange
	default:
		return BandRed
	}
}

func entityMatchRate(spine []*models.IdentityLink) float64 {
	if len(spine) == 0 {
		return 0
	}
	matched := 0
	for _, l := range spine {
		if l.MatchType.IsLinked() {
			matched++
		}
	}
	return 100 * float64(matched) / float64(len(spine))
}

// billingCoverage is the share of expected revenue that invoice allocations
// on matched accounts actually reached, clipped to [0,100].
func billingCoverage(in Inputs) float64 {
	linkedRSX := map[string]bool{}
	for _, l := range in.Spine {
		if l.MatchType.IsLinked() {
			linkedRSX[l.RSXID] = true
		}
	}
	matchedSegments := map[string]bool{}
	var expectedTotal decimal.Decimal
	for _, seg := range in.Segments {
		expectedTotal = expectedTotal.Add(seg.ExpectedAmount)
		if linkedRSX[seg.RSXID] {
			matchedSegments[seg.SegmentID] = true
		}
	}
	if expectedTotal.IsZero() {
		return 0
	}

	var allocated decimal.Decimal
	for _, a := range in.Allocations {
		if a.DocumentType == models.DocumentInvoice && matchedSegments[a.SegmentID] {
			allocated = allocated.Add(a.AllocatedAmount.Abs())
		}
	}
	pct, _ := allocated.Div(expectedTotal).Mul(decimal.NewFromInt(100)).Float64()
	return clip(pct)
}

func statusShare(variances []*models.SegmentVariance, match func(*models.SegmentVariance) bool) float64 {
	if len(variances) == 0 {
		return 0
	}
	n := 0
	for _, v := range variances {
		if match(v) {
			n++
		}
	}
	return 100 * float64(n) / float64(len(variances))
}

func coverage(in Inputs) Coverage {
	linkedAccounts := map[string]bool{}
	linkedRSX := map[string]bool{}
	for _, l := range in.Spine {
		if l.MatchType.IsLinked() {
			linkedAccounts[l.AccountID] = true
			linkedRSX[l.RSXID] = true
		}
	}

	cov := Coverage{TotalSubscriptions: len(in.Subscriptions)}
	for _, sub := range in.Subscriptions {
		if linkedAccounts[sub.AccountID] {
			cov.MatchedSubscriptions++
		}
	}
	if cov.TotalSubscriptions > 0 {
		cov.SubscriptionPct = 100 * float64(cov.MatchedSubscriptions) / float64(cov.TotalSubscriptions)
	}

	var expectedAll, expectedMatched decimal.Decimal
	for _, seg := range in.Segments {
		expectedAll = expectedAll.Add(seg.ExpectedAmount)
		if linkedRSX[seg.RSXID] {
			expectedMatched = expectedMatched.Add(seg.ExpectedAmount)
		}
	}
	if !expectedAll.IsZero() {
		pct, _ := expectedMatched.Div(expectedAll).Mul(decimal.NewFromInt(100)).Float64()
		cov.ARRPct = pct
	}
	return cov
}

func revenueAtRisk(summaries []*models.AccountSummary) []RiskEntry {
	byStatus := map[models.VarianceStatus]*RiskEntry{}
	for _, sum := range summaries {
		k := sum.PrimaryVarianceType
		if k == models.StatusClean {
			continue
		}
		entry, ok := byStatus[k]
		if !ok {
			entry = &RiskEntry{Status: k}
			byStatus[k] = entry
		}
		entry.Amount = entry.Amount.Add(sum.TotalVariance.Abs())
		entry.Accounts++
	}

	out := make([]RiskEntry, 0, len(byStatus))
	for _, e := range byStatus {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Status.Priority() < out[j].Status.Priority()
	})
	return out
}

func quickFindings(summaries []*models.AccountSummary, limit int) []Finding {
	flagged := make([]*models.AccountSummary, 0, len(summaries))
	for _, sum := range summaries {
		if sum.PrimaryVarianceType != models.StatusClean {
			flagged = append(flagged, sum)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		vi, vj := flagged[i].TotalVariance.Abs(), flagged[j].TotalVariance.Abs()
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return flagged[i].AccountID < flagged[j].AccountID
	})
	if len(flagged) > limit {
		flagged = flagged[:limit]
	}

	out := make([]Finding, 0, len(flagged))
	for _, sum := range flagged {
		out = append(out, Finding{
			RSXID:       sum.RSXID,
			AccountID:   sum.AccountID,
			AccountName: sum.AccountName,
			Status:      sum.PrimaryVarianceType,
			Variance:    sum.TotalVariance,
		})
	}
	return out
}

func clip(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
