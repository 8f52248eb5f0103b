package scoring

import (
	"testing"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func cleanInputs() Inputs {
	spine := []*models.IdentityLink{
		{RSXID: "RSX-00001", AccountID: "ACC-1", CustomerID: "CUS-1", MatchType: models.MatchTypeExact},
	}
	segments := []*models.RevenueSegment{}
	variances := []*models.SegmentVariance{}
	allocations := []*models.Allocation{}
	for _, p := range []string{"2024-01", "2024-02", "2024-03"} {
		segID := "SUB-1-" + p + "-1"
		segments = append(segments, &models.RevenueSegment{
			SegmentID: segID, RSXID: "RSX-00001", SubscriptionID: "SUB-1",
			Period: p, ExpectedAmount: dec("1000"),
		})
		variances = append(variances, &models.SegmentVariance{
			SegmentID: segID, RSXID: "RSX-00001", Period: p,
			Expected: dec("1000"), Status: models.StatusClean,
			AllocationMethod: string(models.AllocationExact),
		})
		allocations = append(allocations, &models.Allocation{
			DocumentType: models.DocumentInvoice, SegmentID: segID,
			AllocatedAmount: dec("1000"), Method: models.AllocationExact,
		})
	}
	return Inputs{
		Spine:         spine,
		Subscriptions: []*models.Subscription{{SubscriptionID: "SUB-1", AccountID: "ACC-1"}},
		Segments:      segments,
		Variances:     variances,
		Allocations:   allocations,
		Summaries: []*models.AccountSummary{{
			RSXID: "RSX-00001", AccountID: "ACC-1", AccountName: "Acme",
			PrimaryVarianceType: models.StatusClean,
		}},
	}
}

func TestComputeCleanBook(t *testing.T) {
	score := NewScorer().Compute(cleanInputs())

	if score.Overall != 100 {
		t.Errorf("Expected a perfect score, got %d", score.Overall)
	}
	if score.Band != BandGreen {
		t.Errorf("Expected the green band, got %s", score.Band)
	}
	if score.Interpretation == "" {
		t.Error("Expected an interpretation for the band")
	}
	if score.Coverage.SubscriptionPct != 100 || score.Coverage.ARRPct != 100 {
		t.Errorf("Expected full coverage, got %+v", score.Coverage)
	}
	if len(score.RevenueAtRisk) != 0 {
		t.Errorf("Expected no revenue at risk, got %+v", score.RevenueAtRisk)
	}
	if len(score.QuickFindings) != 0 {
		t.Errorf("Expected no findings, got %+v", score.QuickFindings)
	}
}

func TestComputeUnmatchedAccountLowersScore(t *testing.T) {
	in := cleanInputs()
	in.Spine = append(in.Spine, &models.IdentityLink{
		RSXID: "RSX-00002", AccountID: "ACC-2", MatchType: models.MatchTypeUnmatched,
	})
	in.Subscriptions = append(in.Subscriptions, &models.Subscription{SubscriptionID: "SUB-2", AccountID: "ACC-2"})
	in.Segments = append(in.Segments, &models.RevenueSegment{
		SegmentID: "SUB-2-2024-01-1", RSXID: "RSX-00002", SubscriptionID: "SUB-2",
		Period: "2024-01", ExpectedAmount: dec("1000"),
	})
	in.Variances = append(in.Variances, &models.SegmentVariance{
		SegmentID: "SUB-2-2024-01-1", RSXID: "RSX-00002", Period: "2024-01",
		Expected: dec("1000"), Variance: dec("-1000"), Status: models.StatusUnknown,
	})
	in.Summaries = append(in.Summaries, &models.AccountSummary{
		RSXID: "RSX-00002", AccountID: "ACC-2", AccountName: "Globex",
		PrimaryVarianceType: models.StatusUnknown, TotalVariance: dec("-1000"),
	})

	score := NewScorer().Compute(in)

	if score.Components.EntityMatchRate != 50 {
		t.Errorf("Expected 50%% entity match, got %f", score.Components.EntityMatchRate)
	}
	if score.Components.VarianceCleanliness != 75 {
		t.Errorf("Expected 75%% cleanliness, got %f", score.Components.VarianceCleanliness)
	}
	if score.Coverage.SubscriptionPct != 50 {
		t.Errorf("Expected 50%% subscription coverage, got %f", score.Coverage.SubscriptionPct)
	}
	if score.Overall >= 90 {
		t.Errorf("Expected the unknown exposure to pull the score below green, got %d", score.Overall)
	}

	if len(score.RevenueAtRisk) != 1 {
		t.Fatalf("Expected one risk entry, got %d", len(score.RevenueAtRisk))
	}
	risk := score.RevenueAtRisk[0]
	if risk.Status != models.StatusUnknown || risk.Accounts != 1 || risk.Amount.String() != "1000" {
		t.Errorf("Unexpected risk entry: %+v", risk)
	}

	if len(score.QuickFindings) != 1 || score.QuickFindings[0].AccountID != "ACC-2" {
		t.Errorf("Expected ACC-2 flagged, got %+v", score.QuickFindings)
	}
}

func TestComputeBillingCoverageClipsAt100(t *testing.T) {
	in := cleanInputs()
	in.Allocations = append(in.Allocations, &models.Allocation{
		DocumentType: models.DocumentInvoice, SegmentID: "SUB-1-2024-01-1",
		AllocatedAmount: dec("5000"), Method: models.AllocationExact,
	})

	score := NewScorer().Compute(in)
	if score.Components.BillingCoverage != 100 {
		t.Errorf("Expected coverage clipped to 100, got %f", score.Components.BillingCoverage)
	}
}

func TestComputeQuickFindingsOrderedAndLimited(t *testing.T) {
	in := cleanInputs()
	amounts := []string{"50", "900", "300", "700", "100", "500"}
	for i, amt := range amounts {
		id := string(rune('B' + i))
		in.Summaries = append(in.Summaries, &models.AccountSummary{
			RSXID: "RSX-0000" + id, AccountID: "ACC-" + id, AccountName: "Acct " + id,
			PrimaryVarianceType: models.StatusUnderBilled, TotalVariance: dec(amt).Neg(),
		})
	}

	score := NewScorer().Compute(in)

	if len(score.QuickFindings) != DefaultFindingsLimit {
		t.Fatalf("Expected %d findings, got %d", DefaultFindingsLimit, len(score.QuickFindings))
	}
	if score.QuickFindings[0].Variance.Abs().String() != "900" {
		t.Errorf("Expected the largest variance first, got %s", score.QuickFindings[0].Variance)
	}
	last := score.QuickFindings[len(score.QuickFindings)-1]
	if last.Variance.Abs().String() != "100" {
		t.Errorf("Expected the 50 variance dropped, got smallest %s", last.Variance)
	}
}

func TestComputeEmptyRun(t *testing.T) {
	score := NewScorer().Compute(Inputs{})
	if score.Overall != 0 || score.Band != BandRed {
		t.Errorf("Expected a zero red score on an empty run, got %d/%s", score.Overall, score.Band)
	}
}

func TestBandThresholds(t *testing.T) {
	tests := []struct {
		overall int
		band    string
	}{
		{100, BandGreen}, {90, BandGreen}, {89, BandAmber}, {75, BandAmber},
		{74, BandOrange}, {60, BandOrange}, {59, BandRed}, {0, BandRed},
	}
	for _, tt := range tests {
		if got := bandFor(tt.overall); got != tt.band {
			t.Errorf("Expected band %s for score %d, got %s", tt.band, tt.overall, got)
		}
	}
}
