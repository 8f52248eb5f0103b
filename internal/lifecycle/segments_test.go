package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sub(id string, start, end time.Time, mrr int64) *models.Subscription {
	return &models.Subscription{
		SubscriptionID: id,
		AccountID:      "ACC-1",
		StartDate:      start,
		EndDate:        end,
		MRR:            decimal.NewFromInt(mrr),
		Currency:       "USD",
		PricingModel:   models.PricingFlat,
	}
}

func spineFor(rsxID string) []*models.IdentityLink {
	return []*models.IdentityLink{{
		RSXID:     rsxID,
		AccountID: "ACC-1",
		MatchType: models.MatchTypeExact,
	}}
}

func build(t *testing.T, s *models.Subscription, periodStart, periodEnd time.Time) *Result {
	t.Helper()
	return NewBuilder().Build(spineFor("RSX-AAAAA"),
		map[string][]*models.Subscription{"ACC-1": {s}}, periodStart, periodEnd)
}

func TestBuildFullYearCleanSegments(t *testing.T) {
	s := sub("SUB-1", date(2024, 1, 1), date(2024, 12, 31), 1000)
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 12 {
		t.Fatalf("Expected 12 segments, got %d", len(res.Segments))
	}
	for _, seg := range res.Segments {
		if seg.IsProrated {
			t.Errorf("Expected full months, got prorated segment %s", seg.SegmentID)
		}
		if seg.ExpectedAmount.String() != "1000" {
			t.Errorf("Expected 1000 for %s, got %s", seg.Period, seg.ExpectedAmount)
		}
		if seg.RSXID != "RSX-AAAAA" {
			t.Errorf("Expected rsx id carried onto segment, got %s", seg.RSXID)
		}
	}
	if res.Segments[0].Period != "2024-01" || res.Segments[11].Period != "2024-12" {
		t.Errorf("Expected periods 2024-01..2024-12, got %s..%s",
			res.Segments[0].Period, res.Segments[11].Period)
	}
}

func TestBuildProratesBoundaryMonths(t *testing.T) {
	s := sub("SUB-1", date(2024, 2, 10), date(2024, 11, 20), 3000)
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 10 {
		t.Fatalf("Expected 10 segments, got %d", len(res.Segments))
	}

	feb := res.Segments[0]
	if feb.DaysActive != 20 || feb.TotalDays != 29 {
		t.Errorf("Expected 20/29 days in the leap February, got %d/%d", feb.DaysActive, feb.TotalDays)
	}
	if feb.ExpectedAmount.String() != "2068.97" {
		t.Errorf("Expected 2068.97 for February, got %s", feb.ExpectedAmount)
	}
	if !feb.IsProrated {
		t.Error("Expected the February segment to be prorated")
	}

	nov := res.Segments[9]
	if nov.ExpectedAmount.String() != "2000" {
		t.Errorf("Expected 2000 for November, got %s", nov.ExpectedAmount)
	}
	if nov.SegmentEnd != date(2024, 11, 20) {
		t.Errorf("Expected the last segment to end on the subscription end, got %s", nov.SegmentEnd)
	}

	mar := res.Segments[1]
	if mar.IsProrated || mar.ExpectedAmount.String() != "3000" {
		t.Errorf("Expected a full March at 3000, got prorated=%v amount=%s", mar.IsProrated, mar.ExpectedAmount)
	}
}

func TestBuildClampsToReportingPeriod(t *testing.T) {
	s := sub("SUB-1", date(2023, 6, 1), date(2025, 6, 30), 500)
	res := build(t, s, date(2024, 1, 1), date(2024, 3, 31))

	if len(res.Segments) != 3 {
		t.Fatalf("Expected 3 segments inside the period, got %d", len(res.Segments))
	}
	if res.Segments[0].SegmentStart != date(2024, 1, 1) {
		t.Errorf("Expected clamp to the period start, got %s", res.Segments[0].SegmentStart)
	}
	if res.Segments[2].SegmentEnd != date(2024, 3, 31) {
		t.Errorf("Expected clamp to the period end, got %s", res.Segments[2].SegmentEnd)
	}
}

func TestBuildSingleDaySegment(t *testing.T) {
	s := sub("SUB-1", date(2024, 12, 31), date(2025, 6, 30), 3100)
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 1 {
		t.Fatalf("Expected 1 boundary segment, got %d", len(res.Segments))
	}
	seg := res.Segments[0]
	if seg.DaysActive != 1 {
		t.Errorf("Expected a single active day, got %d", seg.DaysActive)
	}
	if seg.ExpectedAmount.String() != "100" {
		t.Errorf("Expected 3100/31 = 100, got %s", seg.ExpectedAmount)
	}
}

func TestBuildSkipsNonIntersectingSubscription(t *testing.T) {
	s := sub("SUB-1", date(2023, 1, 1), date(2023, 12, 31), 1000)
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 0 {
		t.Errorf("Expected no segments outside the period, got %d", len(res.Segments))
	}
	if len(res.Exclusions) != 0 {
		t.Errorf("Expected a silent skip, got exclusions %v", res.Exclusions)
	}
}

func TestBuildRampSplitsMidMonth(t *testing.T) {
	s := sub("SUB-1", date(2024, 1, 1), date(2024, 12, 31), 1000)
	s.PricingModel = models.PricingRamp
	s.RampSchedule = []models.RampStep{
		{EffectiveDate: date(2024, 7, 15), MRR: decimal.NewFromInt(1500)},
	}
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 13 {
		t.Fatalf("Expected 13 segments after the July split, got %d", len(res.Segments))
	}

	var july []*models.RevenueSegment
	for _, seg := range res.Segments {
		if seg.Period == "2024-07" {
			july = append(july, seg)
		}
	}
	if len(july) != 2 {
		t.Fatalf("Expected July split into 2 sub-segments, got %d", len(july))
	}

	first, second := july[0], july[1]
	if first.SegmentEnd != date(2024, 7, 14) || second.SegmentStart != date(2024, 7, 15) {
		t.Errorf("Expected the split at the ramp date, got %s / %s", first.SegmentEnd, second.SegmentStart)
	}
	if first.MRREffective.String() != "1000" || second.MRREffective.String() != "1500" {
		t.Errorf("Expected MRR 1000 then 1500, got %s then %s", first.MRREffective, second.MRREffective)
	}
	if first.ExpectedAmount.String() != "451.61" {
		t.Errorf("Expected 1000*14/31 = 451.61, got %s", first.ExpectedAmount)
	}
	if second.ExpectedAmount.String() != "822.58" {
		t.Errorf("Expected 1500*17/31 = 822.58, got %s", second.ExpectedAmount)
	}
	if !first.IsProrated || !second.IsProrated {
		t.Error("Expected both July sub-segments to be marked prorated")
	}

	aug := segmentForPeriod(t, res.Segments, "2024-08")
	if aug.MRREffective.String() != "1500" || aug.ExpectedAmount.String() != "1500" {
		t.Errorf("Expected August at the ramped MRR, got %s / %s", aug.MRREffective, aug.ExpectedAmount)
	}
}

func TestBuildRampOnMonthBoundary(t *testing.T) {
	s := sub("SUB-1", date(2024, 1, 1), date(2024, 12, 31), 1000)
	s.PricingModel = models.PricingRamp
	s.RampSchedule = []models.RampStep{
		{EffectiveDate: date(2024, 7, 1), MRR: decimal.NewFromInt(1500)},
	}
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 12 {
		t.Fatalf("Expected no split for a boundary-aligned ramp, got %d segments", len(res.Segments))
	}
	jun := segmentForPeriod(t, res.Segments, "2024-06")
	jul := segmentForPeriod(t, res.Segments, "2024-07")
	if jun.MRREffective.String() != "1000" || jul.MRREffective.String() != "1500" {
		t.Errorf("Expected 1000 in June and 1500 in July, got %s / %s", jun.MRREffective, jul.MRREffective)
	}
}

func TestBuildExcludesUnsupportedStructures(t *testing.T) {
	usage := sub("SUB-U", date(2024, 1, 1), date(2024, 12, 31), 1000)
	usage.PricingModel = models.PricingUsage
	negative := sub("SUB-N", date(2024, 1, 1), date(2024, 12, 31), 0)
	negative.MRR = decimal.NewFromInt(-100)
	inverted := sub("SUB-I", date(2024, 6, 1), date(2024, 1, 1), 1000)

	res := NewBuilder().Build(spineFor("RSX-AAAAA"),
		map[string][]*models.Subscription{"ACC-1": {usage, negative, inverted}},
		date(2024, 1, 1), date(2024, 12, 31))

	if len(res.Segments) != 0 {
		t.Errorf("Expected no segments, got %d", len(res.Segments))
	}
	if len(res.Exclusions) != 3 {
		t.Fatalf("Expected 3 exclusions, got %d", len(res.Exclusions))
	}
	for _, e := range res.Exclusions {
		if e.ReasonCode != models.ExclusionUnsupportedStructure {
			t.Errorf("Expected UNSUPPORTED_STRUCTURE for %s, got %s", e.RecordID, e.ReasonCode)
		}
		if e.RecordType != "subscription" {
			t.Errorf("Expected subscription record type, got %s", e.RecordType)
		}
	}
}

func TestBuildSegmentsTileInterval(t *testing.T) {
	s := sub("SUB-1", date(2024, 2, 10), date(2024, 11, 20), 3000)
	s.RampSchedule = []models.RampStep{
		{EffectiveDate: date(2024, 5, 20), MRR: decimal.NewFromInt(4000)},
	}
	res := build(t, s, date(2024, 1, 1), date(2024, 12, 31))

	total := 0
	for i, seg := range res.Segments {
		total += seg.DaysActive
		if i > 0 {
			prev := res.Segments[i-1]
			if seg.SegmentStart != prev.SegmentEnd.AddDate(0, 0, 1) {
				t.Errorf("Expected contiguous segments, got gap between %s and %s",
					prev.SegmentEnd, seg.SegmentStart)
			}
		}
	}
	want := models.InclusiveDays(date(2024, 2, 10), date(2024, 11, 20))
	if total != want {
		t.Errorf("Expected %d total active days, got %d", want, total)
	}
}

func segmentForPeriod(t *testing.T, segments []*models.RevenueSegment, period string) *models.RevenueSegment {
	t.Helper()
	for _, seg := range segments {
		if seg.Period == period {
			return seg
		}
	}
	t.Fatalf("Expected a segment for period %s", period)
	return nil
}
