// Package lifecycle expands subscriptions into calendar-aligned monthly
// revenue segments within a reporting period.
//
// Each segment covers one (subscription, month) slice, prorated by inclusive
// day count. A ramp step landing inside a month splits that month into
// sub-segments with disjoint day ranges so that every segment carries a
// single effective MRR. Expected amounts round half-even to two digits.
package lifecycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/logger"
)

// Result carries the segment set and the subscriptions refused along the way.
type Result struct {
	Segments   []*models.RevenueSegment `json:"segments"`
	Exclusions []*models.Exclusion      `json:"exclusions"`
}

// Builder generates revenue segments for an identity spine.
type Builder struct {
	log logger.Logger
	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{
		log: logger.GetGlobalLogger().WithComponent("lifecycle"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Build slices every subscription reachable from the spine into monthly
// segments clamped to [periodStart, periodEnd]. Subscriptions with
// usage-based pricing, negative MRR, or an inverted interval are excluded;
// subscriptions that do not intersect the period are skipped silently.
func (b *Builder) Build(spine []*models.IdentityLink, subsByAccount map[string][]*models.Subscription, periodStart, periodEnd time.Time) *Result {
	res := &Result{Segments: []*models.RevenueSegment{}, Exclusions: []*models.Exclusion{}}

	links := append([]*models.IdentityLink(nil), spine...)
	sort.Slice(links, func(i, j int) bool { return links[i].AccountID < links[j].AccountID })

	for _, link := range links {
		subs := append([]*models.Subscription(nil), subsByAccount[link.AccountID]...)
		sort.Slice(subs, func(i, j int) bool { return subs[i].SubscriptionID < subs[j].SubscriptionID })

		for _, sub := range subs {
			if excl := b.checkStructure(sub); excl != nil {
				res.Exclusions = append(res.Exclusions, excl)
				continue
			}
			res.Segments = append(res.Segments, b.slice(link.RSXID, sub, periodStart, periodEnd)...)
		}
	}

	b.log.WithFields(logger.Fields{
		"segments":   len(res.Segments),
		"exclusions": len(res.Exclusions),
	}).Info("segment generation completed")
	return res
}

func (b *Builder) checkStructure(sub *models.Subscription) *models.Exclusion {
	var desc string
	switch {
	case sub.PricingModel == models.PricingUsage:
		desc = "usage-based pricing cannot be expanded into fixed monthly segments"
	case sub.MRR.IsNegative():
		desc = fmt.Sprintf("negative mrr %s", sub.MRR.StringFixed(2))
	case sub.EndDate.Before(sub.StartDate):
		desc = fmt.Sprintf("end date %s precedes start date %s",
			sub.EndDate.Format("2006-01-02"), sub.StartDate.Format("2006-01-02"))
	default:
		return nil
	}
	return &models.Exclusion{
		RecordType:  "subscription",
		RecordID:    sub.SubscriptionID,
		ReasonCode:  models.ExclusionUnsupportedStructure,
		Description: desc,
		ExcludedAt:  b.now(),
	}
}

// slice produces the month-tiled segments for one subscription. The union of
// the returned day ranges equals the subscription interval intersected with
// the reporting period, with no overlap.
func (b *Builder) slice(rsxID string, sub *models.Subscription, periodStart, periodEnd time.Time) []*models.RevenueSegment {
	clampStart := maxDate(sub.StartDate, periodStart)
	clampEnd := minDate(sub.EndDate, periodEnd)
	if clampEnd.Before(clampStart) {
		return nil
	}

	var segments []*models.RevenueSegment
	cursor := clampStart
	for !cursor.After(clampEnd) {
		monthFirst, monthLast := models.MonthBounds(cursor)
		segStart := cursor
		segEnd := minDate(monthLast, clampEnd)
		totalDays := models.DaysInMonth(monthFirst)
		period := models.MonthKey(monthFirst)

		for seq, iv := range splitAtRampSteps(segStart, segEnd, sub.RampSchedule) {
			mrr := effectiveMRR(sub, iv.start)
			daysActive := models.InclusiveDays(iv.start, iv.end)
			segments = append(segments, &models.RevenueSegment{
				SegmentID:      fmt.Sprintf("%s-%s-%d", sub.SubscriptionID, period, seq+1),
				RSXID:          rsxID,
				SubscriptionID: sub.SubscriptionID,
				Period:         period,
				SegmentStart:   iv.start,
				SegmentEnd:     iv.end,
				DaysActive:     daysActive,
				TotalDays:      totalDays,
				MRREffective:   mrr,
				ExpectedAmount: prorate(mrr, daysActive, totalDays),
				IsProrated:     daysActive < totalDays,
			})
		}
		cursor = monthLast.AddDate(0, 0, 1)
	}
	return segments
}

type interval struct {
	start, end time.Time
}

// splitAtRampSteps cuts [start, end] at every ramp effective date strictly
// inside it, so each returned interval sees one effective MRR.
func splitAtRampSteps(start, end time.Time, ramp []models.RampStep) []interval {
	cuts := []time.Time{}
	for _, step := range ramp {
		if step.EffectiveDate.After(start) && !step.EffectiveDate.After(end) {
			cuts = append(cuts, step.EffectiveDate)
		}
	}
	if len(cuts) == 0 {
		return []interval{{start: start, end: end}}
	}

	var out []interval
	cursor := start
	for _, cut := range cuts {
		out = append(out, interval{start: cursor, end: cut.AddDate(0, 0, -1)})
		cursor = cut
	}
	out = append(out, interval{start: cursor, end: end})
	return out
}

// effectiveMRR returns the MRR in force on the given date: the latest ramp
// step at or before it, falling back to the base MRR.
func effectiveMRR(sub *models.Subscription, on time.Time) decimal.Decimal {
	mrr := sub.MRR
	for _, step := range sub.RampSchedule {
		if step.EffectiveDate.After(on) {
			break
		}
		mrr = step.MRR
	}
	return mrr
}

func prorate(mrr decimal.Decimal, daysActive, totalDays int) decimal.Decimal {
	return mrr.
		Mul(decimal.NewFromInt(int64(daysActive))).
		Div(decimal.NewFromInt(int64(totalDays))).
		RoundBank(2)
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
