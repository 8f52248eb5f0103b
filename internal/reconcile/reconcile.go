// Package reconcile allocates billing documents onto revenue segments and
// classifies the resulting variances.
//
// The engine runs per rsx id in three phases: invoice allocation by period
// overlap, credit-note netting (mirroring the linked invoice's split or
// landing standalone on a single month), and variance classification against
// a fixed tolerance. All arithmetic uses decimals; proportional splits put
// the rounding residue on the final segment so document amounts are
// conserved exactly.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/logger"
)

// DefaultTolerance is the variance band treated as clean, in currency units.
var DefaultTolerance = decimal.NewFromInt(1)

// Result is the full reconciliation output for one run.
type Result struct {
	Variances   []*models.SegmentVariance `json:"variances"`
	Allocations []*models.Allocation      `json:"allocations"`
	Exclusions  []*models.Exclusion       `json:"exclusions"`
	Summaries   []*models.AccountSummary  `json:"summaries"`
}

// Engine reconciles invoices, credit notes, and payments against segments.
type Engine struct {
	log       logger.Logger
	now       func() time.Time
	tolerance decimal.Decimal
}

// NewEngine creates an Engine with the default tolerance.
func NewEngine() *Engine {
	return &Engine{
		log:       logger.GetGlobalLogger().WithComponent("reconcile"),
		now:       func() time.Time { return time.Now().UTC() },
		tolerance: DefaultTolerance,
	}
}

// WithTolerance overrides the clean-variance band.
func (e *Engine) WithTolerance(t decimal.Decimal) *Engine {
	e.tolerance = t
	return e
}

// docAllocation tracks how one document spread across segments.
type docAllocation struct {
	total  decimal.Decimal
	splits []docSplit
	method models.AllocationMethod
}

type docSplit struct {
	segmentID string
	amount    decimal.Decimal
}

// Run reconciles every account on the spine against its billing documents.
func (e *Engine) Run(spine []*models.IdentityLink, segments []*models.RevenueSegment, dataset *models.Dataset) *Result {
	res := &Result{
		Variances:   []*models.SegmentVariance{},
		Allocations: []*models.Allocation{},
		Exclusions:  []*models.Exclusion{},
		Summaries:   []*models.AccountSummary{},
	}

	segmentsByRSX := map[string][]*models.RevenueSegment{}
	for _, seg := range segments {
		segmentsByRSX[seg.RSXID] = append(segmentsByRSX[seg.RSXID], seg)
	}
	invoicesByCustomer := dataset.InvoicesByCustomer()
	creditNotesByCustomer := dataset.CreditNotesByCustomer()

	links := append([]*models.IdentityLink(nil), spine...)
	sort.Slice(links, func(i, j int) bool { return links[i].AccountID < links[j].AccountID })

	for _, link := range links {
		segs := append([]*models.RevenueSegment(nil), segmentsByRSX[link.RSXID]...)
		sort.Slice(segs, func(i, j int) bool {
			if !segs[i].SegmentStart.Equal(segs[j].SegmentStart) {
				return segs[i].SegmentStart.Before(segs[j].SegmentStart)
			}
			return segs[i].SegmentID < segs[j].SegmentID
		})

		var invoices []*models.Invoice
		var creditNotes []*models.CreditNote
		if link.CustomerID != "" {
			invoices = append(invoices, invoicesByCustomer[link.CustomerID]...)
			creditNotes = append(creditNotes, creditNotesByCustomer[link.CustomerID]...)
		}
		sort.Slice(invoices, func(i, j int) bool { return invoices[i].InvoiceID < invoices[j].InvoiceID })
		sort.Slice(creditNotes, func(i, j int) bool { return creditNotes[i].CreditNoteID < creditNotes[j].CreditNoteID })

		invoiceAllocs := e.allocateInvoices(res, segs, invoices)
		creditAllocs := e.allocateCreditNotes(res, segs, creditNotes, invoiceAllocs)
		variances := e.classify(link, segs, invoices, invoiceAllocs, creditAllocs, dataset)
		res.Variances = append(res.Variances, variances...)
		res.Summaries = append(res.Summaries, e.summarize(link, segs, variances, dataset))
	}

	e.log.WithFields(logger.Fields{
		"accounts":    len(res.Summaries),
		"variances":   len(res.Variances),
		"allocations": len(res.Allocations),
		"exclusions":  len(res.Exclusions),
	}).Info("reconciliation completed")
	return res
}

// allocateInvoices runs the period-overlap allocation for one account's
// invoices and returns the per-invoice splits.
func (e *Engine) allocateInvoices(res *Result, segs []*models.RevenueSegment, invoices []*models.Invoice) map[string]*docAllocation {
	allocs := map[string]*docAllocation{}

	for _, inv := range invoices {
		if inv.IsVoid() {
			res.Exclusions = append(res.Exclusions, &models.Exclusion{
				RecordType:  "invoice",
				RecordID:    inv.InvoiceID,
				ReasonCode:  models.ExclusionUnsupportedStructure,
				Description: "void invoice; any attached payments are ignored",
				ExcludedAt:  e.now(),
			})
			continue
		}

		type overlap struct {
			seg  *models.RevenueSegment
			days int
		}
		var overlaps []overlap
		totalDays := 0
		for _, seg := range segs {
			d := models.OverlapDays(seg.SegmentStart, seg.SegmentEnd, inv.PeriodStart, inv.PeriodEnd)
			if d > 0 {
				overlaps = append(overlaps, overlap{seg: seg, days: d})
				totalDays += d
			}
		}

		if len(overlaps) == 0 {
			res.Exclusions = append(res.Exclusions, &models.Exclusion{
				RecordType:  "invoice",
				RecordID:    inv.InvoiceID,
				ReasonCode:  models.ExclusionAllocationAmbiguous,
				Description: "no matching segment",
				ExcludedAt:  e.now(),
			})
			continue
		}

		alloc := &docAllocation{total: inv.Amount, method: models.AllocationExact}
		if len(overlaps) == 1 {
			alloc.splits = []docSplit{{segmentID: overlaps[0].seg.SegmentID, amount: inv.Amount}}
		} else {
			alloc.method = models.AllocationProportional
			remaining := inv.Amount
			for i, ov := range overlaps {
				var amt decimal.Decimal
				if i == len(overlaps)-1 {
					amt = remaining
				} else {
					amt = inv.Amount.
						Mul(decimal.NewFromInt(int64(ov.days))).
						Div(decimal.NewFromInt(int64(totalDays))).
						RoundBank(2)
					remaining = remaining.Sub(amt)
				}
				alloc.splits = append(alloc.splits, docSplit{segmentID: ov.seg.SegmentID, amount: amt})
			}
		}
		allocs[inv.InvoiceID] = alloc

		for _, s := range alloc.splits {
			res.Allocations = append(res.Allocations, &models.Allocation{
				DocumentType:    models.DocumentInvoice,
				DocumentID:      inv.InvoiceID,
				SegmentID:       s.segmentID,
				AllocatedAmount: s.amount,
				Method:          alloc.method,
			})
		}
	}
	return allocs
}

// allocateCreditNotes nets credit notes onto segments. Linked notes mirror
// the invoice's split; standalone notes must land on exactly one segment in
// the month of their credit date.
func (e *Engine) allocateCreditNotes(res *Result, segs []*models.RevenueSegment, creditNotes []*models.CreditNote, invoiceAllocs map[string]*docAllocation) map[string]*docAllocation {
	allocs := map[string]*docAllocation{}

	for _, cn := range creditNotes {
		if cn.IsLinked() {
			if inv, ok := invoiceAllocs[cn.InvoiceID]; ok {
				allocs[cn.CreditNoteID] = e.mirrorSplit(res, cn, inv)
				continue
			}
		}
		e.allocateStandalone(res, allocs, segs, cn)
	}
	return allocs
}

func (e *Engine) mirrorSplit(res *Result, cn *models.CreditNote, inv *docAllocation) *docAllocation {
	alloc := &docAllocation{total: cn.Amount, method: inv.method}
	remaining := cn.Amount
	for i, s := range inv.splits {
		var amt decimal.Decimal
		if i == len(inv.splits)-1 {
			amt = remaining
		} else {
			amt = cn.Amount.Mul(s.amount).Div(inv.total).RoundBank(2)
			remaining = remaining.Sub(amt)
		}
		alloc.splits = append(alloc.splits, docSplit{segmentID: s.segmentID, amount: amt})
		res.Allocations = append(res.Allocations, &models.Allocation{
			DocumentType:    models.DocumentCreditNote,
			DocumentID:      cn.CreditNoteID,
			SegmentID:       s.segmentID,
			AllocatedAmount: amt,
			Method:          inv.method,
		})
	}
	return alloc
}

func (e *Engine) allocateStandalone(res *Result, allocs map[string]*docAllocation, segs []*models.RevenueSegment, cn *models.CreditNote) {
	monthFirst, monthLast := models.MonthBounds(cn.CreditDate)
	var hits []*models.RevenueSegment
	for _, seg := range segs {
		if models.OverlapDays(seg.SegmentStart, seg.SegmentEnd, monthFirst, monthLast) > 0 {
			hits = append(hits, seg)
		}
	}
	if len(hits) != 1 {
		res.Exclusions = append(res.Exclusions, &models.Exclusion{
			RecordType:  "credit_note",
			RecordID:    cn.CreditNoteID,
			ReasonCode:  models.ExclusionCreditNoteUnallocated,
			Description: fmt.Sprintf("%d segments overlap the credit month %s", len(hits), models.MonthKey(cn.CreditDate)),
			ExcludedAt:  e.now(),
		})
		return
	}

	allocs[cn.CreditNoteID] = &docAllocation{
		total:  cn.Amount,
		method: models.AllocationStandalone,
		splits: []docSplit{{segmentID: hits[0].SegmentID, amount: cn.Amount}},
	}
	res.Allocations = append(res.Allocations, &models.Allocation{
		DocumentType:    models.DocumentCreditNote,
		DocumentID:      cn.CreditNoteID,
		SegmentID:       hits[0].SegmentID,
		AllocatedAmount: cn.Amount,
		Method:          models.AllocationStandalone,
	})
}

// classify computes the per-segment variance rows for one account.
func (e *Engine) classify(link *models.IdentityLink, segs []*models.RevenueSegment, invoices []*models.Invoice,
	invoiceAllocs, creditAllocs map[string]*docAllocation, dataset *models.Dataset) []*models.SegmentVariance {

	invoicedBySegment := map[string]decimal.Decimal{}
	collectedBySegment := map[string]decimal.Decimal{}
	methodBySegment := map[string]models.AllocationMethod{}
	for _, inv := range invoices {
		alloc, ok := invoiceAllocs[inv.InvoiceID]
		if !ok {
			continue
		}
		paid := decimal.Zero
		for _, p := range dataset.PaymentsByInvoice[inv.InvoiceID] {
			paid = paid.Add(p.Amount)
		}
		for _, s := range alloc.splits {
			invoicedBySegment[s.segmentID] = invoicedBySegment[s.segmentID].Add(s.amount)
			if !alloc.total.IsZero() {
				fraction := s.amount.Div(alloc.total)
				collectedBySegment[s.segmentID] = collectedBySegment[s.segmentID].Add(paid.Mul(fraction))
			}
			if methodBySegment[s.segmentID] != models.AllocationProportional {
				methodBySegment[s.segmentID] = alloc.method
			}
		}
	}

	creditBySegment := map[string]decimal.Decimal{}
	for _, alloc := range creditAllocs {
		for _, s := range alloc.splits {
			creditBySegment[s.segmentID] = creditBySegment[s.segmentID].Add(s.amount)
		}
	}

	var out []*models.SegmentVariance
	for _, seg := range segs {
		invoiced := invoicedBySegment[seg.SegmentID]
		credits := creditBySegment[seg.SegmentID]
		effective := invoiced.Sub(credits)
		collected := collectedBySegment[seg.SegmentID].RoundBank(2)
		variance := effective.Sub(seg.ExpectedAmount)

		v := &models.SegmentVariance{
			SegmentID:         seg.SegmentID,
			RSXID:             seg.RSXID,
			SubscriptionID:    seg.SubscriptionID,
			Period:            seg.Period,
			Expected:          seg.ExpectedAmount,
			Invoiced:          invoiced,
			CreditNotes:       credits,
			EffectiveInvoiced: effective,
			Collected:         collected,
			Variance:          variance,
			Status:            e.status(link, seg.ExpectedAmount, effective, collected, variance),
			AllocationMethod:  string(methodBySegment[seg.SegmentID]),
		}
		out = append(out, v)
	}
	return out
}

// status applies the classification decision table top to bottom.
func (e *Engine) status(link *models.IdentityLink, expected, effective, collected, variance decimal.Decimal) models.VarianceStatus {
	switch {
	case !link.MatchType.IsLinked():
		return models.StatusUnknown
	case effective.IsZero() && expected.GreaterThan(e.tolerance):
		return models.StatusMissingInvoice
	case variance.Abs().LessThanOrEqual(e.tolerance):
		if collected.GreaterThanOrEqual(effective.Sub(e.tolerance)) {
			return models.StatusClean
		}
		return models.StatusUnpaidAR
	case variance.LessThan(e.tolerance.Neg()):
		return models.StatusUnderBilled
	default:
		return models.StatusOverBilled
	}
}

// summarize rolls segment variances up to one account row.
func (e *Engine) summarize(link *models.IdentityLink, segs []*models.RevenueSegment, variances []*models.SegmentVariance, dataset *models.Dataset) *models.AccountSummary {
	sum := &models.AccountSummary{
		RSXID:        link.RSXID,
		AccountID:    link.AccountID,
		CustomerID:   link.CustomerID,
		MatchType:    link.MatchType,
		SegmentCount: len(segs),
		StatusCounts: map[models.VarianceStatus]int{},
	}
	if a, ok := dataset.AccountsByID[link.AccountID]; ok {
		sum.AccountName = a.AccountName
	}
	if c, ok := dataset.CustomersByID[link.CustomerID]; ok {
		sum.CustomerName = c.CustomerName
	}

	subsSeen := map[string]bool{}
	periodsSeen := map[string]bool{}
	for _, seg := range segs {
		subsSeen[seg.SubscriptionID] = true
		periodsSeen[seg.Period] = true
	}
	sum.SubscriptionCount = len(subsSeen)
	for p := range periodsSeen {
		sum.Periods = append(sum.Periods, p)
	}
	sort.Strings(sum.Periods)

	varianceByStatus := map[models.VarianceStatus]decimal.Decimal{}
	allocated := 0
	for _, v := range variances {
		sum.TotalExpected = sum.TotalExpected.Add(v.Expected)
		sum.TotalInvoiced = sum.TotalInvoiced.Add(v.Invoiced)
		sum.TotalCreditNotes = sum.TotalCreditNotes.Add(v.CreditNotes)
		sum.TotalEffective = sum.TotalEffective.Add(v.EffectiveInvoiced)
		sum.TotalCollected = sum.TotalCollected.Add(v.Collected)
		sum.TotalVariance = sum.TotalVariance.Add(v.Variance)
		sum.StatusCounts[v.Status]++
		if v.Status != models.StatusClean {
			varianceByStatus[v.Status] = varianceByStatus[v.Status].Add(v.Variance.Abs())
		}
		if m := models.AllocationMethod(v.AllocationMethod); m == models.AllocationExact || m == models.AllocationProportional {
			allocated++
		}
	}

	sum.PrimaryVarianceType = primaryStatus(varianceByStatus)
	sum.LineageStatus = lineageStatus(link, len(segs), allocated)
	return sum
}

// primaryStatus picks the non-clean status with the largest absolute
// aggregate variance, breaking ties by classification priority.
func primaryStatus(varianceByStatus map[models.VarianceStatus]decimal.Decimal) models.VarianceStatus {
	primary := models.StatusClean
	best := decimal.Zero
	for status, total := range varianceByStatus {
		switch {
		case total.GreaterThan(best):
			primary, best = status, total
		case total.Equal(best) && status.Priority() < primary.Priority():
			primary = status
		}
	}
	return primary
}

func lineageStatus(link *models.IdentityLink, segments, allocated int) models.LineageStatus {
	if !link.MatchType.IsLinked() {
		return models.LineageUnknown
	}
	if segments > 0 && allocated == segments {
		return models.LineageComplete
	}
	return models.LineageIncomplete
}
