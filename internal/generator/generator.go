// Package generator produces seeded synthetic datasets for demos and
// end-to-end testing. The layout is fixed: sixty CRM accounts, a billing
// book that mostly mirrors them, and a known set of planted anomalies
// (missing invoices, under- and over-billing, unpaid AR, fuzzy and
// unmatched names, usage pricing, an annual invoice, stray credit notes).
// The same seed always yields byte-identical CSV tables.
package generator

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/pkg/logger"
)

// DefaultSeed keeps demo datasets stable across runs.
const DefaultSeed = 42

var companyNames = []string{
	"NovaPeak Software", "Meridian Digital", "BlueHarbor Systems", "CloudSpan Networks",
	"DataForge Analytics", "Zenith Platforms", "Summit Labs", "Crestline AI",
	"Horizon Grid", "Quantum Relay", "Atlas Dynamics", "Velocity Stack",
	"Fusion Works", "Nexus Intelligence", "Prism Metrics", "ClearPath Software",
	"Matrix Operations", "Ironwood Security", "Pioneer Digital", "Lighthouse Labs",
	"Cascade Data", "Signal Hill Tech", "Blueprint Compute", "TrueNorth Consulting",
	"Vanguard Systems", "WavePoint Tech", "Axiom Software", "BrightEdge Solutions",
	"Cobalt Platforms", "Dreamfield AI", "EchoBase Systems", "Frontier Logic",
	"Apex Global Partners", "GreenField Hosting", "HexaCore Computing", "InfiniteLoop Tech",
	"JadeStone Analytics", "Keystone Digital", "LaunchPad Ventures", "MoonRise Software",
	"Sterling Analytics Group", "NorthStar Data", "OmniStack Solutions", "Polaris Systems",
	"QuickSilver Tech", "RedShift Compute", "SkyVault Cloud", "TerraFlow Data",
	"UltraViolet Labs", "VectorSpace AI", "Windmill Software", "XenonByte Systems",
	"YieldMax Analytics", "ZeroGravity Tech", "AlphaWave Digital", "BetaForge Solutions",
	"Copperline Systems", "Driftwood Software", "Eastgate Digital", "Fernbrook Systems",
}

// Planted anomaly slots, keyed by account index in companyNames.
const (
	idxOverBilled     = 6  // June invoice above the booked MRR
	idxMissingInvoice = 11 // August and September never invoiced
	idxUnpaidAR       = 14 // invoices from October on left unpaid
	idxAnnualInvoice  = 21 // one invoice covering the whole year
	idxChurned        = 25
	idxUnderBilledOne = 30 // July invoiced at 7500 against 10000
	idxFuzzyApex      = 32 // billing name "Apex Global"
	idxCreditLinked   = 33 // linked credit note against the first invoice
	idxTolerance      = 38 // April invoice 0.87 short, inside tolerance
	idxFuzzySterling  = 40 // billing name "Sterling Analytics"
	idxUnderBilledRun = 43 // May through July short by 7333.33
	idxStandaloneCN   = 46 // standalone credit note dated outside the period
	idxMidMonthStart  = 57 // subscription starts March 15
)

var (
	unmatchedAccountIdx = map[int]bool{18: true, 51: true}
	prospectIdx         = map[int]bool{58: true, 59: true}
	usagePricingIdx     = map[int]bool{2: true, 9: true, 13: true, 29: true, 35: true}
	rampPricingIdx      = map[int]bool{4: true, 17: true, 36: true, 48: true, 53: true}
)

var mrrChoices = []int64{5000, 8000, 10000, 12000, 15000, 20000}

// Output is one generated dataset: canonical CSV text per table plus the
// period the tables cover and per-table row counts.
type Output struct {
	Tables      map[string]string `json:"-"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Counts      map[string]int    `json:"counts"`
}

// Sources adapts the generated tables for ingestion.
func (o *Output) Sources() parsers.TableSources {
	src := make(parsers.TableSources, len(o.Tables))
	for name, content := range o.Tables {
		src[name] = strings.NewReader(content)
	}
	return src
}

// Generator builds synthetic datasets from a seed.
type Generator struct {
	rng *rand.Rand
	log logger.Logger
}

// New creates a Generator. The same seed produces the same dataset.
func New(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		log: logger.GetGlobalLogger().WithComponent("generator"),
	}
}

type account struct {
	id, name, status, domain string
}

type subscription struct {
	id, accountID string
	start         time.Time
	mrr           decimal.Decimal
	pricing       models.PricingModel
	ramp          string
}

// Generate builds the full six-table dataset for calendar 2024.
func (g *Generator) Generate() *Output {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	accounts := g.buildAccounts()
	customers, custByAccount := g.buildCustomers(accounts)
	subs := g.buildSubscriptions(accounts)
	invoices, payments, firstInvoice := g.buildBilling(subs, custByAccount)
	creditNotes := g.buildCreditNotes(accounts, custByAccount, firstInvoice)

	tables := map[string]string{
		parsers.TableAccounts:      renderCSV(accountsHeader, accounts),
		parsers.TableCustomers:     renderCSV(customersHeader, customers),
		parsers.TableSubscriptions: renderCSV(subscriptionsHeader, subscriptionRows(subs)),
		parsers.TableInvoices:      renderCSV(invoicesHeader, invoices),
		parsers.TablePayments:      renderCSV(paymentsHeader, payments),
		parsers.TableCreditNotes:   renderCSV(creditNotesHeader, creditNotes),
	}

	counts := map[string]int{
		parsers.TableAccounts:      len(accounts),
		parsers.TableCustomers:     len(customers),
		parsers.TableSubscriptions: len(subs),
		parsers.TableInvoices:      len(invoices),
		parsers.TablePayments:      len(payments),
		parsers.TableCreditNotes:   len(creditNotes),
	}
	g.log.WithFields(logger.Fields{
		"accounts": counts[parsers.TableAccounts],
		"invoices": counts[parsers.TableInvoices],
	}).Info("synthetic dataset generated")

	return &Output{Tables: tables, PeriodStart: periodStart, PeriodEnd: periodEnd, Counts: counts}
}

var (
	accountsHeader      = []string{"account_id", "account_name", "account_status", "email_domain"}
	customersHeader     = []string{"customer_id", "customer_name", "customer_status", "email_domain"}
	subscriptionsHeader = []string{"subscription_id", "account_id", "start_date", "end_date", "mrr", "currency", "pricing_model", "ramp_schedule"}
	invoicesHeader      = []string{"invoice_id", "customer_id", "subscription_id", "invoice_date", "period_start", "period_end", "amount", "status"}
	paymentsHeader      = []string{"payment_id", "invoice_id", "payment_date", "amount"}
	creditNotesHeader   = []string{"credit_note_id", "customer_id", "invoice_id", "credit_date", "amount", "reason"}
)

func (g *Generator) buildAccounts() [][]string {
	rows := make([][]string, 0, len(companyNames))
	for i, name := range companyNames {
		status := string(models.AccountStatusActive)
		if prospectIdx[i] {
			status = string(models.AccountStatusProspect)
		}
		if i == idxChurned {
			status = string(models.AccountStatusChurned)
		}
		rows = append(rows, []string{accountID(i), name, status, domainFor(name)})
	}
	return rows
}

// buildCustomers mirrors the account book into billing, planting the two
// fuzzy names and three orphan billing customers with no CRM counterpart.
func (g *Generator) buildCustomers(accounts [][]string) ([][]string, map[string]string) {
	rows := [][]string{}
	custByAccount := map[string]string{}
	custIdx := 0
	for i, acc := range accounts {
		if prospectIdx[i] || unmatchedAccountIdx[i] {
			continue
		}
		custIdx++
		cid := fmt.Sprintf("CUST-%03d", custIdx)

		name := acc[1]
		domain := acc[3]
		switch i {
		case idxFuzzyApex:
			name = "Apex Global"
			domain = "apexglobal.example"
		case idxFuzzySterling:
			name = "Sterling Analytics"
			domain = "sterlinganalytics.example"
		}

		status := string(models.CustomerStatusActive)
		if i == idxChurned {
			status = string(models.CustomerStatusCancelled)
		}
		rows = append(rows, []string{cid, name, status, domain})
		custByAccount[acc[0]] = cid
	}

	for j := 1; j <= 3; j++ {
		custIdx++
		rows = append(rows, []string{
			fmt.Sprintf("CUST-%03d", custIdx),
			fmt.Sprintf("Orbital Billing Services %d", j),
			string(models.CustomerStatusActive),
			fmt.Sprintf("orbital%d.example", j),
		})
	}
	return rows, custByAccount
}

func (g *Generator) buildSubscriptions(accounts [][]string) []*subscription {
	subs := []*subscription{}
	subIdx := 0
	for i, acc := range accounts {
		if prospectIdx[i] {
			continue
		}
		count := 1
		if i%8 == 0 {
			count = 2
		}
		for n := 0; n < count && len(subs) < 70; n++ {
			subIdx++
			mrr := decimal.NewFromInt(mrrChoices[g.rng.Intn(len(mrrChoices))])
			startMonth := time.Month(g.rng.Intn(6) + 1)
			startDay := 1

			pricing := models.PricingFlat
			ramp := ""
			switch {
			case n == 0 && usagePricingIdx[i]:
				pricing = models.PricingUsage
			case n == 0 && rampPricingIdx[i]:
				pricing = models.PricingRamp
				stepped := mrr.Mul(decimal.NewFromFloat(1.5))
				ramp = fmt.Sprintf(`[{"effective_date":"2024-07-01","mrr":%s}]`, stepped.StringFixed(2))
			}

			if n == 0 {
				switch i {
				case idxOverBilled:
					mrr = decimal.NewFromInt(12000)
				case idxUnderBilledOne, idxMidMonthStart:
					mrr = decimal.NewFromInt(10000)
				case idxUnderBilledRun:
					mrr = decimal.NewFromInt(12000)
				case idxAnnualInvoice:
					startMonth = time.January
				}
				if i == idxMidMonthStart {
					startMonth = time.March
					startDay = 15
				}
			}

			subs = append(subs, &subscription{
				id:        fmt.Sprintf("SUB-%03d", subIdx),
				accountID: acc[0],
				start:     time.Date(2024, startMonth, startDay, 0, 0, 0, 0, time.UTC),
				mrr:       mrr,
				pricing:   pricing,
				ramp:      ramp,
			})
		}
	}
	return subs
}

func subscriptionRows(subs []*subscription) [][]string {
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			s.id, s.accountID,
			s.start.Format("2006-01-02"), "2024-12-31",
			s.mrr.StringFixed(2), "USD", string(s.pricing), s.ramp,
		})
	}
	return rows
}

// buildBilling invoices every non-usage subscription month by month,
// applying the planted billing anomalies along the way. Returns the invoice
// and payment rows plus each customer's first invoice id for credit linking.
func (g *Generator) buildBilling(subs []*subscription, custByAccount map[string]string) ([][]string, [][]string, map[string]string) {
	invoices := [][]string{}
	payments := [][]string{}
	firstInvoice := map[string]string{}
	invIdx, payIdx := 0, 0

	appendPayment := func(invoiceID string, month time.Month, amount decimal.Decimal) {
		payIdx++
		payments = append(payments, []string{
			fmt.Sprintf("PAY-%04d", payIdx), invoiceID,
			time.Date(2024, month, 15, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			amount.StringFixed(2),
		})
	}

	for _, sub := range subs {
		if sub.pricing == models.PricingUsage {
			continue
		}
		customerID, ok := custByAccount[sub.accountID]
		if !ok {
			continue
		}
		anomaly := accountIndex(sub.accountID)

		if anomaly == idxAnnualInvoice {
			invIdx++
			invoiceID := fmt.Sprintf("INV-%04d", invIdx)
			amount := sub.mrr.Mul(decimal.NewFromInt(12))
			invoices = append(invoices, []string{
				invoiceID, customerID, sub.id, "2024-01-01",
				"2024-01-01", "2024-12-31", amount.StringFixed(2), string(models.InvoiceStatusPaid),
			})
			appendPayment(invoiceID, time.January, amount)
			rememberFirst(firstInvoice, customerID, invoiceID)
			continue
		}

		for m := sub.start.Month(); m <= time.December; m++ {
			if anomaly == idxMissingInvoice && (m == time.August || m == time.September) {
				continue
			}

			amount := sub.mrr
			if sub.ramp != "" && m >= time.July {
				amount = sub.mrr.Mul(decimal.NewFromFloat(1.5))
			}
			switch {
			case anomaly == idxOverBilled && m == time.June:
				amount = decimal.NewFromInt(15000)
			case anomaly == idxUnderBilledOne && m == time.July:
				amount = decimal.NewFromInt(7500)
			case anomaly == idxUnderBilledRun && (m == time.May || m == time.June || m == time.July):
				amount = sub.mrr.Sub(decimal.RequireFromString("7333.33"))
			case anomaly == idxTolerance && m == time.April:
				amount = sub.mrr.Sub(decimal.RequireFromString("0.87"))
			}

			status := models.InvoiceStatusPaid
			if anomaly == idxUnpaidAR && m >= time.October {
				status = models.InvoiceStatusUnpaid
			}

			monthStart := time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
			monthEnd := monthStart.AddDate(0, 1, -1)

			invIdx++
			invoiceID := fmt.Sprintf("INV-%04d", invIdx)
			invoices = append(invoices, []string{
				invoiceID, customerID, sub.id,
				monthStart.Format("2006-01-02"),
				monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"),
				amount.StringFixed(2), string(status),
			})
			if status == models.InvoiceStatusPaid {
				appendPayment(invoiceID, m, amount)
			}
			rememberFirst(firstInvoice, customerID, invoiceID)
		}
	}
	return invoices, payments, firstInvoice
}

func (g *Generator) buildCreditNotes(accounts [][]string, custByAccount map[string]string, firstInvoice map[string]string) [][]string {
	rows := [][]string{}

	if cust, ok := custByAccount[accountID(idxCreditLinked)]; ok {
		rows = append(rows, []string{
			"CN-001", cust, firstInvoice[cust], "2024-03-15", "2000.00", "billing error correction",
		})
	}
	// Dated outside the analysis period, so no segment can absorb it.
	if cust, ok := custByAccount[accountID(idxStandaloneCN)]; ok {
		rows = append(rows, []string{
			"CN-002", cust, "", "2025-06-15", "1500.00", "goodwill credit",
		})
	}

	reasons := []string{"billing error", "goodwill", "dispute resolution"}
	amounts := []string{"500.00", "1000.00", "1500.00", "2000.00"}
	cn := 2
	for j := 0; j < 6; j++ {
		idx := j*7 + 3
		if idx >= len(accounts) || custByAccount[accounts[idx][0]] == "" {
			continue
		}
		cust := custByAccount[accounts[idx][0]]
		invoiceID := ""
		if j%2 == 0 {
			invoiceID = firstInvoice[cust]
		}
		cn++
		rows = append(rows, []string{
			fmt.Sprintf("CN-%03d", cn), cust, invoiceID,
			fmt.Sprintf("2024-%02d-10", (j+1)*2),
			amounts[g.rng.Intn(len(amounts))],
			reasons[g.rng.Intn(len(reasons))],
		})
	}
	return rows
}

func accountID(i int) string {
	return fmt.Sprintf("SYNTH-%03d", i+1)
}

func accountIndex(id string) int {
	var n int
	fmt.Sscanf(id, "SYNTH-%03d", &n)
	return n - 1
}

func domainFor(name string) string {
	clean := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	return clean + ".com"
}

func rememberFirst(firstInvoice map[string]string, customerID, invoiceID string) {
	if _, ok := firstInvoice[customerID]; !ok {
		firstInvoice[customerID] = invoiceID
	}
}

func renderCSV(header []string, rows [][]string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write(header)
	w.WriteAll(rows)
	w.Flush()
	return b.String()
}
