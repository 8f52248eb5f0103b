// Package models defines the input entities ingested from the six CSV tables
// and the derived entities produced by the reconciliation pipeline.
//
// Input entities are immutable once ingested. Entities reference each other by
// stable string id only, never by pointer; the identity spine is the single
// join between the CRM and billing sides.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tags identify which side of the reconciliation an entity came from.
const (
	SourceCRM     = "CRM"
	SourceBilling = "Billing"
)

// InvoiceStatus represents the billing state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// String returns the string representation of the status.
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid checks if the invoice status is one of the canonical values.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusUnpaid, InvoiceStatusPartial, InvoiceStatusVoid:
		return true
	}
	return false
}

// AccountStatus represents the CRM lifecycle state of an account. Prospect
// accounts are skipped by the identity resolver and excluded from the
// match-rate denominator.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusChurned  AccountStatus = "churned"
	AccountStatusProspect AccountStatus = "prospect"
)

// IsValid checks if the account status is one of the canonical values.
func (s AccountStatus) IsValid() bool {
	return s == AccountStatusActive || s == AccountStatusChurned || s == AccountStatusProspect
}

// CustomerStatus represents the billing lifecycle state of a customer.
type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "active"
	CustomerStatusCancelled CustomerStatus = "cancelled"
	CustomerStatusPaused    CustomerStatus = "paused"
)

// IsValid checks if the customer status is one of the canonical values.
func (s CustomerStatus) IsValid() bool {
	return s == CustomerStatusActive || s == CustomerStatusCancelled || s == CustomerStatusPaused
}

// PricingModel describes how a subscription charges. Usage-based
// subscriptions cannot be expanded into expected revenue segments and are
// excluded from analysis.
type PricingModel string

const (
	PricingFlat  PricingModel = "flat"
	PricingRamp  PricingModel = "ramp"
	PricingUsage PricingModel = "usage"
)

// IsValid checks if the pricing model is one of the canonical values.
func (p PricingModel) IsValid() bool {
	return p == PricingFlat || p == PricingRamp || p == PricingUsage
}

// Account is a CRM-side entity.
type Account struct {
	AccountID     string        `json:"account_id" csv:"account_id"`
	AccountName   string        `json:"account_name" csv:"account_name"`
	AccountStatus AccountStatus `json:"account_status" csv:"account_status"`
	EmailDomain   string        `json:"email_domain,omitempty" csv:"email_domain"`
	Source        string        `json:"source"`
}

// NewAccount creates a new Account with the CRM source tag and active status.
func NewAccount(id, name, emailDomain string) *Account {
	return &Account{
		AccountID:     strings.TrimSpace(id),
		AccountName:   strings.TrimSpace(name),
		AccountStatus: AccountStatusActive,
		EmailDomain:   strings.ToLower(strings.TrimSpace(emailDomain)),
		Source:        SourceCRM,
	}
}

// IsProspect reports whether the account is a prospect and sits outside the
// reconciliation population.
func (a *Account) IsProspect() bool {
	return a.AccountStatus == AccountStatusProspect
}

// Validate performs basic validation on the Account.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if strings.TrimSpace(a.AccountName) == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	return nil
}

// Customer is a billing-side entity.
type Customer struct {
	CustomerID     string         `json:"customer_id" csv:"customer_id"`
	CustomerName   string         `json:"customer_name" csv:"customer_name"`
	CustomerStatus CustomerStatus `json:"customer_status" csv:"customer_status"`
	EmailDomain    string         `json:"email_domain,omitempty" csv:"email_domain"`
	Source         string         `json:"source"`
}

// NewCustomer creates a new Customer with the Billing source tag and active
// status.
func NewCustomer(id, name, emailDomain string) *Customer {
	return &Customer{
		CustomerID:     strings.TrimSpace(id),
		CustomerName:   strings.TrimSpace(name),
		CustomerStatus: CustomerStatusActive,
		EmailDomain:    strings.ToLower(strings.TrimSpace(emailDomain)),
		Source:         SourceBilling,
	}
}

// Validate performs basic validation on the Customer.
func (c *Customer) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" {
		return fmt.Errorf("customer ID cannot be empty")
	}
	if strings.TrimSpace(c.CustomerName) == "" {
		return fmt.Errorf("customer name cannot be empty")
	}
	return nil
}

// RampStep is an MRR override that takes effect on a given date.
type RampStep struct {
	EffectiveDate time.Time       `json:"effective_date"`
	MRR           decimal.Decimal `json:"mrr"`
}

// Subscription is a booking on the CRM side. Start and end dates are treated
// as inclusive-day intervals. The ramp schedule, when present, is kept sorted
// by effective date.
type Subscription struct {
	SubscriptionID string          `json:"subscription_id" csv:"subscription_id"`
	AccountID      string          `json:"account_id" csv:"account_id"`
	StartDate      time.Time       `json:"start_date" csv:"start_date"`
	EndDate        time.Time       `json:"end_date" csv:"end_date"`
	MRR            decimal.Decimal `json:"mrr" csv:"mrr"`
	Currency       string          `json:"currency,omitempty" csv:"currency"`
	PricingModel   PricingModel    `json:"pricing_model" csv:"pricing_model"`
	RampSchedule   []RampStep      `json:"ramp_schedule,omitempty" csv:"ramp_schedule"`
}

// Validate performs basic validation on the Subscription.
func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.SubscriptionID) == "" {
		return fmt.Errorf("subscription ID cannot be empty")
	}
	if strings.TrimSpace(s.AccountID) == "" {
		return fmt.Errorf("subscription account ID cannot be empty")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return fmt.Errorf("subscription dates cannot be zero")
	}
	return nil
}

// HasUnsupportedStructure reports whether the subscription cannot participate
// in segment generation (negative MRR or end before start). Such records are
// recorded as exclusions, not errors.
func (s *Subscription) HasUnsupportedStructure() bool {
	return s.MRR.IsNegative() || s.EndDate.Before(s.StartDate)
}

// ARR returns the annualized recurring revenue (base MRR times twelve).
func (s *Subscription) ARR() decimal.Decimal {
	return s.MRR.Mul(decimal.NewFromInt(12))
}

// Invoice is a billing document covering an inclusive period.
type Invoice struct {
	InvoiceID      string          `json:"invoice_id" csv:"invoice_id"`
	CustomerID     string          `json:"customer_id" csv:"customer_id"`
	SubscriptionID string          `json:"subscription_id,omitempty" csv:"subscription_id"`
	InvoiceDate    time.Time       `json:"invoice_date" csv:"invoice_date"`
	PeriodStart    time.Time       `json:"period_start" csv:"period_start"`
	PeriodEnd      time.Time       `json:"period_end" csv:"period_end"`
	Amount         decimal.Decimal `json:"amount" csv:"amount"`
	Status         InvoiceStatus   `json:"status" csv:"status"`
}

// Validate performs basic validation on the Invoice.
func (i *Invoice) Validate() error {
	if strings.TrimSpace(i.InvoiceID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}
	if strings.TrimSpace(i.CustomerID) == "" {
		return fmt.Errorf("invoice customer ID cannot be empty")
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid invoice status: %s", i.Status)
	}
	if i.PeriodEnd.Before(i.PeriodStart) {
		return fmt.Errorf("invoice period end %s precedes period start %s",
			i.PeriodEnd.Format("2006-01-02"), i.PeriodStart.Format("2006-01-02"))
	}
	return nil
}

// IsVoid reports whether the invoice is void and must not be allocated.
func (i *Invoice) IsVoid() bool {
	return i.Status == InvoiceStatusVoid
}

// Payment is a cash receipt against an invoice.
type Payment struct {
	PaymentID   string          `json:"payment_id" csv:"payment_id"`
	InvoiceID   string          `json:"invoice_id" csv:"invoice_id"`
	PaymentDate time.Time       `json:"payment_date" csv:"payment_date"`
	Amount      decimal.Decimal `json:"amount" csv:"amount"`
}

// Validate performs basic validation on the Payment.
func (p *Payment) Validate() error {
	if strings.TrimSpace(p.PaymentID) == "" {
		return fmt.Errorf("payment ID cannot be empty")
	}
	if strings.TrimSpace(p.InvoiceID) == "" {
		return fmt.Errorf("payment invoice ID cannot be empty")
	}
	return nil
}

// CreditNote reduces billed revenue, either against a specific invoice or
// standalone against the month containing its credit date.
type CreditNote struct {
	CreditNoteID string          `json:"credit_note_id" csv:"credit_note_id"`
	CustomerID   string          `json:"customer_id" csv:"customer_id"`
	InvoiceID    string          `json:"invoice_id,omitempty" csv:"invoice_id"`
	CreditDate   time.Time       `json:"credit_date" csv:"credit_date"`
	Amount       decimal.Decimal `json:"amount" csv:"amount"`
	Reason       string          `json:"reason,omitempty" csv:"reason"`
}

// Validate performs basic validation on the CreditNote.
func (cn *CreditNote) Validate() error {
	if strings.TrimSpace(cn.CreditNoteID) == "" {
		return fmt.Errorf("credit note ID cannot be empty")
	}
	if strings.TrimSpace(cn.CustomerID) == "" {
		return fmt.Errorf("credit note customer ID cannot be empty")
	}
	if cn.Amount.IsNegative() {
		return fmt.Errorf("credit note amount cannot be negative")
	}
	return nil
}

// IsLinked reports whether the credit note references an invoice.
func (cn *CreditNote) IsLinked() bool {
	return strings.TrimSpace(cn.InvoiceID) != ""
}

// Dataset bundles the six ingested tables and their primary-key indexes.
type Dataset struct {
	Accounts      []*Account
	Customers     []*Customer
	Subscriptions []*Subscription
	Invoices      []*Invoice
	Payments      []*Payment
	CreditNotes   []*CreditNote

	AccountsByID      map[string]*Account
	CustomersByID     map[string]*Customer
	SubscriptionsByID map[string]*Subscription
	InvoicesByID      map[string]*Invoice
	PaymentsByInvoice map[string][]*Payment
}

// NewDataset builds a Dataset and its indexes from the six rowsets.
func NewDataset(accounts []*Account, customers []*Customer, subscriptions []*Subscription,
	invoices []*Invoice, payments []*Payment, creditNotes []*CreditNote) *Dataset {
	d := &Dataset{
		Accounts:      accounts,
		Customers:     customers,
		Subscriptions: subscriptions,
		Invoices:      invoices,
		Payments:      payments,
		CreditNotes:   creditNotes,

		AccountsByID:      make(map[string]*Account, len(accounts)),
		CustomersByID:     make(map[string]*Customer, len(customers)),
		SubscriptionsByID: make(map[string]*Subscription, len(subscriptions)),
		InvoicesByID:      make(map[string]*Invoice, len(invoices)),
		PaymentsByInvoice: make(map[string][]*Payment),
	}
	for _, a := range accounts {
		d.AccountsByID[a.AccountID] = a
	}
	for _, c := range customers {
		d.CustomersByID[c.CustomerID] = c
	}
	for _, s := range subscriptions {
		d.SubscriptionsByID[s.SubscriptionID] = s
	}
	for _, i := range invoices {
		d.InvoicesByID[i.InvoiceID] = i
	}
	for _, p := range payments {
		d.PaymentsByInvoice[p.InvoiceID] = append(d.PaymentsByInvoice[p.InvoiceID], p)
	}
	return d
}

// SubscriptionsByAccount groups subscriptions by their owning account.
func (d *Dataset) SubscriptionsByAccount() map[string][]*Subscription {
	out := make(map[string][]*Subscription)
	for _, s := range d.Subscriptions {
		out[s.AccountID] = append(out[s.AccountID], s)
	}
	return out
}

// InvoicesByCustomer groups invoices by their billing customer.
func (d *Dataset) InvoicesByCustomer() map[string][]*Invoice {
	out := make(map[string][]*Invoice)
	for _, i := range d.Invoices {
		out[i.CustomerID] = append(out[i.CustomerID], i)
	}
	return out
}

// CreditNotesByCustomer groups credit notes by their billing customer.
func (d *Dataset) CreditNotesByCustomer() map[string][]*CreditNote {
	out := make(map[string][]*CreditNote)
	for _, cn := range d.CreditNotes {
		out[cn.CustomerID] = append(out[cn.CustomerID], cn)
	}
	return out
}
