package identity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/pkg/logger"
)

const (
	// ReviewThreshold is the minimum fuzzy score kept as a candidate.
	ReviewThreshold = 0.75
	// AutoConfirmThreshold is the fuzzy score at which a candidate confirms
	// without review.
	AutoConfirmThreshold = 0.95
	// EmailSignalConfidence is assigned to unique email-domain matches.
	EmailSignalConfidence = 0.70
)

// idNamespace seeds the deterministic rsx and match ids so that two resolves
// over the same inputs produce identical spines.
var idNamespace = uuid.MustParse("8f3c1d6a-2b54-4e0f-9a77-5d41c0e6b9a2")

// NewRSXID derives the stable rsx id for an account.
func NewRSXID(accountID string) string {
	id := uuid.NewSHA1(idNamespace, []byte("rsx:"+accountID))
	return "RSX-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:5])
}

// newMatchID derives the stable review id for an (account, customer) pair.
func newMatchID(accountID, customerID string) string {
	id := uuid.NewSHA1(idNamespace, []byte("match:"+accountID+"|"+customerID))
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Candidate is a fuzzy match awaiting operator arbitration.
type Candidate struct {
	MatchID      string  `json:"match_id"`
	AccountID    string  `json:"account_id"`
	AccountName  string  `json:"account_name"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	Confidence   float64 `json:"confidence"`
	Status       string  `json:"status"`
}

// Candidate status values.
const (
	CandidatePending   = "pending"
	CandidateConfirmed = "confirmed"
	CandidateRejected  = "rejected"
)

// Resolution is the full output of a resolve run.
type Resolution struct {
	AutoMatched        []*models.IdentityLink `json:"auto_matched"`
	NeedsReview        []*Candidate           `json:"needs_review"`
	PendingReview      []*Candidate           `json:"pending_review"`
	UnmatchedAccounts  []*models.Account      `json:"unmatched_accounts"`
	UnmatchedCustomers []*models.Customer     `json:"unmatched_customers"`
	Prospects          []*models.Account      `json:"prospects"`
}

// MatchableAccounts counts the accounts in the match-rate denominator
// (prospects are outside the reconciliation population).
func (r *Resolution) MatchableAccounts() int {
	linked := len(r.AutoMatched)
	for _, l := range r.AutoMatched {
		if !l.MatchType.IsLinked() {
			linked--
		}
	}
	// Rejected candidates already appear in the unmatched list.
	for _, c := range r.NeedsReview {
		if c.Status != CandidateRejected {
			linked++
		}
	}
	return linked + len(r.UnmatchedAccounts)
}

// Resolver runs the three-pass identity algorithm.
type Resolver struct {
	log logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{log: logger.GetGlobalLogger().WithComponent("identity")}
}

// Resolve computes the identity spine for the given rowsets and decision
// log. It is a pure function of its inputs: replaying the same decisions
// yields the same resolution.
func (r *Resolver) Resolve(accounts []*models.Account, customers []*models.Customer, decisions []Decision) *Resolution {
	res := &Resolution{
		AutoMatched:        []*models.IdentityLink{},
		NeedsReview:        []*Candidate{},
		PendingReview:      []*Candidate{},
		UnmatchedAccounts:  []*models.Account{},
		UnmatchedCustomers: []*models.Customer{},
		Prospects:          []*models.Account{},
	}

	sortedAccounts := append([]*models.Account(nil), accounts...)
	sort.Slice(sortedAccounts, func(i, j int) bool {
		return sortedAccounts[i].AccountID < sortedAccounts[j].AccountID
	})
	sortedCustomers := append([]*models.Customer(nil), customers...)
	sort.Slice(sortedCustomers, func(i, j int) bool {
		return sortedCustomers[i].CustomerID < sortedCustomers[j].CustomerID
	})

	accountNorms := make(map[string]string, len(sortedAccounts))
	for _, a := range sortedAccounts {
		accountNorms[a.AccountID] = Normalize(a.AccountName)
	}
	customerNorms := make(map[string]string, len(sortedCustomers))
	for _, c := range sortedCustomers {
		customerNorms[c.CustomerID] = Normalize(c.CustomerName)
	}

	matchedAccounts := map[string]bool{}
	matchedCustomers := map[string]bool{}

	// Pass 1: exact normalized-name equality.
	for _, a := range sortedAccounts {
		if a.IsProspect() {
			continue
		}
		an := accountNorms[a.AccountID]
		if an == "" {
			continue
		}
		for _, c := range sortedCustomers {
			if matchedCustomers[c.CustomerID] {
				continue
			}
			if an == customerNorms[c.CustomerID] {
				res.AutoMatched = append(res.AutoMatched, &models.IdentityLink{
					RSXID:      NewRSXID(a.AccountID),
					AccountID:  a.AccountID,
					CustomerID: c.CustomerID,
					MatchType:  models.MatchTypeExact,
					Confidence: 1.0,
					Evidence:   fmt.Sprintf("normalized names equal: %q", an),
				})
				matchedAccounts[a.AccountID] = true
				matchedCustomers[c.CustomerID] = true
				break
			}
		}
	}

	// Pass 2: token-set fuzzy scores with greedy assignment.
	type pair struct {
		account  *models.Account
		customer *models.Customer
		score    float64
	}
	var pairs []pair
	for _, a := range sortedAccounts {
		if matchedAccounts[a.AccountID] || a.IsProspect() {
			continue
		}
		an := accountNorms[a.AccountID]
		if an == "" {
			continue
		}
		for _, c := range sortedCustomers {
			if matchedCustomers[c.CustomerID] {
				continue
			}
			score := Similarity(an, customerNorms[c.CustomerID])
			if score >= ReviewThreshold {
				pairs = append(pairs, pair{account: a, customer: c, score: score})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].account.AccountID != pairs[j].account.AccountID {
			return pairs[i].account.AccountID < pairs[j].account.AccountID
		}
		return pairs[i].customer.CustomerID < pairs[j].customer.CustomerID
	})

	for _, p := range pairs {
		if matchedAccounts[p.account.AccountID] || matchedCustomers[p.customer.CustomerID] {
			continue
		}
		matchedAccounts[p.account.AccountID] = true
		matchedCustomers[p.customer.CustomerID] = true

		if p.score >= AutoConfirmThreshold {
			res.AutoMatched = append(res.AutoMatched, &models.IdentityLink{
				RSXID:      NewRSXID(p.account.AccountID),
				AccountID:  p.account.AccountID,
				CustomerID: p.customer.CustomerID,
				MatchType:  models.MatchTypeFuzzyConfirmed,
				Confidence: p.score,
				Evidence:   fmt.Sprintf("token-set similarity %.2f", p.score),
			})
			continue
		}
		res.NeedsReview = append(res.NeedsReview, &Candidate{
			MatchID:      newMatchID(p.account.AccountID, p.customer.CustomerID),
			AccountID:    p.account.AccountID,
			AccountName:  p.account.AccountName,
			CustomerID:   p.customer.CustomerID,
			CustomerName: p.customer.CustomerName,
			Confidence:   p.score,
			Status:       CandidatePending,
		})
	}

	// Pass 3: unique one-to-one email-domain matches among the remainder.
	accountsByDomain := map[string][]*models.Account{}
	for _, a := range sortedAccounts {
		if matchedAccounts[a.AccountID] || a.IsProspect() || a.EmailDomain == "" {
			continue
		}
		accountsByDomain[a.EmailDomain] = append(accountsByDomain[a.EmailDomain], a)
	}
	customersByDomain := map[string][]*models.Customer{}
	for _, c := range sortedCustomers {
		if matchedCustomers[c.CustomerID] || c.EmailDomain == "" {
			continue
		}
		customersByDomain[c.EmailDomain] = append(customersByDomain[c.EmailDomain], c)
	}
	domains := make([]string, 0, len(accountsByDomain))
	for d := range accountsByDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		as, cs := accountsByDomain[d], customersByDomain[d]
		if len(as) != 1 || len(cs) != 1 {
			continue
		}
		a, c := as[0], cs[0]
		res.AutoMatched = append(res.AutoMatched, &models.IdentityLink{
			RSXID:      NewRSXID(a.AccountID),
			AccountID:  a.AccountID,
			CustomerID: c.CustomerID,
			MatchType:  models.MatchTypeEmailSignal,
			Confidence: EmailSignalConfidence,
			Evidence:   fmt.Sprintf("unique shared email domain %q", d),
		})
		matchedAccounts[a.AccountID] = true
		matchedCustomers[c.CustomerID] = true
	}

	// Replay the decision log over the review candidates.
	decided := map[string]string{}
	for _, d := range decisions {
		decided[d.MatchID] = d.Decision
	}
	for _, cand := range res.NeedsReview {
		switch decided[cand.MatchID] {
		case DecisionConfirmed:
			cand.Status = CandidateConfirmed
		case DecisionRejected:
			cand.Status = CandidateRejected
		default:
			res.PendingReview = append(res.PendingReview, cand)
		}
	}
	sort.Slice(res.PendingReview, func(i, j int) bool {
		if res.PendingReview[i].Confidence != res.PendingReview[j].Confidence {
			return res.PendingReview[i].Confidence > res.PendingReview[j].Confidence
		}
		return res.PendingReview[i].AccountID < res.PendingReview[j].AccountID
	})

	// Bucket the leftovers. Rejected candidates free both sides back into
	// the unmatched lists; pending candidates keep both sides reserved.
	for _, a := range sortedAccounts {
		if a.IsProspect() {
			res.Prospects = append(res.Prospects, a)
			continue
		}
		if !matchedAccounts[a.AccountID] {
			res.UnmatchedAccounts = append(res.UnmatchedAccounts, a)
		}
	}
	for _, cand := range res.NeedsReview {
		if cand.Status == CandidateRejected {
			res.UnmatchedAccounts = append(res.UnmatchedAccounts, findAccount(sortedAccounts, cand.AccountID))
			res.UnmatchedCustomers = append(res.UnmatchedCustomers, findCustomer(sortedCustomers, cand.CustomerID))
		}
	}
	for _, c := range sortedCustomers {
		if !matchedCustomers[c.CustomerID] {
			res.UnmatchedCustomers = append(res.UnmatchedCustomers, c)
		}
	}
	sort.Slice(res.UnmatchedAccounts, func(i, j int) bool {
		return res.UnmatchedAccounts[i].AccountID < res.UnmatchedAccounts[j].AccountID
	})
	sort.Slice(res.UnmatchedCustomers, func(i, j int) bool {
		return res.UnmatchedCustomers[i].CustomerID < res.UnmatchedCustomers[j].CustomerID
	})
	sort.Slice(res.AutoMatched, func(i, j int) bool {
		return res.AutoMatched[i].AccountID < res.AutoMatched[j].AccountID
	})

	r.log.WithFields(logger.Fields{
		"auto_matched":        len(res.AutoMatched),
		"needs_review":        len(res.NeedsReview),
		"pending_review":      len(res.PendingReview),
		"unmatched_accounts":  len(res.UnmatchedAccounts),
		"unmatched_customers": len(res.UnmatchedCustomers),
		"prospects":           len(res.Prospects),
	}).Info("identity resolution completed")

	return res
}

// BuildSpine converts a resolution into the final identity spine: all
// confirmed links plus one unmatched link per account that found no
// customer. Deterministic replay of (inputs, decisions) yields an identical
// spine.
func BuildSpine(res *Resolution) []*models.IdentityLink {
	spine := append([]*models.IdentityLink(nil), res.AutoMatched...)

	for _, cand := range res.NeedsReview {
		if cand.Status != CandidateConfirmed {
			continue
		}
		spine = append(spine, &models.IdentityLink{
			RSXID:      NewRSXID(cand.AccountID),
			AccountID:  cand.AccountID,
			CustomerID: cand.CustomerID,
			MatchType:  models.MatchTypeFuzzyConfirmed,
			Confidence: cand.Confidence,
			Evidence:   fmt.Sprintf("operator confirmed at %.2f", cand.Confidence),
		})
	}

	for _, a := range res.UnmatchedAccounts {
		spine = append(spine, &models.IdentityLink{
			RSXID:      NewRSXID(a.AccountID),
			AccountID:  a.AccountID,
			MatchType:  models.MatchTypeUnmatched,
			Confidence: 0,
		})
	}

	sort.Slice(spine, func(i, j int) bool {
		return spine[i].AccountID < spine[j].AccountID
	})
	return spine
}

func findAccount(accounts []*models.Account, id string) *models.Account {
	for _, a := range accounts {
		if a.AccountID == id {
			return a
		}
	}
	return nil
}

func findCustomer(customers []*models.Customer, id string) *models.Customer {
	for _, c := range customers {
		if c.CustomerID == id {
			return c
		}
	}
	return nil
}
