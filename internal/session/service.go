package session

import (
	"fmt"
	"sort"
	"sync"

	"revenue-reconciliation-service/internal/identity"
	"revenue-reconciliation-service/internal/lifecycle"
	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/internal/reconcile"
	"revenue-reconciliation-service/internal/scoring"
	"revenue-reconciliation-service/pkg/errors"
	"revenue-reconciliation-service/pkg/logger"
)

// Dashboard is the headline payload for a completed session.
type Dashboard struct {
	Score          *scoring.Score `json:"score"`
	Accounts       int            `json:"accounts"`
	Customers      int            `json:"customers"`
	Subscriptions  int            `json:"subscriptions"`
	Invoices       int            `json:"invoices"`
	Segments       int            `json:"segments"`
	Exclusions     int            `json:"exclusions"`
	PendingReview  int            `json:"pending_review"`
	MatchedLinks   int            `json:"matched_links"`
	UnmatchedLinks int            `json:"unmatched_links"`
}

// AccountFilters narrow the accounts listing.
type AccountFilters struct {
	Status    models.VarianceStatus
	MatchType models.MatchType
	Limit     int
}

// Lineage traces one account's documents onto its segments.
type Lineage struct {
	Summary     *models.AccountSummary    `json:"summary"`
	Segments    []*models.RevenueSegment  `json:"segments"`
	Variances   []*models.SegmentVariance `json:"variances"`
	Allocations []*models.Allocation      `json:"allocations"`
}

// Service exposes the session operations backed by the document store.
type Service struct {
	store    *Store
	resolver *identity.Resolver
	log      logger.Logger
	wg       sync.WaitGroup
}

// NewService creates a Service over the given store.
func NewService(store *Store) *Service {
	return &Service{
		store:    store,
		resolver: identity.NewResolver(),
		log:      logger.GetGlobalLogger().WithComponent("session"),
	}
}

// Create opens a new session.
func (svc *Service) Create(settings Settings) *Session {
	sess := NewSession(settings)
	svc.store.PutSession(sess)
	svc.log.WithField("session_id", sess.ID).Info("session created")
	return sess
}

// Get fetches a session.
func (svc *Service) Get(id string) (*Session, error) {
	return svc.store.GetSession(id)
}

// List returns all sessions, newest first.
func (svc *Service) List() []*Session {
	return svc.store.ListSessions()
}

// Delete abandons a session and drops its artifacts.
func (svc *Service) Delete(id string) error {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	svc.store.DeleteSession(id)
	return nil
}

// UpdateSettings replaces the session settings before analysis has run.
func (svc *Service) UpdateSettings(id string, raw map[string]string) (*Session, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if st := sess.CurrentStatus(); st != StatusCreated && st != StatusIdentityReview {
		return nil, errors.Newf(errors.CategoryConfiguration, errors.CodeInvalidSetting,
			"settings are frozen once analysis starts (status %s)", st)
	}
	settings, err := ParseSettings(raw)
	if err != nil {
		return nil, err
	}
	sess.SetSettings(settings)
	return sess, nil
}

// Validate ingests the six tables, stores the rowsets, runs the validator,
// and previews identity resolution. On success the session moves to
// identity review.
func (svc *Service) Validate(id string, sources parsers.TableSources) (*parsers.ValidationResult, *identity.Resolution, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, nil, err
	}

	dataset, parseErrs, perr := parsers.ParseAll(sources)
	if perr != nil {
		return nil, nil, perr
	}
	result := parsers.Validate(dataset, parseErrs)

	svc.store.PutData(id, KindAccountsRaw, dataset.Accounts)
	svc.store.PutData(id, KindCustomersRaw, dataset.Customers)
	svc.store.PutData(id, KindSubscriptionsRaw, dataset.Subscriptions)
	svc.store.PutData(id, KindInvoicesRaw, dataset.Invoices)
	svc.store.PutData(id, KindPaymentsRaw, dataset.Payments)
	svc.store.PutData(id, KindCreditNotesRaw, dataset.CreditNotes)

	res := svc.resolve(sess, dataset)
	svc.store.PutData(id, KindIdentity, res)

	if sess.CurrentStatus() == StatusCreated {
		if err := sess.Transition(StatusIdentityReview); err != nil {
			return nil, nil, err
		}
	}
	return result, res, nil
}

func (svc *Service) resolve(sess *Session, dataset *models.Dataset) *identity.Resolution {
	return svc.resolver.Resolve(dataset.Accounts, dataset.Customers, sess.Decisions().Entries())
}

// IdentityGet re-resolves the spine from the raw rowsets and the decision
// log, so the view is always a pure replay.
func (svc *Service) IdentityGet(id string) (*identity.Resolution, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	dataset, err := svc.dataset(id)
	if err != nil {
		return nil, err
	}
	res := svc.resolve(sess, dataset)
	svc.store.PutData(id, KindIdentity, res)
	return res, nil
}

// IdentityDecide records a confirm or reject for one review candidate.
func (svc *Service) IdentityDecide(id, matchID, decision string) (*identity.Resolution, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	res, err := svc.IdentityGet(id)
	if err != nil {
		return nil, err
	}
	if err := sess.Decisions().Decide(matchID, decision, res.NeedsReview); err != nil {
		return nil, err
	}
	return svc.IdentityGet(id)
}

// IdentityUndo pops the most recent decision.
func (svc *Service) IdentityUndo(id string) (*identity.Resolution, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Decisions().Undo(); err != nil {
		return nil, err
	}
	return svc.IdentityGet(id)
}

// IdentityReset clears the decision log and truncates the session back to
// identity review, dropping any derived artifacts.
func (svc *Service) IdentityReset(id string) (*identity.Resolution, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	sess.Decisions().Reset()
	sess.ResetToReview()
	svc.store.DeleteData(id, KindSegments, KindReconciliation, KindScore, KindExclusions)
	return svc.IdentityGet(id)
}

// Analyze starts the background pipeline. With bypassReview false, a
// non-empty review queue refuses to start.
func (svc *Service) Analyze(id string, bypassReview bool) error {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return err
	}
	res, err := svc.IdentityGet(id)
	if err != nil {
		return err
	}
	if !bypassReview && len(res.PendingReview) > 0 {
		return errors.Newf(errors.CategoryIdentity, errors.CodeIdentityReviewRequired,
			"%d matches still need review", len(res.PendingReview)).
			WithSuggestion("Decide the pending matches or start analysis with review bypassed")
	}
	if err := sess.Transition(StatusProcessing); err != nil {
		return err
	}

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.runPipeline(sess)
	}()
	return nil
}

// Wait blocks until every in-flight pipeline has finished.
func (svc *Service) Wait() {
	svc.wg.Wait()
}

// runPipeline drives the five stages, publishing artifacts at stage
// boundaries and honoring the cancel flag between them.
func (svc *Service) runPipeline(sess *Session) {
	log := svc.log.WithField("session_id", sess.ID)

	dataset, err := svc.dataset(sess.ID)
	if err != nil {
		sess.Fail(err.Error())
		return
	}

	// Stage 1: identity.
	if svc.cancelAndRollback(sess) {
		return
	}
	sess.StartStep(StepIdentity)
	res := svc.resolve(sess, dataset)
	spine := identity.BuildSpine(res)
	svc.store.PutData(sess.ID, KindIdentity, res)
	sess.FinishStep(StepIdentity, fmt.Sprintf("%d links on the spine, %d auto-matched", len(spine), len(res.AutoMatched)))

	// Stage 2: segments.
	if svc.cancelAndRollback(sess) {
		return
	}
	sess.StartStep(StepSegments)
	built := lifecycle.NewBuilder().Build(spine, dataset.SubscriptionsByAccount(),
		sess.Settings.PeriodStart, sess.Settings.PeriodEnd)
	svc.store.PutData(sess.ID, KindSegments, built)
	sess.FinishStep(StepSegments, fmt.Sprintf("%d segments generated", len(built.Segments)))

	// Stage 3: reconciliation.
	if svc.cancelAndRollback(sess) {
		return
	}
	sess.StartStep(StepReconciliation)
	recon := reconcile.NewEngine().WithTolerance(sess.Settings.Tolerance).Run(spine, built.Segments, dataset)
	svc.store.PutData(sess.ID, KindReconciliation, recon)
	sess.FinishStep(StepReconciliation, fmt.Sprintf("%d variance rows, %d allocations", len(recon.Variances), len(recon.Allocations)))

	// Stage 4: scoring.
	if svc.cancelAndRollback(sess) {
		return
	}
	sess.StartStep(StepScoring)
	score := scoring.NewScorer().Compute(scoring.Inputs{
		Spine:         spine,
		Subscriptions: dataset.Subscriptions,
		Segments:      built.Segments,
		Variances:     recon.Variances,
		Allocations:   recon.Allocations,
		Summaries:     recon.Summaries,
	})
	svc.store.PutData(sess.ID, KindScore, score)
	sess.FinishStep(StepScoring, fmt.Sprintf("score %d (%s)", score.Overall, score.Band))

	// Stage 5: finalize.
	if svc.cancelAndRollback(sess) {
		return
	}
	sess.StartStep(StepFinalize)
	exclusions := append(append([]*models.Exclusion{}, built.Exclusions...), recon.Exclusions...)
	svc.store.PutData(sess.ID, KindExclusions, exclusions)
	sess.FinishStep(StepFinalize, fmt.Sprintf("%d exclusions recorded", len(exclusions)))
	sess.MarkCompleted()

	if err := sess.Transition(StatusCompleted); err != nil {
		sess.Fail(err.Error())
		return
	}
	log.WithField("score", score.Overall).Info("analysis completed")
}

// cancelAndRollback checks the cooperative cancel flag. A cancelled run
// drops its partial artifacts and returns the session to identity review.
func (svc *Service) cancelAndRollback(sess *Session) bool {
	if !sess.Cancelled() {
		return false
	}
	svc.store.DeleteData(sess.ID, KindSegments, KindReconciliation, KindScore, KindExclusions)
	sess.ResetToReview()
	svc.log.WithField("session_id", sess.ID).Warn("analysis cancelled at stage boundary")
	return true
}

// dataset rebuilds the Dataset from the stored rowsets.
func (svc *Service) dataset(id string) (*models.Dataset, error) {
	accounts, err := getData[[]*models.Account](svc.store, id, KindAccountsRaw)
	if err != nil {
		return nil, err
	}
	customers, err := getData[[]*models.Customer](svc.store, id, KindCustomersRaw)
	if err != nil {
		return nil, err
	}
	subscriptions, err := getData[[]*models.Subscription](svc.store, id, KindSubscriptionsRaw)
	if err != nil {
		return nil, err
	}
	invoices, err := getData[[]*models.Invoice](svc.store, id, KindInvoicesRaw)
	if err != nil {
		return nil, err
	}
	payments, err := getData[[]*models.Payment](svc.store, id, KindPaymentsRaw)
	if err != nil {
		return nil, err
	}
	creditNotes, err := getData[[]*models.CreditNote](svc.store, id, KindCreditNotesRaw)
	if err != nil {
		return nil, err
	}
	return models.NewDataset(accounts, customers, subscriptions, invoices, payments, creditNotes), nil
}

func getData[T any](store *Store, id string, kind Kind) (T, error) {
	var zero T
	v, err := store.GetData(id, kind)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.Newf(errors.CategoryStore, errors.CodeStoreFailure,
			"artifact %s has unexpected type %T", kind, v)
	}
	return typed, nil
}

// Status returns a consistent snapshot for polling clients.
func (svc *Service) Status(id string) (Snapshot, error) {
	sess, err := svc.store.GetSession(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Dashboard assembles the headline payload for a completed run.
func (svc *Service) Dashboard(id string) (*Dashboard, error) {
	score, err := getData[*scoring.Score](svc.store, id, KindScore)
	if err != nil {
		return nil, err
	}
	res, err := getData[*identity.Resolution](svc.store, id, KindIdentity)
	if err != nil {
		return nil, err
	}
	built, err := getData[*lifecycle.Result](svc.store, id, KindSegments)
	if err != nil {
		return nil, err
	}
	exclusions, err := getData[[]*models.Exclusion](svc.store, id, KindExclusions)
	if err != nil {
		return nil, err
	}
	dataset, err := svc.dataset(id)
	if err != nil {
		return nil, err
	}

	matched := 0
	for _, l := range identity.BuildSpine(res) {
		if l.MatchType.IsLinked() {
			matched++
		}
	}
	return &Dashboard{
		Score:          score,
		Accounts:       len(dataset.Accounts),
		Customers:      len(dataset.Customers),
		Subscriptions:  len(dataset.Subscriptions),
		Invoices:       len(dataset.Invoices),
		Segments:       len(built.Segments),
		Exclusions:     len(exclusions),
		PendingReview:  len(res.PendingReview),
		MatchedLinks:   matched,
		UnmatchedLinks: len(res.UnmatchedAccounts),
	}, nil
}

// Accounts lists account summaries sorted by descending absolute variance,
// optionally filtered.
func (svc *Service) Accounts(id string, filters AccountFilters) ([]*models.AccountSummary, error) {
	recon, err := getData[*reconcile.Result](svc.store, id, KindReconciliation)
	if err != nil {
		return nil, err
	}

	out := make([]*models.AccountSummary, 0, len(recon.Summaries))
	for _, sum := range recon.Summaries {
		if filters.Status != "" && sum.PrimaryVarianceType != filters.Status {
			continue
		}
		if filters.MatchType != "" && sum.MatchType != filters.MatchType {
			continue
		}
		out = append(out, sum)
	}
	sortSummaries(out)
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func sortSummaries(out []*models.AccountSummary) {
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].TotalVariance.Abs(), out[j].TotalVariance.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return out[i].AccountID < out[j].AccountID
	})
}

// Lineage traces one rsx id through segments, variances, and allocations.
func (svc *Service) Lineage(id, rsxID string) (*Lineage, error) {
	recon, err := getData[*reconcile.Result](svc.store, id, KindReconciliation)
	if err != nil {
		return nil, err
	}
	built, err := getData[*lifecycle.Result](svc.store, id, KindSegments)
	if err != nil {
		return nil, err
	}

	lin := &Lineage{}
	for _, sum := range recon.Summaries {
		if sum.RSXID == rsxID {
			lin.Summary = sum
			break
		}
	}
	if lin.Summary == nil {
		return nil, errors.New(errors.CategoryStore, errors.CodeDataNotFound,
			"no account for rsx id").WithContext("rsx_id", rsxID)
	}

	segmentIDs := map[string]bool{}
	for _, seg := range built.Segments {
		if seg.RSXID == rsxID {
			lin.Segments = append(lin.Segments, seg)
			segmentIDs[seg.SegmentID] = true
		}
	}
	for _, v := range recon.Variances {
		if v.RSXID == rsxID {
			lin.Variances = append(lin.Variances, v)
		}
	}
	for _, a := range recon.Allocations {
		if segmentIDs[a.SegmentID] {
			lin.Allocations = append(lin.Allocations, a)
		}
	}
	return lin, nil
}

// Exclusions lists the exclusion log, optionally filtered by reason code.
func (svc *Service) Exclusions(id string, reason models.ExclusionReason) ([]*models.Exclusion, error) {
	exclusions, err := getData[[]*models.Exclusion](svc.store, id, KindExclusions)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return exclusions, nil
	}
	out := []*models.Exclusion{}
	for _, e := range exclusions {
		if e.ReasonCode == reason {
			out = append(out, e)
		}
	}
	return out, nil
}
