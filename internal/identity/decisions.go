package identity

import (
	"sort"
	"time"

	"revenue-reconciliation-service/pkg/errors"
)

// Decision values an operator can record for a review candidate.
const (
	DecisionConfirmed = "confirmed"
	DecisionRejected  = "rejected"
)

// Decision is one operator arbitration of a review candidate. The log is
// append-only; a later decision for the same match id supersedes earlier
// ones during replay.
type Decision struct {
	MatchID   string    `json:"match_id"`
	Decision  string    `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
}

// DecisionLog holds the ordered operator decisions for one session. Undo
// removes the most recent entry and reset clears the log; both work by
// truncating the slice, after which a replayed resolve reflects the new
// state.
type DecisionLog struct {
	entries []Decision
}

// NewDecisionLog creates an empty log.
func NewDecisionLog() *DecisionLog {
	return &DecisionLog{entries: []Decision{}}
}

// Decide appends a confirm or reject for the given match id. The candidate
// set comes from the most recent resolve; unknown ids are refused so the
// log never references a match the resolver cannot replay.
func (l *DecisionLog) Decide(matchID, decision string, candidates []*Candidate) error {
	if decision != DecisionConfirmed && decision != DecisionRejected {
		return errors.New(errors.CategoryIdentity, errors.CodeInvalidDecision,
			"decision must be confirmed or rejected").
			WithContext("decision", decision)
	}
	known := false
	for _, c := range candidates {
		if c.MatchID == matchID {
			known = true
			break
		}
	}
	if !known {
		return errors.New(errors.CategoryIdentity, errors.CodeUnknownMatch,
			"no review candidate with that match id").
			WithContext("match_id", matchID).
			WithSuggestion("List pending candidates and use one of their match ids")
	}
	l.entries = append(l.entries, Decision{
		MatchID:   matchID,
		Decision:  decision,
		DecidedAt: time.Now().UTC(),
	})
	return nil
}

// Undo removes the most recent decision and returns it.
func (l *DecisionLog) Undo() (Decision, error) {
	if len(l.entries) == 0 {
		return Decision{}, errors.New(errors.CategoryIdentity, errors.CodeEmptyDecisionLog,
			"no decisions to undo")
	}
	last := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return last, nil
}

// Reset clears the log, returning every candidate to pending on the next
// resolve.
func (l *DecisionLog) Reset() {
	l.entries = nil
}

// Entries returns a copy of the log in append order.
func (l *DecisionLog) Entries() []Decision {
	return append([]Decision(nil), l.entries...)
}

// Len reports the number of recorded decisions.
func (l *DecisionLog) Len() int {
	return len(l.entries)
}

// Effective collapses the log to the latest decision per match id, sorted
// by match id.
func (l *DecisionLog) Effective() []Decision {
	latest := map[string]Decision{}
	for _, d := range l.entries {
		latest[d.MatchID] = d
	}
	out := make([]Decision, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MatchID < out[j].MatchID
	})
	return out
}
