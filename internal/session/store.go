package session

import (
	"sort"
	"sync"

	"revenue-reconciliation-service/pkg/errors"
)

// Kind names one derived-artifact slot in the per-session document store.
type Kind string

// Artifact kinds persisted per session.
const (
	KindAccountsRaw      Kind = "accounts_raw"
	KindCustomersRaw     Kind = "customers_raw"
	KindSubscriptionsRaw Kind = "subscriptions_raw"
	KindInvoicesRaw      Kind = "invoices_raw"
	KindPaymentsRaw      Kind = "payments_raw"
	KindCreditNotesRaw   Kind = "credit_notes_raw"
	KindIdentity         Kind = "identity"
	KindSegments         Kind = "segments"
	KindReconciliation   Kind = "reconciliation"
	KindScore            Kind = "score"
	KindExclusions       Kind = "exclusions"
)

// Store is an in-memory document store. Sessions and their derived artifacts
// are kept under a single lock; two sessions never share keys.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	data     map[string]map[Kind]interface{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		data:     make(map[string]map[Kind]interface{}),
	}
}

// PutSession inserts or replaces a session record.
func (s *Store) PutSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New(errors.CategoryStore, errors.CodeSessionNotFound,
			"session not found").WithContext("session_id", id)
	}
	return sess, nil
}

// ListSessions returns every session sorted by creation time, newest first.
func (s *Store) ListSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteSession removes a session and all of its artifacts.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.data, id)
}

// PutData stores one artifact under (session, kind).
func (s *Store) PutData(sessionID string, kind Kind, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[sessionID] == nil {
		s.data[sessionID] = make(map[Kind]interface{})
	}
	s.data[sessionID][kind] = value
}

// GetData fetches one artifact.
func (s *Store) GetData(sessionID string, kind Kind) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[sessionID][kind]
	if !ok {
		return nil, errors.New(errors.CategoryStore, errors.CodeDataNotFound,
			"no data for session").
			WithContext("session_id", sessionID).
			WithContext("kind", string(kind))
	}
	return v, nil
}

// DeleteData removes the named artifacts for a session.
func (s *Store) DeleteData(sessionID string, kinds ...Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kinds {
		delete(s.data[sessionID], k)
	}
}
