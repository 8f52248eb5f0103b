// Package session owns the per-session lifecycle: settings, the status
// machine, the in-memory document store, and the background pipeline that
// drives validation through scoring.
//
// A session's pipeline is serialized end-to-end; concurrency exists across
// sessions only. Artifacts publish at stage boundaries, and a cooperative
// cancel flag is checked at each boundary so an interrupted run never
// partially commits.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"revenue-reconciliation-service/internal/identity"
	"revenue-reconciliation-service/pkg/errors"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated        Status = "created"
	StatusIdentityReview Status = "identity_review"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// validTransitions encodes the forward-only status machine. The one
// backward edge, identity reset, is handled explicitly by ResetToReview.
var validTransitions = map[Status][]Status{
	StatusCreated:        {StatusIdentityReview, StatusError},
	StatusIdentityReview: {StatusProcessing, StatusError},
	StatusProcessing:     {StatusCompleted, StatusError},
	StatusCompleted:      {},
	StatusError:          {},
}

// Pipeline step names in execution order.
const (
	StepIdentity       = "identity_resolution"
	StepSegments       = "segment_generation"
	StepReconciliation = "reconciliation"
	StepScoring        = "scoring"
	StepFinalize       = "finalize"
)

// StepOrder lists the pipeline steps as the status endpoint reports them.
var StepOrder = []string{StepIdentity, StepSegments, StepReconciliation, StepScoring, StepFinalize}

// StepState is the per-step entry in the processing status map.
type StepState struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StepLogEntry is one line of the append-only processing log.
type StepLogEntry struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// ProcessingStatus is the pollable view of a running pipeline. Readers get
// a consistent snapshot via Session.Snapshot.
type ProcessingStatus struct {
	CurrentStep string               `json:"current_step"`
	Steps       map[string]StepState `json:"steps"`
	Log         []StepLogEntry       `json:"log"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// Session is one reconciliation working context.
type Session struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`

	Processing ProcessingStatus `json:"processing_status"`

	mu        sync.Mutex
	decisions *identity.DecisionLog
	cancelled bool
}

// NewSession creates a session in the created state.
func NewSession(settings Settings) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        "sess-" + uuid.NewString(),
		Status:    StatusCreated,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
		Processing: ProcessingStatus{
			Steps: map[string]StepState{},
			Log:   []StepLogEntry{},
		},
		decisions: identity.NewDecisionLog(),
	}
}

// Transition advances the status machine, rejecting edges it does not have.
func (s *Session) Transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			s.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return errors.Newf(errors.CategoryInternal, errors.CodeProcessingError,
		"invalid status transition %s -> %s", s.Status, to)
}

// CurrentStatus reads the status under the session lock.
func (s *Session) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// SetSettings replaces the session settings.
func (s *Session) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Settings = settings
	s.UpdatedAt = time.Now().UTC()
}

// ResetToReview truncates a completed or processing session back to
// identity review, clearing run state.
func (s *Session) ResetToReview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusIdentityReview
	s.Error = ""
	s.cancelled = false
	s.Processing = ProcessingStatus{Steps: map[string]StepState{}, Log: []StepLogEntry{}}
	s.UpdatedAt = time.Now().UTC()
}

// Fail marks the session errored with a message.
func (s *Session) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusError
	s.Error = msg
	s.UpdatedAt = time.Now().UTC()
}

// Cancel raises the cooperative cancel flag. The pipeline observes it at
// the next stage boundary.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports the cancel flag.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Decisions exposes the operator decision log.
func (s *Session) Decisions() *identity.DecisionLog {
	return s.decisions
}

// StartStep marks a step running and makes it current.
func (s *Session) StartStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processing.CurrentStep = step
	s.Processing.Steps[step] = StepState{Status: "running", Timestamp: time.Now().UTC()}
	s.UpdatedAt = time.Now().UTC()
}

// FinishStep marks a step done and appends a log line.
func (s *Session) FinishStep(step, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processing.Steps[step] = StepState{Status: "completed", Timestamp: time.Now().UTC()}
	s.Processing.Log = append(s.Processing.Log, StepLogEntry{Step: step, Message: message})
	s.UpdatedAt = time.Now().UTC()
}

// MarkCompleted stamps the terminal completion time.
func (s *Session) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.Processing.CompletedAt = &now
	s.UpdatedAt = now
}

// Snapshot is a read-only copy of a session's public state.
type Snapshot struct {
	ID         string           `json:"id"`
	Status     Status           `json:"status"`
	Settings   Settings         `json:"settings"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Error      string           `json:"error,omitempty"`
	Processing ProcessingStatus `json:"processing_status"`
}

// Snapshot returns a consistent copy of the session's public state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.ID,
		Status:    s.Status,
		Settings:  s.Settings,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Error:     s.Error,
		Processing: ProcessingStatus{
			CurrentStep: s.Processing.CurrentStep,
			Steps:       make(map[string]StepState, len(s.Processing.Steps)),
			Log:         append([]StepLogEntry(nil), s.Processing.Log...),
			CompletedAt: s.Processing.CompletedAt,
		},
	}
	for k, v := range s.Processing.Steps {
		snap.Processing.Steps[k] = v
	}
	return snap
}
