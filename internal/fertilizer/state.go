package fertilizer

import (
	"sync"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/models"
)

// Phase is the lifecycle position of the current prediction attempt.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the tracker. Response is set only in PhaseSuccess,
// Message and Code only in PhaseFailed.
type State struct {
	Phase    Phase
	Attempt  uint64
	Response *models.PredictResponse
	Message  string
	Code     apperrors.ErrorCode
}

func (s State) clone() State {
	if s.Response != nil {
		resp := *s.Response
		s.Response = &resp
	}
	return s
}

// Tracker holds the result of the latest prediction attempt. Outcomes of
// superseded attempts are discarded.
type Tracker struct {
	mu       sync.Mutex
	latest   uint64
	state    State
	listener func(State)
}

type TrackerOption func(*Tracker)

// WithListener is called with every committed state change. It runs outside
// the tracker lock but may run under the owning Session's lock, so it must
// not block or call back into that Session.
func WithListener(fn func(State)) TrackerOption {
	return func(t *Tracker) { t.listener = fn }
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a new attempt and returns its id. Any attempt still in
// flight becomes stale.
func (t *Tracker) Begin() uint64 {
	t.mu.Lock()
	t.latest++
	t.state = State{Phase: PhaseLoading, Attempt: t.latest}
	snapshot := t.state.clone()
	t.mu.Unlock()

	t.notify(snapshot)
	return snapshot.Attempt
}

// Resolve commits the outcome of attempt id. It reports false, leaving the
// state untouched, when id is stale, the tracker is not loading, or err is a
// cancellation.
func (t *Tracker) Resolve(id uint64, resp *models.PredictResponse, err error) bool {
	if err != nil && apperrors.IsCancelled(err) {
		return false
	}

	t.mu.Lock()
	if id != t.latest || t.state.Phase != PhaseLoading {
		t.mu.Unlock()
		return false
	}

	switch {
	case err != nil:
		t.state = State{
			Phase:   PhaseFailed,
			Attempt: id,
			Message: failureMessage(err),
			Code:    apperrors.CodeOf(err),
		}
	case resp == nil:
		t.state = State{
			Phase:   PhaseFailed,
			Attempt: id,
			Message: "Prediction failed",
			Code:    apperrors.ErrCodeInvalidResponse,
		}
	default:
		r := *resp
		t.state = State{Phase: PhaseSuccess, Attempt: id, Response: &r}
	}
	snapshot := t.state.clone()
	t.mu.Unlock()

	t.notify(snapshot)
	return true
}

// Reset returns to idle and invalidates any outstanding attempt.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.latest++
	t.state = State{Phase: PhaseIdle, Attempt: t.latest}
	snapshot := t.state.clone()
	t.mu.Unlock()

	t.notify(snapshot)
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// IsLatest reports whether id is the most recently issued attempt.
func (t *Tracker) IsLatest(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return id == t.latest
}

func (t *Tracker) notify(s State) {
	if t.listener != nil {
		t.listener(s)
	}
}

func failureMessage(err error) string {
	if msg := apperrors.UserMessage(err); msg != "" {
		return msg
	}
	return "Prediction failed"
}
