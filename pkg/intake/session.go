package intake

import (
	"context"
	"errors"
	"sync"
)

// Status is the progress of one slot.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

var (
	// ErrSlotDisabled means the slot's predecessor has not succeeded yet.
	ErrSlotDisabled = errors.New("document slot is not enabled yet")

	// ErrSessionDiscarded means the session was abandoned.
	ErrSessionDiscarded = errors.New("upload session discarded")

	// ErrSuperseded means a newer attempt replaced this one; its outcome is ignored.
	ErrSuperseded = errors.New("upload attempt superseded")

	// ErrInvalidTransition means the attempt is not in a state that allows the change.
	ErrInvalidTransition = errors.New("invalid upload state transition")
)

// Identity is the applicant data sent alongside every upload.
type Identity struct {
	DisplayName string `json:"display_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Nationality string `json:"nationality"`
	Destination string `json:"destination"`
	VisaType    string `json:"visa_type"`
}

// Result is what a successful upload reported back.
type Result struct {
	ApplicationID       string `json:"application_id"`
	ExtractionAttempted bool   `json:"extraction_attempted"`
	ExtractionSucceeded bool   `json:"extraction_succeeded"`
}

// StepView is a read-only snapshot of one slot.
type StepView struct {
	Slot    Slot    `json:"slot"`
	Status  Status  `json:"status"`
	Enabled bool    `json:"enabled"`
	Error   string  `json:"error,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

type slotState struct {
	status  Status
	attempt uint64
	cancel  context.CancelFunc
	err     error
	result  *Result
}

// Session tracks one form visit: the required slots, fixed at creation from
// the applicant's nationality, and the status of each. It is safe for
// concurrent use.
type Session struct {
	mu        sync.Mutex
	identity  Identity
	steps     []Slot
	states    map[Slot]*slotState
	discarded bool
}

// NewSession starts a session with every slot waiting.
func NewSession(identity Identity) *Session {
	steps := RequiredSlots(identity.Nationality)
	states := make(map[Slot]*slotState, len(steps))
	for _, slot := range steps {
		states[slot] = &slotState{status: StatusWaiting}
	}
	return &Session{identity: identity, steps: steps, states: states}
}

// Resume rebuilds a session from what the server already recorded. Slots
// listed in uploaded start out successful.
func Resume(identity Identity, uploaded []Slot) *Session {
	s := NewSession(identity)
	for _, slot := range uploaded {
		if st, ok := s.states[slot]; ok {
			st.status = StatusSuccess
		}
	}
	return s
}

// Identity returns the applicant identity the session was created with.
func (s *Session) Identity() Identity {
	return s.identity
}

// Steps returns the required slots in upload order.
func (s *Session) Steps() []Slot {
	out := make([]Slot, len(s.steps))
	copy(out, s.steps)
	return out
}

// Status returns the slot's status, or "" for slots outside the session.
func (s *Session) Status(slot Slot) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[slot]; ok {
		return st.status
	}
	return ""
}

// Enabled reports whether slot may be selected: it is the first slot, or its
// immediate predecessor succeeded.
func (s *Session) Enabled(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabledLocked(slot)
}

func (s *Session) enabledLocked(slot Slot) bool {
	if s.discarded {
		return false
	}
	for i, step := range s.steps {
		if step != slot {
			continue
		}
		if i == 0 {
			return true
		}
		return s.states[s.steps[i-1]].status == StatusSuccess
	}
	return false
}

// Next returns the first slot that has not succeeded.
func (s *Session) Next() (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.steps {
		if s.states[step].status != StatusSuccess {
			return step, true
		}
	}
	return "", false
}

// Complete reports whether every required slot succeeded.
func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return false
	}
	for _, step := range s.steps {
		if s.states[step].status != StatusSuccess {
			return false
		}
	}
	return true
}

// Snapshot returns the state of every slot in order.
func (s *Session) Snapshot() []StepView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]StepView, 0, len(s.steps))
	for _, step := range s.steps {
		st := s.states[step]
		view := StepView{
			Slot:    step,
			Status:  st.status,
			Enabled: s.enabledLocked(step),
			Result:  st.result,
		}
		if st.err != nil {
			view.Error = st.err.Error()
		}
		views = append(views, view)
	}
	return views
}

// Begin starts an upload attempt for slot. An attempt already in flight for
// the same slot is cancelled and its outcome will be ignored. A slot that
// already succeeded may be replaced.
func (s *Session) Begin(ctx context.Context, slot Slot) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return nil, ErrSessionDiscarded
	}
	st, ok := s.states[slot]
	if !ok {
		return nil, ErrUnknownSlot
	}
	if !s.enabledLocked(slot) {
		return nil, ErrSlotDisabled
	}

	if st.cancel != nil {
		st.cancel()
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	st.attempt++
	st.status = StatusUploading
	st.cancel = cancel
	st.err = nil
	st.result = nil

	return &Attempt{session: s, slot: slot, id: st.attempt, ctx: attemptCtx}, nil
}

// Discard abandons the session, cancelling anything in flight. The server
// copy of the application remains the source of truth for resuming.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discarded = true
	for _, st := range s.states {
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
	}
}

// Attempt is one submission of a file for a slot.
type Attempt struct {
	session *Session
	slot    Slot
	id      uint64
	ctx     context.Context
}

// Slot returns the slot being uploaded.
func (a *Attempt) Slot() Slot {
	return a.slot
}

// Context is cancelled when the attempt is superseded or the session discarded.
func (a *Attempt) Context() context.Context {
	return a.ctx
}

// Processing marks the file as received and being processed.
func (a *Attempt) Processing() error {
	return a.transition(func(st *slotState) error {
		if st.status != StatusUploading {
			return ErrInvalidTransition
		}
		st.status = StatusProcessing
		return nil
	})
}

// Succeed records the upload's result.
func (a *Attempt) Succeed(result Result) error {
	return a.transition(func(st *slotState) error {
		if st.status != StatusUploading && st.status != StatusProcessing {
			return ErrInvalidTransition
		}
		st.status = StatusSuccess
		st.result = &result
		a.release(st)
		return nil
	})
}

// Fail records the upload's failure. The slot may be retried.
func (a *Attempt) Fail(err error) error {
	return a.transition(func(st *slotState) error {
		if st.status != StatusUploading && st.status != StatusProcessing {
			return ErrInvalidTransition
		}
		st.status = StatusError
		st.err = err
		a.release(st)
		return nil
	})
}

func (a *Attempt) transition(apply func(st *slotState) error) error {
	s := a.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return ErrSessionDiscarded
	}
	st := s.states[a.slot]
	if st.attempt != a.id {
		return ErrSuperseded
	}
	return apply(st)
}

func (a *Attempt) release(st *slotState) {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}
