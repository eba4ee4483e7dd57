// Package booking tracks booking attempts and runs the final check before
// a booking is committed.
package booking

import (
	"sync"
	"time"
)

// State is the stage of one booking attempt.
type State string

const (
	StateInit                State = "INIT"
	StateAvailabilityChecked State = "AVAILABILITY_CHECKED"
	StateLockAcquired        State = "LOCK_ACQUIRED"
	StateFinalValidated      State = "FINAL_VALIDATED"
	StateCommitted           State = "COMMITTED"
	StateLockExpired         State = "LOCK_EXPIRED"
	StateConflictDetected    State = "CONFLICT_DETECTED"
)

// Attempt is a session's progress toward a committed booking.
type Attempt struct {
	SessionID string
	State     State
	BookingID string
	StartedAt time.Time
	UpdatedAt time.Time
	mu        sync.Mutex
}

func NewAttempt(sessionID string) *Attempt {
	now := time.Now()
	return &Attempt{SessionID: sessionID, State: StateInit, StartedAt: now, UpdatedAt: now}
}

func (a *Attempt) SetState(state State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.State = state
	a.UpdatedAt = time.Now()
}

func (a *Attempt) SetBookingID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.BookingID = id
}

func (a *Attempt) GetState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.State
}

func (a *Attempt) IsExpired(timeout time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.UpdatedAt) > timeout
}

// Terminal attempts accept no further transitions except a restart.
func (a *Attempt) Terminal() bool {
	s := a.GetState()
	return s == StateCommitted || s == StateConflictDetected
}

// AttemptStore keeps one attempt per session.
type AttemptStore struct {
	attempts map[string]*Attempt
	mu       sync.RWMutex
	timeout  time.Duration
}

func NewAttemptStore(timeout time.Duration) *AttemptStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &AttemptStore{attempts: make(map[string]*Attempt), timeout: timeout}
}

func (s *AttemptStore) Get(sessionID string) *Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts[sessionID]
}

// GetOrCreate starts a fresh attempt when the previous one is idle too long
// or already finished.
func (s *AttemptStore) GetOrCreate(sessionID string) *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[sessionID]
	if ok && !a.IsExpired(s.timeout) && !a.Terminal() {
		return a
	}
	a = NewAttempt(sessionID)
	s.attempts[sessionID] = a
	return a
}

func (s *AttemptStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, sessionID)
}

// Cleanup removes idle attempts.
func (s *AttemptStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, a := range s.attempts {
		if a.IsExpired(s.timeout) {
			delete(s.attempts, id)
			removed++
		}
	}
	return removed
}

// FSM holds the allowed attempt transitions.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateInit:                {StateAvailabilityChecked},
			StateAvailabilityChecked: {StateAvailabilityChecked, StateLockAcquired, StateLockExpired, StateConflictDetected},
			StateLockAcquired:        {StateLockAcquired, StateAvailabilityChecked, StateFinalValidated, StateLockExpired, StateConflictDetected},
			StateFinalValidated:      {StateCommitted, StateLockExpired, StateConflictDetected},
			StateLockExpired:         {StateInit},
			StateCommitted:           {},
			StateConflictDetected:    {},
		},
	}
}

func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the attempt when allowed.
func (f *FSM) Transition(a *Attempt, to State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !f.CanTransition(a.State, to) {
		return false
	}
	a.State = to
	a.UpdatedAt = time.Now()
	return true
}

// Expire records a lost lock and sends the attempt back to INIT.
func (f *FSM) Expire(a *Attempt) bool {
	if !f.Transition(a, StateLockExpired) {
		return false
	}
	return f.Transition(a, StateInit)
}
