package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"init to availability", StateInit, StateAvailabilityChecked, true},
		{"availability to lock", StateAvailabilityChecked, StateLockAcquired, true},
		{"lock to final", StateLockAcquired, StateFinalValidated, true},
		{"final to committed", StateFinalValidated, StateCommitted, true},
		{"lock re-acquired", StateLockAcquired, StateLockAcquired, true},
		{"dates changed after lock", StateLockAcquired, StateAvailabilityChecked, true},
		{"lock expired back to init", StateLockExpired, StateInit, true},
		{"conflict from final", StateFinalValidated, StateConflictDetected, true},
		{"expiry from final", StateFinalValidated, StateLockExpired, true},
		// Invalid transitions
		{"init to committed", StateInit, StateCommitted, false},
		{"init to conflict", StateInit, StateConflictDetected, false},
		{"availability to committed", StateAvailabilityChecked, StateCommitted, false},
		{"conflict is terminal", StateConflictDetected, StateInit, false},
		{"committed is terminal", StateCommitted, StateAvailabilityChecked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFSM_Expire(t *testing.T) {
	fsm := NewFSM()
	a := NewAttempt("s1")
	assert.False(t, fsm.Expire(a), "nothing to expire before availability")

	assert.True(t, fsm.Transition(a, StateAvailabilityChecked))
	assert.True(t, fsm.Transition(a, StateLockAcquired))
	assert.True(t, fsm.Expire(a))
	assert.Equal(t, StateInit, a.GetState())
}

func TestAttemptStore(t *testing.T) {
	store := NewAttemptStore(time.Minute)
	assert.Nil(t, store.Get("s1"))

	a := store.GetOrCreate("s1")
	assert.Equal(t, StateInit, a.GetState())
	assert.Same(t, a, store.GetOrCreate("s1"))

	a.SetState(StateCommitted)
	fresh := store.GetOrCreate("s1")
	assert.NotSame(t, a, fresh, "finished attempts are replaced")
	assert.Equal(t, StateInit, fresh.GetState())

	fresh.mu.Lock()
	fresh.UpdatedAt = time.Now().Add(-2 * time.Minute)
	fresh.mu.Unlock()
	assert.Equal(t, 1, store.Cleanup())
	assert.Nil(t, store.Get("s1"))

	store.GetOrCreate("s2")
	store.Delete("s2")
	assert.Nil(t, store.Get("s2"))
}
