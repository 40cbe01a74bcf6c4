package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusStuck))
	assert.True(t, StatusPending.CanTransitionTo(StatusRecovered))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.True(t, StatusStuck.CanTransitionTo(StatusStuck))
	assert.True(t, StatusStuck.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusStuck.CanTransitionTo(StatusRecovered))
	assert.True(t, StatusStuck.CanTransitionTo(StatusFailed))

	// Cancellation requires an established stuck state.
	assert.False(t, StatusPending.CanTransitionTo(StatusCancelled))

	// Terminal states are absorbing.
	for _, s := range []Status{StatusCancelled, StatusRecovered, StatusFailed} {
		for _, to := range []Status{StatusPending, StatusStuck, StatusCancelled, StatusRecovered, StatusFailed} {
			assert.False(t, s.CanTransitionTo(to), "%s -> %s", s, to)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRecovered.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusStuck.IsTerminal())
}
