package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, Preparing.CanTransitionTo(Validating))
	assert.True(t, Validating.CanTransitionTo(WaitingConfirmation))
	assert.True(t, WaitingConfirmation.CanTransitionTo(Submitted))
	assert.True(t, Submitted.CanTransitionTo(Confirming))
	assert.True(t, Confirming.CanTransitionTo(Completed))
	assert.True(t, WaitingConfirmation.CanTransitionTo(Retrying))
	assert.True(t, Submitted.CanTransitionTo(Retrying))
	assert.True(t, Retrying.CanTransitionTo(WaitingConfirmation))

	// Failure is reachable from every non-terminal state.
	for _, s := range []TxStatus{Preparing, Validating, WaitingConfirmation, Submitted, Confirming, Retrying} {
		assert.True(t, s.CanTransitionTo(Failed), s.String())
	}

	assert.False(t, Preparing.CanTransitionTo(Submitted))
	assert.False(t, Confirming.CanTransitionTo(Retrying))
	assert.False(t, Completed.CanTransitionTo(Failed))
	assert.False(t, Failed.CanTransitionTo(Preparing))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	for _, s := range []TxStatus{Preparing, Validating, WaitingConfirmation, Submitted, Confirming, Retrying} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestTxStatusString(t *testing.T) {
	assert.Equal(t, "PREPARING", Preparing.String())
	assert.Equal(t, "WAITING_CONFIRMATION", WaitingConfirmation.String())
	assert.Equal(t, "TxStatus(42)", TxStatus(42).String())
}
