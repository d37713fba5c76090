package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionAllowsConnectingFlow(t *testing.T) {
	assert.NoError(t, Transition(NotConnected, Connecting))
	assert.NoError(t, Transition(Connecting, Open))
	assert.NoError(t, Transition(Open, Active))
	assert.NoError(t, Transition(Active, Open))
	assert.NoError(t, Transition(Open, Closing))
	assert.NoError(t, Transition(Closing, Closed))
}

func TestTransitionRejectsIllegalJump(t *testing.T) {
	assert.Error(t, Transition(NotConnected, Active))
	assert.Error(t, Transition(Closed, Open))
}
