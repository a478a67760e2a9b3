package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{Completed, Failed, TimedOut, Stopped} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{Idle, Starting, Running} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "unknown", State(99).String())
}
