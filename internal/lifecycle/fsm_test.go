package lifecycle

import (
	"testing"

	"github.com/ammobase/harvester/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to types.ExecutionStatus
		expected bool
	}{
		{types.ExecutionPending, types.ExecutionSuccess, true},
		{types.ExecutionPending, types.ExecutionFailed, true},
		{types.ExecutionSuccess, types.ExecutionPending, false},
		{types.ExecutionSuccess, types.ExecutionFailed, false},
		{types.ExecutionFailed, types.ExecutionSuccess, false},
		{types.ExecutionFailed, types.ExecutionPending, false},
		{types.ExecutionPending, types.ExecutionPending, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_Invalid(t *testing.T) {
	err := Transition(types.ExecutionSuccess, types.ExecutionFailed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transition")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(types.ExecutionPending))
	assert.True(t, IsTerminal(types.ExecutionSuccess))
	assert.True(t, IsTerminal(types.ExecutionFailed))
}
