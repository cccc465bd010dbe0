// Package lifecycle implements the execution state machine.
package lifecycle

import (
	"fmt"

	"github.com/ammobase/harvester/pkg/types"
)

// Transition table: from -> allowed tos. Status never moves backward and
// never leaves a terminal state.
var validTransitions = map[types.ExecutionStatus][]types.ExecutionStatus{
	types.ExecutionPending: {types.ExecutionSuccess, types.ExecutionFailed},
	types.ExecutionSuccess: {},
	types.ExecutionFailed:  {},
}

// CanTransition checks if transitioning from one execution status to another is valid.
func CanTransition(from, to types.ExecutionStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the move, or returns an error if it is invalid.
func Transition(from, to types.ExecutionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.ExecutionStatus) bool {
	return status == types.ExecutionSuccess || status == types.ExecutionFailed
}
