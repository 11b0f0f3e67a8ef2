package agent

import (
	"errors"
	"fmt"
)

// Error kinds for the driver's fatal paths. Tool failures are not here;
// they are journalled and surfaced as ToolError events, never fatal.
var (
	// ErrModel covers transport, auth, timeout and malformed output from
	// the LLM. Fatal for the reason step.
	ErrModel = errors.New("model error")

	// ErrPersistence covers session and journal write failures. The
	// journal is the ground truth, so losing it ends the run.
	ErrPersistence = errors.New("persistence error")
)

// errorEvent builds the terminal ErrorEvent for a fatal failure.
func errorEvent(kind error, op string, err error) ErrorEvent {
	return ErrorEvent{Error: fmt.Sprintf("%s: %s: %v", kind, op, err)}
}
