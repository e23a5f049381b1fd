package runner

import (
	"errors"
	"fmt"
)

// State is a step of the run lifecycle.
type State string

const (
	StateCreated       State = "created"
	StateScriptWritten State = "script_written"
	StateCommandBuilt  State = "command_built"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateTimedOut      State = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

var (
	ErrTimeout         = errors.New("test execution timed out")
	ErrSummaryMissing  = errors.New("k6 exited successfully but wrote no summary export")
	ErrToolUnavailable = errors.New("k6 is not installed or not executable")
)

// ExecutionError is returned for every run that does not reach a scored
// result. State is StateFailed or StateTimedOut; Op names the failed step.
type ExecutionError struct {
	TestID string
	State  State
	Op     string
	Output string
	Err    error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("test %s %s: %s: %v", e.TestID, e.State, e.Op, e.Err)
	if e.Output != "" {
		msg += "\noutput:\n" + e.Output
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
