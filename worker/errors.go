package worker

import (
	"errors"
	"fmt"
)

// ErrTimeout matches an InvocationError caused by the per-call timeout.
var ErrTimeout = errors.New("invocation timed out")

// InvocationError is a failure of a single invocation. It is recorded in the sample and
// does not stop the batch on its own.
type InvocationError struct {
	Scenario  string
	Iteration int
	Timeout   bool
	Err       error
}

func (e *InvocationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s[%d]: %v: %v", e.Scenario, e.Iteration, ErrTimeout, e.Err)
	}
	return fmt.Sprintf("%s[%d]: %v", e.Scenario, e.Iteration, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func (e *InvocationError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// ScenarioAbortedError stops a scenario before every invocation ran: the failure
// threshold was exceeded, the connection was lost, or the run was cancelled.
type ScenarioAbortedError struct {
	Scenario string
	Failures int
	Allowed  int
	Cause    error
}

func (e *ScenarioAbortedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("scenario %s aborted after %d failures (allowed %d)", e.Scenario, e.Failures, e.Allowed)
	}
	return fmt.Sprintf("scenario %s aborted after %d failures (allowed %d): %v", e.Scenario, e.Failures, e.Allowed, e.Cause)
}

func (e *ScenarioAbortedError) Unwrap() error {
	return e.Cause
}

// IsAborted reports whether err carries a ScenarioAbortedError.
func IsAborted(err error) bool {
	var ae *ScenarioAbortedError
	return errors.As(err, &ae)
}
