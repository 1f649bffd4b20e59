package workflow

import "fmt"

// WorkflowError is InvalidWorkflow per the error-handling design: schema
// violations, duplicate step names, cyclic dependencies, malformed durations.
// No run is ever created once the loader returns one of these.
type WorkflowError struct {
	message string
}

func (e *WorkflowError) Error() string {
	return e.message
}

// NewWorkflowError creates an InvalidWorkflow error.
func NewWorkflowError(message string) *WorkflowError {
	return &WorkflowError{message: message}
}

// NewWorkflowErrorf creates a formatted InvalidWorkflow error.
func NewWorkflowErrorf(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{message: fmt.Sprintf(format, args...)}
}

// IsWorkflowError reports whether err is an InvalidWorkflow error.
func IsWorkflowError(err error) bool {
	_, ok := err.(*WorkflowError)
	return ok
}

// DurationError is InvalidDuration: a time-limit string that does not match
// the accepted grammar.
type DurationError struct {
	input string
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("invalid duration %q: expected (\\d+h)?(\\d+m)?(\\d+s)? or bare seconds", e.input)
}

// NewDurationError creates an InvalidDuration error for the given input.
func NewDurationError(input string) *DurationError {
	return &DurationError{input: input}
}