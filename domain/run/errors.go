package run

import "fmt"

// Error is the domain error type for the run/scheduling package, covering
// the InputStagingError, ContainerLaunchError, DeadlineExceeded and
// RepositoryError kinds from the error-handling design (§7).
type Error struct {
	kind    string
	message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.kind, e.message) }

func (e *Error) Kind() string { return e.kind }

func newError(kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

func NewInputStagingError(format string, args ...interface{}) *Error {
	return newError("InputStagingError", format, args...)
}

func NewContainerLaunchError(format string, args ...interface{}) *Error {
	return newError("ContainerLaunchError", format, args...)
}

func NewDeadlineExceededError(format string, args ...interface{}) *Error {
	return newError("DeadlineExceeded", format, args...)
}

func NewRepositoryError(format string, args ...interface{}) *Error {
	return newError("RepositoryError", format, args...)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind string) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
