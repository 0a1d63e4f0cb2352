package eventgate

import "fmt"

// ScopeError is returned when a Boundary cannot open a tracking scope. The
// wrapped operation did not run.
type ScopeError struct {
	Operation string
	Err       error
}

// Error implements error interface.
func (e *ScopeError) Error() string {
	return fmt.Sprintf("operation %s: open tracking scope: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScopeError) Unwrap() error {
	return e.Err
}
