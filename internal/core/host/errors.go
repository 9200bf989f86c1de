package host

import "fmt"

// TransientError marks a hosting-API failure worth retrying: rate limits,
// network errors, 5xx responses, timeouts.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient hosting error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a hosting-API failure that retrying cannot fix, such
// as a merge blocked by branch protection. It is surfaced to the operator
// and never retried.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent hosting error: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as a PermanentError.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}
