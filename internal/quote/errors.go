package quote

import (
	"context"
	"errors"
	"fmt"
)

// TransientError is a failure worth retrying: network trouble, timeouts,
// rate limits, server errors or a malformed response.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError means the request cannot succeed as issued: no route,
// untradable token or a rejected request.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent: %v", e.Op, e.Err)
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

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// IsTransient reports whether err should be retried. Errors that are neither
// permanent nor a context cancellation count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	if IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
