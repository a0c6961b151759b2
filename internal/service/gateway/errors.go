package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayExhausted is returned when the last backend in the chain gives up.
	ErrGatewayExhausted = errors.New("gateway: all model backends exhausted")
	// ErrBlankReply marks a completion that carried no text.
	ErrBlankReply = errors.New("model returned a blank reply")
	// ErrNotConfigured is returned by a backend slot that has no credentials.
	ErrNotConfigured = errors.New("backend not configured")
)

// TransientError wraps a failure that may succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure that will not resolve with retries. The
// backend is abandoned immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error { return &TransientError{Err: err} }
func Permanent(err error) error { return &PermanentError{Err: err} }

// ExhaustedError reports that one backend ran out of attempts or failed
// permanently.
type ExhaustedError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("backend %s gave up after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
