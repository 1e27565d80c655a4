package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind int

const (
	// Transient failures may succeed when retried.
	Transient ErrorKind = iota
	// Permanent failures are returned to the session immediately.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// ErrTimeout is wrapped when a call exceeds the configured deadline.
var ErrTimeout = errors.New("transcription timed out")

// ErrNotReady is wrapped when a backend is still preparing a local model.
// It is reported as is even when the deadline expired while waiting.
var ErrNotReady = errors.New("not ready")

type BackendError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewTransientError(provider string, err error) error {
	return &BackendError{Provider: provider, Kind: Transient, Err: err}
}

func NewPermanentError(provider string, err error) error {
	return &BackendError{Provider: provider, Kind: Permanent, Err: err}
}

// IsTransient reports whether err is worth retrying. Errors that were never
// classified count as permanent.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == Transient
}

func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

// KindForStatus maps an HTTP status to a retry class. Rate limiting (429)
// is treated as quota exhaustion and not retried.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusRequestTimeout:
		return Transient
	case status >= 500:
		return Transient
	default:
		return Permanent
	}
}

// classifyNetwork labels connection-level failures as transient.
func classifyNetwork(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewPermanentError(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(provider, err)
	}
	return nil
}
