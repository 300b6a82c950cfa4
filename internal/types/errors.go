package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedPlaylist  = errors.New("malformed playlist")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrCancelled          = errors.New("download cancelled")
	ErrPaused             = pausedError{}
	ErrJobNotFound        = errors.New("job not found")
)

// pausedError is the cancellation cause used by a user pause. It matches
// ErrCancelled so callers that only care about "stopped on purpose" need a
// single check.
type pausedError struct{}

func (pausedError) Error() string { return "download paused by user" }

func (pausedError) Is(target error) bool { return target == ErrCancelled }

// ServerError is returned for any HTTP status other than 200 or 206.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status code %d", e.Code)
}

// IOError wraps local disk failures (disk full, permissions).
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Outcome is what a finished attempt means for the job status.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeNoNetwork
	OutcomeCancelled
)

func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		if errors.Is(err, ErrNetworkUnavailable) {
			return OutcomeNoNetwork
		}
		return OutcomeCancelled
	case errors.Is(err, ErrNetworkUnavailable):
		return OutcomeNoNetwork
	default:
		return OutcomeFailed
	}
}
