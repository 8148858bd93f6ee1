package htcontrol

import (
	"errors"
)

var (
	ErrNilTransport     = errors.New("transport is nil")
	ErrNotConnected     = errors.New("transport not connected")
	ErrDroppedFrame     = errors.New("transport receive buffer full, frame dropped")
	ErrErrorChannelFull = errors.New("transport error channel full")
)

// UnrecoverableError marks a failure after which the transport or the loop
// reading it cannot continue. Callers report it once and stop.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	if e.Err == nil {
		return "unrecoverable error"
	}
	return e.Err.Error()
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Unrecoverable wraps err, wrapping twice is a no-op
func Unrecoverable(err error) error {
	if !IsRecoverable(err) {
		return err
	}
	return &UnrecoverableError{Err: err}
}

// IsRecoverable reports whether no UnrecoverableError is in err's chain
func IsRecoverable(err error) bool {
	var ue *UnrecoverableError
	return !errors.As(err, &ue)
}
