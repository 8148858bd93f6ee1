package htcontrol

import "fmt"

// StatusCode is the driver level result of a transport operation.
// StatusOK and StatusCaution both mean the operation went through.
type StatusCode int

const (
	StatusOK StatusCode = iota
	// The bus came up but not at the requested bitrate
	StatusCaution
	StatusHardwareNotFound
	StatusNotConnected
	StatusBusError
	StatusTxFull
	StatusWriteFailed
	StatusIllegalParameter
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusCaution:
		return "the bitrate being used is different than the given one"
	case StatusHardwareNotFound:
		return "the CAN hardware was not found"
	case StatusNotConnected:
		return "not connected"
	case StatusBusError:
		return "bus error"
	case StatusTxFull:
		return "transmit queue full"
	case StatusWriteFailed:
		return "write failed"
	case StatusIllegalParameter:
		return "illegal parameter"
	default:
		return fmt.Sprintf("unknown status %d", int(c))
	}
}

// Success reports whether the operation went through, possibly with a caution
func (c StatusCode) Success() bool {
	return c == StatusOK || c == StatusCaution
}

// Err returns nil for StatusOK and StatusCaution, otherwise a *StatusError
func (c StatusCode) Err() error {
	if c.Success() {
		return nil
	}
	return &StatusError{Code: c}
}

// StatusError wraps a failing StatusCode
type StatusError struct {
	Code StatusCode
	Op   string
}

func (e *StatusError) Error() string {
	if e.Op == "" {
		return e.Code.String()
	}
	return e.Op + ": " + e.Code.String()
}
