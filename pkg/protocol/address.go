package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Address is a transducer bus address. Devices use 1..254, 255 is accepted
// by every device on the bus.
type Address uint8

const (
	// NoAddress marks the absence of a selected device, it is never a valid target
	NoAddress Address = 0x00
	Broadcast Address = 0xFF

	MinAddress Address = 0x01
	MaxAddress Address = 0xFE
)

var ErrInvalidAddress = errors.New("invalid device address")

// Valid reports whether a is a unicast device address
func (a Address) Valid() bool {
	return a >= MinAddress && a <= MaxAddress
}

// Target reports whether frames may be sent to a
func (a Address) Target() bool {
	return a.Valid() || a == Broadcast
}

func (a Address) String() string {
	switch a {
	case NoAddress:
		return "none"
	case Broadcast:
		return "broadcast"
	}
	return strconv.Itoa(int(a))
}

// ParseAddress parses a decimal or 0x prefixed hex device address
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "broadcast") {
		return Broadcast, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return NoAddress, fmt.Errorf("%w %q", ErrInvalidAddress, s)
	}
	a := Address(v)
	if !a.Target() {
		return NoAddress, fmt.Errorf("%w %q", ErrInvalidAddress, s)
	}
	return a, nil
}
