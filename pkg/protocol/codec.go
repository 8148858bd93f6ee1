// Package protocol implements the transducer's CAN addressing and command frame layout.
//
// Identifiers carry a channel marker in bits 8..10 on top of the device
// address in the low byte:
//
//	0x3XX  bits 8,9 set    downstream command addressed to XX
//	0x7XX  bits 8,9,10 set upstream report from XX
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roffe/htcontrol"
)

const (
	CommandMarker  uint16 = 0x300
	UpstreamMarker uint16 = 0x700
	addressMask    uint16 = 0x0FF

	// The device packs pressure into the low 13 bits of a 16 bit field
	PressureMask uint16 = 0x1FFF
)

var (
	ErrPayloadTooLong = errors.New("command payload too long")
	ErrUnknownCommand = errors.New("unknown command")
	ErrShortPayload   = errors.New("payload too short")
)

// EncodeAddress returns the downstream command identifier for a
func EncodeAddress(a Address) uint16 {
	return CommandMarker | uint16(a)
}

// IsUpstreamReport reports whether id carries the device telemetry marker
func IsUpstreamReport(id uint16) bool {
	return id&UpstreamMarker == UpstreamMarker
}

// StripAddressBits returns the address embedded in the low byte of id
func StripAddressBits(id uint16) Address {
	return Address(id & addressMask)
}

// DecodeU16 combines two bytes into the 13 bit pressure value
func DecodeU16(low, high byte) uint16 {
	return (uint16(high)<<8 | uint16(low)) & PressureMask
}

// DecodeU32 combines the first four bytes of b, little-endian, into a raw sample
func DecodeU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, got %d", ErrShortPayload, len(b))
	}
	return binary.LittleEndian.Uint32(b[:4]), nil
}

// BuildCommandFrame places the opcode in byte 0 and the payload from byte 1,
// zero padded to a full 8 byte frame addressed to a.
func BuildCommandFrame(a Address, cmd Command, payload ...byte) (htcontrol.Frame, error) {
	if !cmd.Valid() {
		return htcontrol.Frame{}, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, byte(cmd))
	}
	if len(payload) > htcontrol.MaxDataLength-1 {
		return htcontrol.Frame{}, fmt.Errorf("%w: %s takes at most %d bytes, got %d", ErrPayloadTooLong, cmd, htcontrol.MaxDataLength-1, len(payload))
	}
	f := htcontrol.Frame{
		Identifier: EncodeAddress(a),
		Length:     htcontrol.MaxDataLength,
	}
	f.Data[0] = byte(cmd)
	copy(f.Data[1:], payload)
	return f, nil
}

// DecodePressure returns the live pressure carried by a two byte report
func DecodePressure(f htcontrol.Frame) (uint16, bool) {
	if f.Length != 2 {
		return 0, false
	}
	return DecodeU16(f.Data[0], f.Data[1]), true
}

// DecodeRawSample returns the AD sample carried by a report of at least four bytes
func DecodeRawSample(f htcontrol.Frame) (uint32, bool) {
	v, err := DecodeU32(f.Data[:f.DLC()])
	if err != nil {
		return 0, false
	}
	return v, true
}
