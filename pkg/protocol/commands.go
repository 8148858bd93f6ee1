package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/roffe/htcontrol"
)

// Command is a device operation, its value is the opcode byte
type Command byte

const (
	SetID                 Command = 0x02
	SaveToFlash           Command = 0x1D
	SetInterval           Command = 0x1E
	FactoryReset          Command = 0xD3
	ModeSwitch            Command = 0xE0
	CalibrationEntryWrite Command = 0xE1
)

func (c Command) Valid() bool {
	switch c {
	case SetID, SaveToFlash, SetInterval, FactoryReset, ModeSwitch, CalibrationEntryWrite:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c {
	case SetID:
		return "SetID"
	case SaveToFlash:
		return "SaveToFlash"
	case SetInterval:
		return "SetInterval"
	case FactoryReset:
		return "FactoryReset"
	case ModeSwitch:
		return "ModeSwitch"
	case CalibrationEntryWrite:
		return "CalibrationEntryWrite"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// Mode is the ModeSwitch argument
type Mode byte

const (
	ModePhysical Mode = 0x00 // report physical value
	ModeRaw      Mode = 0x01 // report raw AD value
	ModeCommit   Mode = 0x02 // commit calibration to flash
)

func (m Mode) String() string {
	switch m {
	case ModePhysical:
		return "physical"
	case ModeRaw:
		return "raw"
	case ModeCommit:
		return "commit"
	default:
		return fmt.Sprintf("Mode(0x%02X)", byte(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "physical", "pressure":
		return ModePhysical, nil
	case "raw", "ad":
		return ModeRaw, nil
	case "commit":
		return ModeCommit, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func SetIDFrame(a Address, newID Address) (htcontrol.Frame, error) {
	if !newID.Valid() {
		return htcontrol.Frame{}, fmt.Errorf("%w: %d", ErrInvalidAddress, newID)
	}
	return BuildCommandFrame(a, SetID, byte(newID))
}

// SetIntervalFrame sets the report interval in milliseconds
func SetIntervalFrame(a Address, ms uint16) (htcontrol.Frame, error) {
	return BuildCommandFrame(a, SetInterval, byte(ms), byte(ms>>8))
}

func SaveToFlashFrame(a Address) (htcontrol.Frame, error) {
	return BuildCommandFrame(a, SaveToFlash)
}

func FactoryResetFrame(a Address) (htcontrol.Frame, error) {
	return BuildCommandFrame(a, FactoryReset)
}

func ModeSwitchFrame(a Address, m Mode) (htcontrol.Frame, error) {
	return BuildCommandFrame(a, ModeSwitch, byte(m))
}

// CalibrationEntryFrame carries one table row: index, raw as 4 bytes
// little-endian and the low 2 bytes of the physical value.
func CalibrationEntryFrame(a Address, index uint8, raw, physical int32) (htcontrol.Frame, error) {
	payload := make([]byte, 7)
	payload[0] = index
	binary.LittleEndian.PutUint32(payload[1:5], uint32(raw))
	binary.LittleEndian.PutUint16(payload[5:7], uint16(physical))
	return BuildCommandFrame(a, CalibrationEntryWrite, payload...)
}
