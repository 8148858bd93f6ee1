package session

import (
	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/protocol"
)

// Event is published on Session.Events in the order it happened
type Event interface {
	Kind() string
}

// Notice is an operator facing message, warnings and errors included
type Notice struct {
	htcontrol.Event
}

// PressureReading is a live 13 bit pressure report, the table is not involved
type PressureReading struct {
	Address protocol.Address
	Value   uint16
}

// RawSample is an AD report run through the calibration table. Err is
// calibration.ErrOutOfRange when the table cannot bracket Raw.
type RawSample struct {
	Address  protocol.Address
	Raw      uint32
	Physical float64
	Err      error
}

type ScanProgress struct {
	Step    int
	Percent int
}

// ScanComplete lists every address seen in first-sighting order. Selected is
// protocol.NoAddress when nothing answered.
type ScanComplete struct {
	Candidates []protocol.Address
	Selected   protocol.Address
}

type WriteProgress struct {
	Index   int
	Percent int
}

type WriteComplete struct {
	Entries int
}

// WriteFailed halts the calibration upload. Percent is the share of entries
// written before Index failed.
type WriteFailed struct {
	Index   int
	Percent int
	Err     error
}

// LoopStopped is published once when the ingest loop dies on a transport error
type LoopStopped struct {
	Err error
}

func (Notice) Kind() string          { return "notice" }
func (PressureReading) Kind() string { return "pressure" }
func (RawSample) Kind() string       { return "sample" }
func (ScanProgress) Kind() string    { return "scan_progress" }
func (ScanComplete) Kind() string    { return "scan_complete" }
func (WriteProgress) Kind() string   { return "write_progress" }
func (WriteComplete) Kind() string   { return "write_complete" }
func (WriteFailed) Kind() string     { return "write_failed" }
func (LoopStopped) Kind() string     { return "loop_stopped" }
