package session

import "time"

// Scheduler runs f once after d. Scan and calibration write steps are
// advanced through it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realtime struct{}

func (realtime) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Realtime schedules on the wall clock
var Realtime Scheduler = realtime{}
