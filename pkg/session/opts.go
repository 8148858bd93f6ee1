package session

import (
	"time"

	"github.com/roffe/htcontrol/pkg/protocol"
)

const (
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultScanStepDelay  = 500 * time.Millisecond
	DefaultScanSteps      = 4
	DefaultWriteStepDelay = 10 * time.Millisecond
	DefaultEventBuffer    = 1024
)

type options struct {
	sched          Scheduler
	pollInterval   time.Duration
	scanStepDelay  time.Duration
	scanSteps      int
	writeStepDelay time.Duration
	eventBuffer    int
	address        protocol.Address
	broadcast      bool
	debug          bool
}

type Opt func(o *options)

func OptScheduler(s Scheduler) Opt {
	return func(o *options) {
		o.sched = s
	}
}

func OptPollInterval(d time.Duration) Opt {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// OptScan sets the delay between scan steps and the number of steps
func OptScan(delay time.Duration, steps int) Opt {
	return func(o *options) {
		if delay > 0 {
			o.scanStepDelay = delay
		}
		if steps > 0 {
			o.scanSteps = steps
		}
	}
}

func OptWriteStepDelay(d time.Duration) Opt {
	return func(o *options) {
		if d > 0 {
			o.writeStepDelay = d
		}
	}
}

func OptEventBuffer(n int) Opt {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// OptAddress preselects the device address, NoAddress leaves it unset
func OptAddress(a protocol.Address) Opt {
	return func(o *options) {
		if a.Valid() {
			o.address = a
		}
	}
}

func OptBroadcast(enabled bool) Opt {
	return func(o *options) {
		o.broadcast = enabled
	}
}

// OptDebug logs every frame sent and received
func OptDebug(enabled bool) Opt {
	return func(o *options) {
		o.debug = enabled
	}
}
