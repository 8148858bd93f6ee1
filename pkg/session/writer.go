package session

import (
	"sync"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
)

// MaxEntries is the number of rows addressable by the one byte entry index
const MaxEntries = 256

// writeSequence uploads a calibration table, one entry per frame, and
// commits it with ModeSwitch(ModeCommit). A failed send halts the upload,
// entries already written stay on the device.
type writeSequence struct {
	sched Scheduler
	delay time.Duration

	send    func(htcontrol.Frame) error
	publish func(Event)

	mu      sync.Mutex
	active  bool
	gen     uint64
	timer   Timer
	addr    protocol.Address
	entries []calibration.Entry
}

func (w *writeSequence) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *writeSequence) Start(a protocol.Address, entries []calibration.Entry) error {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return ErrBusy
	}
	w.active = true
	w.gen++
	gen := w.gen
	w.addr = a
	w.entries = entries
	w.mu.Unlock()

	w.step(gen, 0)
	return nil
}

func (w *writeSequence) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *writeSequence) stopLocked() {
	w.active = false
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *writeSequence) step(gen uint64, i int) {
	w.mu.Lock()
	if !w.active || w.gen != gen {
		w.mu.Unlock()
		return
	}
	a, entries := w.addr, w.entries
	w.mu.Unlock()

	count := len(entries)
	if i >= count {
		w.commit(gen, a, count)
		return
	}

	percent := 100 * i / count
	w.publish(WriteProgress{Index: i, Percent: percent})

	e := entries[i]
	f, err := protocol.CalibrationEntryFrame(a, uint8(i), e.Raw, e.Physical)
	if err == nil {
		err = w.send(f)
	}
	if err != nil {
		w.finish(gen)
		w.publish(WriteFailed{Index: i, Percent: percent, Err: err})
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || w.gen != gen {
		return
	}
	w.timer = w.sched.AfterFunc(w.delay, func() { w.step(gen, i+1) })
}

func (w *writeSequence) commit(gen uint64, a protocol.Address, count int) {
	f, err := protocol.ModeSwitchFrame(a, protocol.ModeCommit)
	if err == nil {
		err = w.send(f)
	}
	w.finish(gen)
	if err != nil {
		w.publish(WriteFailed{Index: count, Percent: 100, Err: err})
		return
	}
	w.publish(WriteProgress{Index: count, Percent: 100})
	w.publish(WriteComplete{Entries: count})
}

func (w *writeSequence) finish(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen == gen {
		w.stopLocked()
	}
}
