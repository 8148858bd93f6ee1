package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/protocol"
)

// Scanner discovers which addresses report on the bus. Start switches every
// device to raw reporting, then the scan advances one step per delay until
// steps is reached.
type Scanner struct {
	sched Scheduler
	delay time.Duration
	steps int

	send     func(htcontrol.Frame) error
	publish  func(Event)
	complete func([]protocol.Address)

	mu         sync.Mutex
	active     bool
	step       int
	gen        uint64
	timer      Timer
	discovered []protocol.Address
	seen       map[protocol.Address]struct{}
}

func (sc *Scanner) Active() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.active
}

// Start is a no-op while a scan is running
func (sc *Scanner) Start() error {
	sc.mu.Lock()
	if sc.active {
		sc.mu.Unlock()
		return nil
	}
	sc.active = true
	sc.step = 0
	sc.gen++
	gen := sc.gen
	sc.discovered = nil
	sc.seen = make(map[protocol.Address]struct{})
	sc.mu.Unlock()

	f, err := protocol.ModeSwitchFrame(protocol.Broadcast, protocol.ModeRaw)
	if err == nil {
		err = sc.send(f)
	}
	if err != nil {
		sc.Stop()
		return fmt.Errorf("scan: %w", err)
	}
	sc.schedule(gen)
	return nil
}

// Stop abandons a running scan without publishing a result
func (sc *Scanner) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.active = false
	sc.gen++
	if sc.timer != nil {
		sc.timer.Stop()
		sc.timer = nil
	}
}

// Observe records the source address of an upstream report while scanning
func (sc *Scanner) Observe(a protocol.Address) {
	if !a.Valid() {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.active {
		return
	}
	if _, found := sc.seen[a]; found {
		return
	}
	sc.seen[a] = struct{}{}
	sc.discovered = append(sc.discovered, a)
}

func (sc *Scanner) schedule(gen uint64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.active || sc.gen != gen {
		return
	}
	sc.timer = sc.sched.AfterFunc(sc.delay, func() { sc.advance(gen) })
}

func (sc *Scanner) advance(gen uint64) {
	sc.mu.Lock()
	if !sc.active || sc.gen != gen {
		sc.mu.Unlock()
		return
	}
	sc.step++
	step := sc.step
	sc.mu.Unlock()

	sc.publish(ScanProgress{Step: step, Percent: 100 * step / sc.steps})
	if step < sc.steps {
		sc.schedule(gen)
		return
	}

	// a Stop while the progress was published wins over the result
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.active || sc.gen != gen {
		return
	}
	sc.active = false
	sc.timer = nil
	sc.complete(append([]protocol.Address(nil), sc.discovered...))
}
