package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
)

type fakeTransport struct {
	mu          sync.Mutex
	connectCode htcontrol.StatusCode
	connectErr  error
	readErr     error
	pending     []htcontrol.Frame
	reads       int
	written     []htcontrol.Frame
	writeCodes  map[int]htcontrol.StatusCode
	disconnects int
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Connect(context.Context) (htcontrol.StatusCode, error) {
	return f.connectCode, f.connectErr
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) ReadAvailable() ([]htcontrol.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeTransport) Write(fr htcontrol.Frame) htcontrol.StatusCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.writeCodes[len(f.written)]
	f.written = append(f.written, fr)
	if !ok {
		return htcontrol.StatusOK
	}
	return code
}

func (f *fakeTransport) push(frames ...htcontrol.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, frames...)
}

func (f *fakeTransport) setReadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *fakeTransport) frames() []htcontrol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]htcontrol.Frame(nil), f.written...)
}

// settle waits until everything pushed so far has been handled by the ingest loop
func (f *fakeTransport) settle(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	target := f.reads + 2
	f.mu.Unlock()
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.reads >= target && len(f.pending) == 0
	})
}

type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{s: m, d: d, f: f}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, p := range t.s.pending {
		if p == t {
			t.s.pending = append(t.s.pending[:i], t.s.pending[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// fire runs the oldest pending callback and reports whether there was one
func (m *manualScheduler) fire() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	t.f()
	return true
}

func (m *manualScheduler) fireAll() int {
	n := 0
	for m.fire() {
		n++
	}
	return n
}

func (m *manualScheduler) lastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0
	}
	return m.pending[len(m.pending)-1].d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

// drain returns every event queued right now
func drain(s *Session) []Event {
	var out []Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func report(a protocol.Address, data ...byte) htcontrol.Frame {
	return htcontrol.NewFrame(protocol.UpstreamMarker|uint16(a), data)
}

func newTestSession(t *testing.T, tr *fakeTransport, table *calibration.Table, opts ...Opt) (*Session, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	opts = append([]Opt{OptScheduler(sched), OptPollInterval(time.Millisecond)}, opts...)
	s, err := New(tr, table, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Disconnect()
	})
	return s, sched
}
