// Package session drives a transducer calibration session: the bus
// connection, address discovery, live readings and calibration upload.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
)

var (
	ErrNoAddress        = errors.New("the pressure sensor was not scanned")
	ErrBusy             = errors.New("a scan or calibration write is already running")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNoSample         = errors.New("no raw sample received yet")
	ErrNoSuchRow        = errors.New("no such calibration row")
	ErrSampleRange      = errors.New("raw sample does not fit a calibration entry")
	ErrEmptyTable       = errors.New("calibration table is empty")
	ErrTableTooLarge    = fmt.Errorf("calibration table holds more than %d entries", MaxEntries)
)

// Session is the state of one calibration session. The table is kept sorted
// by raw value for interpolation. Methods are safe for
// concurrent use; frames are read only by the ingest goroutine started by
// Connect.
type Session struct {
	t      htcontrol.Transport
	table  *calibration.Table
	opts   options
	events chan Event

	scanner *Scanner
	writer  *writeSequence

	sendMu sync.Mutex

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	selected  protocol.Address
	broadcast bool
	live      bool
	raw       uint32
	hasRaw    bool
	stopErr   error
}

func New(t htcontrol.Transport, table *calibration.Table, opts ...Opt) (*Session, error) {
	if t == nil {
		return nil, htcontrol.ErrNilTransport
	}
	if table == nil {
		table = calibration.NewTable()
	}
	table.Sort()
	o := options{
		sched:          Realtime,
		pollInterval:   DefaultPollInterval,
		scanStepDelay:  DefaultScanStepDelay,
		scanSteps:      DefaultScanSteps,
		writeStepDelay: DefaultWriteStepDelay,
		eventBuffer:    DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		t:         t,
		table:     table,
		opts:      o,
		events:    make(chan Event, o.eventBuffer),
		selected:  o.address,
		broadcast: o.broadcast,
	}
	s.scanner = &Scanner{
		sched:    o.sched,
		delay:    o.scanStepDelay,
		steps:    o.scanSteps,
		send:     s.send,
		publish:  s.publish,
		complete: s.scanComplete,
	}
	s.writer = &writeSequence{
		sched:   o.sched,
		delay:   o.writeStepDelay,
		send:    s.send,
		publish: s.publish,
	}
	return s, nil
}

// Events delivers session results in order. Events are dropped, and logged,
// when nobody keeps up with the channel.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) Table() *calibration.Table {
	return s.table
}

func (s *Session) Transport() htcontrol.Transport {
	return s.t
}

// Connect opens the transport and starts the ingest loop. A bitrate caution
// is reported as a warning Notice, any other failing status is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	code, err := s.t.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.t.Name(), err)
	}
	if err := code.Err(); err != nil {
		return fmt.Errorf("connect %s: %w", s.t.Name(), err)
	}
	if code == htcontrol.StatusCaution {
		s.notice(htcontrol.EventTypeWarning, "connect %s: %s", s.t.Name(), code)
	}

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.connected = true
	s.stopErr = nil
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.ingest(lctx, done)
	return nil
}

// Disconnect stops any scan or upload, waits for the ingest loop to exit and
// releases the transport.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	s.scanner.Stop()
	s.writer.Stop()
	cancel()
	<-done
	return s.t.Disconnect()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Done is closed when the ingest loop exits, nil when not connected
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that ended the ingest loop, nil while it runs or
// after a clean Disconnect
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}

// Select sets the device address commands go to and readings come from
func (s *Session) Select(a protocol.Address) error {
	if !a.Valid() {
		return fmt.Errorf("%w: %d", protocol.ErrInvalidAddress, a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = a
	return nil
}

func (s *Session) SelectedAddress() (protocol.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected.Valid()
}

// SetBroadcast makes commands go to every device on the bus
func (s *Session) SetBroadcast(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = enabled
}

func (s *Session) Broadcast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcast
}

// SetLivePressure routes two byte reports to PressureReading events
func (s *Session) SetLivePressure(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = enabled
}

// CurrentRaw returns the last raw sample received from the selected device
func (s *Session) CurrentRaw() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, s.hasRaw
}

// AcquireRaw stores the current raw sample as the AD value of table row i,
// then re-sorts the table so row i may move
func (s *Session) AcquireRaw(i int) (uint32, error) {
	raw, ok := s.CurrentRaw()
	if !ok {
		return 0, ErrNoSample
	}
	if raw > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrSampleRange, raw)
	}
	if !s.table.SetRaw(i, int32(raw)) {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchRow, i)
	}
	s.table.Sort()
	return raw, nil
}

// Scan starts address discovery, it is a no-op while a scan runs
func (s *Session) Scan() error {
	if !s.Connected() {
		return htcontrol.ErrNotConnected
	}
	if s.writer.Active() {
		return ErrBusy
	}
	return s.scanner.Start()
}

func (s *Session) Scanning() bool {
	return s.scanner.Active()
}

// WriteCalibration sorts the table and uploads it to the target device
func (s *Session) WriteCalibration() error {
	if !s.Connected() {
		return htcontrol.ErrNotConnected
	}
	a, err := s.target()
	if err != nil {
		return err
	}
	if s.scanner.Active() {
		return ErrBusy
	}
	s.table.Sort()
	entries := s.table.Entries()
	switch {
	case len(entries) == 0:
		return ErrEmptyTable
	case len(entries) > MaxEntries:
		return ErrTableTooLarge
	}
	return s.writer.Start(a, entries)
}

func (s *Session) Writing() bool {
	return s.writer.Active()
}

// SetID moves the target device to newID, the selection follows it
func (s *Session) SetID(newID protocol.Address) error {
	a, err := s.command(func(a protocol.Address) (htcontrol.Frame, error) {
		return protocol.SetIDFrame(a, newID)
	})
	if err != nil {
		return err
	}
	if a != protocol.Broadcast {
		s.mu.Lock()
		s.selected = newID
		s.mu.Unlock()
	}
	return nil
}

// SetInterval sets the report interval in milliseconds
func (s *Session) SetInterval(ms uint16) error {
	_, err := s.command(func(a protocol.Address) (htcontrol.Frame, error) {
		return protocol.SetIntervalFrame(a, ms)
	})
	return err
}

func (s *Session) SaveToFlash() error {
	_, err := s.command(protocol.SaveToFlashFrame)
	return err
}

func (s *Session) FactoryReset() error {
	_, err := s.command(protocol.FactoryResetFrame)
	return err
}

func (s *Session) SetMode(m protocol.Mode) error {
	_, err := s.command(func(a protocol.Address) (htcontrol.Frame, error) {
		return protocol.ModeSwitchFrame(a, m)
	})
	return err
}

func (s *Session) command(build func(protocol.Address) (htcontrol.Frame, error)) (protocol.Address, error) {
	a, err := s.target()
	if err != nil {
		return a, err
	}
	f, err := build(a)
	if err != nil {
		return a, err
	}
	return a, s.send(f)
}

// target resolves where commands go, refusing before the transport is touched
func (s *Session) target() (protocol.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broadcast {
		return protocol.Broadcast, nil
	}
	if !s.selected.Valid() {
		return protocol.NoAddress, ErrNoAddress
	}
	return s.selected, nil
}

func (s *Session) send(f htcontrol.Frame) error {
	if !s.Connected() {
		return htcontrol.ErrNotConnected
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.opts.debug {
		log.Println(">> " + f.ColorString())
	}
	code := s.t.Write(f)
	if err := code.Err(); err != nil {
		return &htcontrol.StatusError{Code: code, Op: fmt.Sprintf("write 0x%03X", f.Identifier)}
	}
	if code == htcontrol.StatusCaution {
		s.notice(htcontrol.EventTypeWarning, "write 0x%03X: %s", f.Identifier, code)
	}
	return nil
}

func (s *Session) scanComplete(candidates []protocol.Address) {
	selected := protocol.NoAddress
	if len(candidates) > 0 {
		selected = candidates[0]
	}
	s.mu.Lock()
	s.selected = selected
	s.mu.Unlock()
	s.publish(ScanComplete{Candidates: candidates, Selected: selected})
}

func (s *Session) notice(t htcontrol.EventType, format string, args ...interface{}) {
	s.publish(Notice{htcontrol.Notice(t, format, args...)})
}

// stopped records why the ingest loop ended and publishes it
func (s *Session) stopped(err error) {
	err = htcontrol.Unrecoverable(err)
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	s.publish(LoopStopped{Err: err})
}

func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		_, file, no, ok := runtime.Caller(1)
		if ok {
			log.Printf("%s#%d event channel full, dropped %s\n", filepath.Base(file), no, ev.Kind())
		} else {
			log.Printf("event channel full, dropped %s", ev.Kind())
		}
	}
}
