package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/adapter"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
)

func newVirtualSession(t *testing.T, v *adapter.Virtual, table *calibration.Table, opts ...session.Opt) *session.Session {
	t.Helper()
	opts = append([]session.Opt{
		session.OptPollInterval(time.Millisecond),
		session.OptScan(20*time.Millisecond, 4),
		session.OptWriteStepDelay(time.Millisecond),
	}, opts...)
	s, err := session.New(v, table, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Disconnect()
	})
	return s
}

func waitEvent[T session.Event](t *testing.T, s *session.Session) T {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if out, ok := ev.(T); ok {
				return out
			}
		case <-timeout:
			var zero T
			t.Fatalf("timeout waiting for %T", zero)
			return zero
		}
	}
}

func TestVirtualScanAndCalibrate(t *testing.T) {
	v := adapter.NewVirtual(&htcontrol.TransportConfig{Bitrate: 500})
	v.AddDevice(12, 1500)
	table := calibration.NewTable(
		calibration.Entry{Raw: 3000, Physical: 300},
		calibration.Entry{Raw: 1000, Physical: 0},
		calibration.Entry{Raw: 2000, Physical: 100},
	)
	s := newVirtualSession(t, v, table)

	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}
	done := waitEvent[session.ScanComplete](t, s)
	if done.Selected != 12 {
		t.Fatalf("ScanComplete = %+v, want 12 selected", done)
	}

	sample := waitEvent[session.RawSample](t, s)
	if sample.Raw != 1500 || sample.Physical != 50 {
		t.Errorf("RawSample = %+v, want 1500 -> 50", sample)
	}

	if err := s.WriteCalibration(); err != nil {
		t.Fatal(err)
	}
	if c := waitEvent[session.WriteComplete](t, s); c.Entries != 3 {
		t.Errorf("WriteComplete = %+v", c)
	}
	d, _ := v.Device(12)
	if len(d.Table) != 3 || d.Table[0].Raw != 1000 || d.Table[2].Physical != 300 {
		t.Errorf("device table = %+v", d.Table)
	}
	if d.Mode != protocol.ModePhysical {
		t.Errorf("device mode = %s, want physical after commit", d.Mode)
	}

	// the device now reports calibrated pressure itself
	s.SetLivePressure(true)
	if p := waitEvent[session.PressureReading](t, s); p.Value != 50 {
		t.Errorf("PressureReading = %+v, want 50", p)
	}
}

func TestVirtualCommands(t *testing.T) {
	v := adapter.NewVirtual(&htcontrol.TransportConfig{})
	v.AddDevice(3, 0)
	s := newVirtualSession(t, v, nil, session.OptAddress(3))

	if err := s.SetInterval(20); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveToFlash(); err != nil {
		t.Fatal(err)
	}
	d, _ := v.Device(3)
	if d.Interval != 20*time.Millisecond || !d.Saved {
		t.Errorf("device = %+v, want 20ms interval saved", d)
	}

	if err := s.SetID(9); err != nil {
		t.Fatal(err)
	}
	if _, ok := v.Device(3); ok {
		t.Error("device still answers on 3")
	}
	if _, ok := v.Device(9); !ok {
		t.Error("device not found on 9")
	}

	if err := s.FactoryReset(); err != nil {
		t.Fatal(err)
	}
	d, _ = v.Device(9)
	if d.Interval != adapter.DefaultVirtualInterval || d.Saved {
		t.Errorf("device after reset = %+v", d)
	}
}

func TestVirtualWriteFailure(t *testing.T) {
	v := adapter.NewVirtual(&htcontrol.TransportConfig{})
	v.AddDevice(5, 0)
	v.FailWrite(1, htcontrol.StatusBusError)
	table := calibration.NewTable(
		calibration.Entry{Raw: 1, Physical: 1},
		calibration.Entry{Raw: 2, Physical: 2},
		calibration.Entry{Raw: 3, Physical: 3},
	)
	s := newVirtualSession(t, v, table, session.OptAddress(5))
	if err := s.WriteCalibration(); err != nil {
		t.Fatal(err)
	}
	failed := waitEvent[session.WriteFailed](t, s)
	if failed.Index != 1 || failed.Percent != 33 {
		t.Errorf("WriteFailed = %+v, want index 1 at 33%%", failed)
	}
	d, _ := v.Device(5)
	if len(d.Pending) != 1 || len(d.Table) != 0 {
		t.Errorf("device pending %d committed %d, want 1 and 0", len(d.Pending), len(d.Table))
	}
}

func TestVirtualCaution(t *testing.T) {
	v := adapter.NewVirtual(&htcontrol.TransportConfig{Bitrate: 83.3})
	code, err := v.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Disconnect()
	if code != htcontrol.StatusCaution {
		t.Errorf("Connect() = %s, want caution", code)
	}
}

func TestListTransports(t *testing.T) {
	names := map[string]bool{}
	for _, info := range htcontrol.ListTransports() {
		names[info.Name] = true
	}
	for _, want := range []string{"SLCan", "Virtual"} {
		if !names[want] {
			t.Errorf("%s not registered", want)
		}
	}
}
