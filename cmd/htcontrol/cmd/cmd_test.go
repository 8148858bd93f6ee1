package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roffe/htcontrol"
	_ "github.com/roffe/htcontrol/adapter"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/session"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := Execute(context.Background()); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestTableCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	run(t, "table", "new", path, "3")
	run(t, "table", "add", path, "5", "500")
	run(t, "table", "remove", path, "1")
	run(t, "table", "sort", path)

	table, err := calibration.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []calibration.Entry{{Raw: 0, Physical: 0}, {Raw: 5, Physical: 500}, {Raw: 20, Physical: 20}}
	got := table.Entries()
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}

	if out := run(t, "table", "show", path); !strings.Contains(out, "adValue") || !strings.Contains(out, "500") {
		t.Errorf("show output:\n%s", out)
	}
	if out := run(t, "table", "lookup", path, "10"); strings.TrimSpace(out) != "340.00" {
		t.Errorf("lookup 10 = %q, want 340.00", out)
	}
	if out := run(t, "table", "lookup", path, "100"); !strings.Contains(out, "Error") {
		t.Errorf("lookup 100 = %q, want Error", out)
	}
}

func TestAdaptersCommandListsTransports(t *testing.T) {
	// port enumeration may fail in a sandbox, only check the transport list
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"adapters"})
	Execute(context.Background())
	for _, want := range []string{"SLCan", "Virtual"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not list %s:\n%s", want, out.String())
		}
	}
}

// deadBus connects with a bitrate caution and fails every read
type deadBus struct{ err error }

func (d deadBus) Name() string { return "deadbus" }
func (d deadBus) Connect(context.Context) (htcontrol.StatusCode, error) {
	return htcontrol.StatusCaution, nil
}
func (d deadBus) Disconnect() error { return nil }
func (d deadBus) ReadAvailable() ([]htcontrol.Frame, error) { return nil, d.err }
func (d deadBus) Write(htcontrol.Frame) htcontrol.StatusCode { return htcontrol.StatusOK }

func TestWaitEventReturnsWhenReaderStops(t *testing.T) {
	readErr := errors.New("adapter unplugged")
	// one slot, taken by the caution notice, so LoopStopped is dropped
	s, err := session.New(deadBus{err: readErr}, nil, session.OptEventBuffer(1), session.OptPollInterval(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = waitEvent(ctx, s, func(session.Event) (bool, error) { return false, nil })
	if !errors.Is(err, readErr) {
		t.Errorf("waitEvent() = %v, want the read error", err)
	}
}
