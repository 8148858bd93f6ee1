package calibration

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func scenarioTable() *Table {
	return NewTable(
		Entry{Raw: 100, Physical: 10},
		Entry{Raw: 200, Physical: 20},
		Entry{Raw: 300, Physical: 30},
	)
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name    string
		raw     int64
		want    float64
		wantErr error
	}{
		{"between", 150, 15, nil},
		{"second segment", 275, 27.5, nil},
		{"exact first", 100, 10, nil},
		{"exact middle", 200, 20, nil},
		{"exact last", 300, 30, nil},
		{"above max", 350, 0, ErrOutOfRange},
		{"below min", 50, 0, ErrOutOfRange},
	}
	table := scenarioTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Interpolate(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Interpolate(%d) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Interpolate(%d) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestInterpolateEmpty(t *testing.T) {
	table := NewTable()
	for _, raw := range []int64{-1, 0, 1, 1 << 40} {
		if _, err := table.Interpolate(raw); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Interpolate(%d) on empty table error = %v, want ErrOutOfRange", raw, err)
		}
	}
}

func TestInterpolateSingleEntry(t *testing.T) {
	table := NewTable(Entry{Raw: 500, Physical: 42})
	got, err := table.Interpolate(500)
	if err != nil || got != 42 {
		t.Errorf("Interpolate(500) = %v, %v, want 42, nil", got, err)
	}
	if _, err := table.Interpolate(501); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Interpolate(501) error = %v, want ErrOutOfRange", err)
	}
}

func TestInterpolateExactWithDuplicates(t *testing.T) {
	table := NewTable(
		Entry{Raw: 0, Physical: 0},
		Entry{Raw: 100, Physical: 7},
		Entry{Raw: 100, Physical: 7},
		Entry{Raw: 200, Physical: 9},
	)
	got, err := table.Interpolate(100)
	if err != nil || got != 7 {
		t.Errorf("Interpolate(100) = %v, %v, want 7, nil", got, err)
	}
}

func TestInterpolateMonotonic(t *testing.T) {
	table := NewTable(
		Entry{Raw: -400, Physical: -50},
		Entry{Raw: 0, Physical: 0},
		Entry{Raw: 1000, Physical: 100},
		Entry{Raw: 1500, Physical: 100},
		Entry{Raw: 8191, Physical: 2500},
	)
	entries := table.Entries()
	for i := 0; i < len(entries)-1; i++ {
		lo, hi := entries[i], entries[i+1]
		for x := int64(lo.Raw) + 1; x < int64(hi.Raw); x++ {
			got, err := table.Interpolate(x)
			if err != nil {
				t.Fatalf("Interpolate(%d) error: %v", x, err)
			}
			if got < float64(lo.Physical) || got > float64(hi.Physical) {
				t.Fatalf("Interpolate(%d) = %v not within [%d, %d]", x, got, lo.Physical, hi.Physical)
			}
		}
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name   string
		raw    int64
		ge, le int
	}{
		{"below", 50, 0, -1},
		{"first", 100, 0, 0},
		{"between", 150, 1, 0},
		{"last", 300, 2, 2},
		{"above", 350, -1, 2},
	}
	table := scenarioTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge, le := table.Locate(tt.raw)
			if ge != tt.ge || le != tt.le {
				t.Errorf("Locate(%d) = (%d, %d), want (%d, %d)", tt.raw, ge, le, tt.ge, tt.le)
			}
		})
	}
	if ge, le := NewTable().Locate(1); ge != -1 || le != -1 {
		t.Errorf("Locate on empty table = (%d, %d), want (-1, -1)", ge, le)
	}
}

func TestAdd(t *testing.T) {
	table := NewTable()
	if e := table.Add(); e != (Entry{}) {
		t.Errorf("first Add() = %+v, want zero entry", e)
	}
	table.Append(Entry{Raw: 250, Physical: 3})
	if e := table.Add(); e != (Entry{Raw: 260, Physical: 13}) {
		t.Errorf("Add() = %+v, want {260 13}", e)
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", table.Len())
	}
}

func TestRemoveAt(t *testing.T) {
	table := scenarioTable()
	if table.RemoveAt(-1) || table.RemoveAt(3) {
		t.Error("RemoveAt out of range reported a removal")
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d after out of range removals, want 3", table.Len())
	}
	if !table.RemoveAt(1) {
		t.Fatal("RemoveAt(1) = false")
	}
	want := []Entry{{100, 10}, {300, 30}}
	if got := table.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestSortStable(t *testing.T) {
	table := NewTable(
		Entry{Raw: 300, Physical: 1},
		Entry{Raw: 100, Physical: 2},
		Entry{Raw: 300, Physical: 3},
		Entry{Raw: 200, Physical: 4},
	)
	table.Sort()
	want := []Entry{{100, 2}, {200, 4}, {300, 1}, {300, 3}}
	if got := table.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestSetRaw(t *testing.T) {
	table := scenarioTable()
	if !table.SetRaw(0, 90) {
		t.Fatal("SetRaw(0) = false")
	}
	if e, _ := table.At(0); e.Raw != 90 || e.Physical != 10 {
		t.Errorf("At(0) = %+v, want {90 10}", e)
	}
	if table.SetRaw(5, 1) {
		t.Error("SetRaw(5) = true on a 3 row table")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := NewTable(
		Entry{Raw: 300, Physical: 10},
		Entry{Raw: 200, Physical: -10},
		Entry{Raw: 2147483647, Physical: -2147483648},
	)
	for _, name := range []string{"cal.json", "cal.yaml", "cal.yml", "cal.cbor"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := orig.Save(path); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if !reflect.DeepEqual(got.Entries(), orig.Entries()) {
				t.Errorf("Load() = %v, want %v", got.Entries(), orig.Entries())
			}
		})
	}
}

func TestLoadOriginalJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor.json")
	data := `{"sensorCalParam": [{"adValue": 100, "rangeValue": 10}, {"adValue": 200, "rangeValue": 20}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{100, 10}, {200, 20}}
	if got := table.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestUnsupportedExtension(t *testing.T) {
	if err := NewTable().Save(filepath.Join(t.TempDir(), "cal.txt")); err == nil {
		t.Error("Save(.txt) succeeded")
	}
}
