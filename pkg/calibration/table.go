// Package calibration holds the operator edited AD to physical value table
// and the piecewise-linear lookup used to convert raw transducer samples.
package calibration

import (
	"errors"
	"sort"
	"sync"
)

// Step is the raw and physical increment used by Add when extending a table
const Step = 10

var ErrOutOfRange = errors.New("raw value outside calibration table")

type Entry struct {
	Raw      int32 `json:"adValue" yaml:"adValue" cbor:"adValue"`
	Physical int32 `json:"rangeValue" yaml:"rangeValue" cbor:"rangeValue"`
}

// Table is safe for concurrent use. Lookups expect a sorted table.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewTable(entries ...Entry) *Table {
	t := &Table{}
	t.entries = append(t.entries, entries...)
	return t
}

// Add appends a zero entry to an empty table, otherwise the last entry
// shifted by Step on both axes.
func (t *Table) Add() Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var e Entry
	if n := len(t.entries); n > 0 {
		last := t.entries[n-1]
		e = Entry{Raw: last.Raw + Step, Physical: last.Physical + Step}
	}
	t.entries = append(t.entries, e)
	return e
}

func (t *Table) Append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// RemoveAt is a no-op returning false when i is out of range
func (t *Table) RemoveAt(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.entries) {
		return false
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return true
}

// Sort orders entries by raw value, keeping the order of equal raws
func (t *Table) Sort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Raw < t.entries[j].Raw
	})
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) At(i int) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[i], true
}

func (t *Table) Set(i int, e Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.entries) {
		return false
	}
	t.entries[i] = e
	return true
}

// SetRaw replaces the raw value of row i, used when acquiring a live sample
func (t *Table) SetRaw(i int, raw int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.entries) {
		return false
	}
	t.entries[i].Raw = raw
	return true
}

// Entries returns a copy of the table rows
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Table) Replace(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries[:0:0], entries...)
}

// Locate returns the index of the first entry with Raw >= raw and the index
// of the last entry with Raw <= raw, -1 where no such entry exists.
func (t *Table) Locate(raw int64) (ge, le int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return locate(t.entries, raw)
}

func locate(entries []Entry, raw int64) (ge, le int) {
	n := len(entries)
	ge = sort.Search(n, func(i int) bool { return int64(entries[i].Raw) >= raw })
	if ge == n {
		ge = -1
	}
	le = sort.Search(n, func(i int) bool { return int64(entries[i].Raw) > raw }) - 1
	return ge, le
}

// Interpolate converts a raw sample to its physical value. Exact matches
// return the stored value, anything not bracketed on both sides is
// ErrOutOfRange.
func (t *Table) Interpolate(raw int64) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ge, le := locate(t.entries, raw)
	if ge != -1 && int64(t.entries[ge].Raw) == raw {
		return float64(t.entries[ge].Physical), nil
	}
	if ge == -1 || le == -1 {
		return 0, ErrOutOfRange
	}
	x1, y1 := float64(t.entries[le].Raw), float64(t.entries[le].Physical)
	x2, y2 := float64(t.entries[ge].Raw), float64(t.entries[ge].Physical)
	slope := (y2 - y1) / (x2 - x1)
	return slope*float64(raw) + (y1 - slope*x1), nil
}
