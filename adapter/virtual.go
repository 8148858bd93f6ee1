package adapter

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
)

const (
	virtualTick            = 5 * time.Millisecond
	DefaultVirtualInterval = 100 * time.Millisecond
	DefaultVirtualAddress  = protocol.Address(1)
	DefaultVirtualRaw      = 1500
)

// Virtual simulates transducers on a loopback bus. Devices answer the
// command set, report on their interval and apply an uploaded table once it
// is committed.
type Virtual struct {
	BaseAdapter

	mu        sync.Mutex
	devices   map[protocol.Address]*VirtualDevice
	writes    int
	failWrite map[int]htcontrol.StatusCode
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// VirtualDevice is the state of one simulated transducer
type VirtualDevice struct {
	Address  protocol.Address
	Mode     protocol.Mode
	Interval time.Duration
	Raw      uint32
	Saved    bool
	// Table is the committed calibration, Pending the rows received since
	Table   []calibration.Entry
	Pending map[uint8]calibration.Entry

	last time.Time
}

func init() {
	if err := htcontrol.RegisterTransport(&htcontrol.TransportInfo{
		Name:        "Virtual",
		Description: "Simulated transducer bus",
		New:         NewVirtualTransport,
	}); err != nil {
		panic(err)
	}
}

func NewVirtualTransport(cfg *htcontrol.TransportConfig) (htcontrol.Transport, error) {
	v := NewVirtual(cfg)
	v.AddDevice(DefaultVirtualAddress, DefaultVirtualRaw)
	return v, nil
}

// NewVirtual returns a bus with no devices on it
func NewVirtual(cfg *htcontrol.TransportConfig) *Virtual {
	return &Virtual{
		BaseAdapter: NewBaseAdapter("Virtual", cfg),
		devices:     make(map[protocol.Address]*VirtualDevice),
		failWrite:   make(map[int]htcontrol.StatusCode),
	}
}

func (v *Virtual) AddDevice(a protocol.Address, raw uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.devices[a] = &VirtualDevice{
		Address:  a,
		Mode:     protocol.ModePhysical,
		Interval: DefaultVirtualInterval,
		Raw:      raw,
		Pending:  make(map[uint8]calibration.Entry),
	}
}

// SetRaw changes the AD value device a reports
func (v *Virtual) SetRaw(a protocol.Address, raw uint32) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.devices[a]
	if ok {
		d.Raw = raw
	}
	return ok
}

// FailWrite makes the n'th Write, counted from zero, return code
func (v *Virtual) FailWrite(n int, code htcontrol.StatusCode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failWrite[n] = code
}

// Device returns a copy of the state of device a
func (v *Virtual) Device(a protocol.Address) (VirtualDevice, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.devices[a]
	if !ok {
		return VirtualDevice{}, false
	}
	out := *d
	out.Table = append([]calibration.Entry(nil), d.Table...)
	out.Pending = make(map[uint8]calibration.Entry, len(d.Pending))
	for k, e := range d.Pending {
		out.Pending[k] = e
	}
	return out, true
}

func (v *Virtual) Connect(ctx context.Context) (htcontrol.StatusCode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		return htcontrol.StatusOK, nil
	}
	rctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.connected = true
	v.wg.Add(1)
	go v.reportManager(rctx)
	if v.cfg != nil && v.cfg.Bitrate != 0 {
		if _, _, exact := bitrateCommand(v.cfg.Bitrate); !exact {
			return htcontrol.StatusCaution, nil
		}
	}
	return htcontrol.StatusOK, nil
}

func (v *Virtual) Disconnect() error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return nil
	}
	v.connected = false
	v.mu.Unlock()
	v.BaseAdapter.Close()
	v.cancel()
	v.wg.Wait()
	return nil
}

func (v *Virtual) Write(f htcontrol.Frame) htcontrol.StatusCode {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return htcontrol.StatusNotConnected
	}
	n := v.writes
	v.writes++
	if code, ok := v.failWrite[n]; ok {
		return code
	}
	if f.Identifier&protocol.UpstreamMarker != protocol.CommandMarker || f.Length < 1 {
		return htcontrol.StatusOK
	}
	target := protocol.StripAddressBits(f.Identifier)
	for _, d := range v.targets(target) {
		v.handle(d, f)
	}
	return htcontrol.StatusOK
}

func (v *Virtual) targets(a protocol.Address) []*VirtualDevice {
	if a == protocol.Broadcast {
		out := make([]*VirtualDevice, 0, len(v.devices))
		for _, d := range v.devices {
			out = append(out, d)
		}
		return out
	}
	if d, ok := v.devices[a]; ok {
		return []*VirtualDevice{d}
	}
	return nil
}

func (v *Virtual) handle(d *VirtualDevice, f htcontrol.Frame) {
	data := f.Data
	switch protocol.Command(data[0]) {
	case protocol.SetID:
		newID := protocol.Address(data[1])
		if !newID.Valid() {
			return
		}
		if _, taken := v.devices[newID]; taken {
			return
		}
		delete(v.devices, d.Address)
		d.Address = newID
		v.devices[newID] = d
	case protocol.SetInterval:
		if ms := binary.LittleEndian.Uint16(data[1:3]); ms > 0 {
			d.Interval = time.Duration(ms) * time.Millisecond
		}
	case protocol.SaveToFlash:
		d.Saved = true
	case protocol.FactoryReset:
		d.Mode = protocol.ModePhysical
		d.Interval = DefaultVirtualInterval
		d.Table = nil
		d.Pending = make(map[uint8]calibration.Entry)
		d.Saved = false
	case protocol.ModeSwitch:
		switch m := protocol.Mode(data[1]); m {
		case protocol.ModePhysical, protocol.ModeRaw:
			d.Mode = m
		case protocol.ModeCommit:
			d.commit()
		}
	case protocol.CalibrationEntryWrite:
		d.Pending[data[1]] = calibration.Entry{
			Raw:      int32(binary.LittleEndian.Uint32(data[2:6])),
			Physical: int32(binary.LittleEndian.Uint16(data[6:8])),
		}
	default:
		v.message("virtual: unknown opcode " + protocol.Command(data[0]).String())
	}
}

func (d *VirtualDevice) commit() {
	idx := make([]int, 0, len(d.Pending))
	for i := range d.Pending {
		idx = append(idx, int(i))
	}
	sort.Ints(idx)
	d.Table = d.Table[:0]
	for _, i := range idx {
		d.Table = append(d.Table, d.Pending[uint8(i)])
	}
	d.Pending = make(map[uint8]calibration.Entry)
	d.Mode = protocol.ModePhysical
}

// report renders the frame the device sends in its current mode
func (d *VirtualDevice) report() htcontrol.Frame {
	id := protocol.UpstreamMarker | uint16(d.Address)
	if d.Mode == protocol.ModeRaw {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, d.Raw)
		return htcontrol.NewFrame(id, b)
	}
	var p uint16
	if len(d.Table) > 0 {
		if v, err := calibration.NewTable(d.Table...).Interpolate(int64(d.Raw)); err == nil && v > 0 {
			p = uint16(v) & protocol.PressureMask
		}
	}
	return htcontrol.NewFrame(id, []byte{byte(p), byte(p >> 8)})
}

func (v *Virtual) reportManager(ctx context.Context) {
	defer v.wg.Done()
	ticker := time.NewTicker(virtualTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			v.mu.Lock()
			var out []htcontrol.Frame
			for _, d := range v.devices {
				if now.Sub(d.last) >= d.Interval {
					d.last = now
					out = append(out, d.report())
				}
			}
			v.mu.Unlock()
			for _, f := range out {
				v.Deliver(f)
			}
		}
	}
}
