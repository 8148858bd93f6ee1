package adapter

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albenik/bcd"
	"github.com/avast/retry-go"
	"github.com/roffe/htcontrol"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

const slcanMaxID = 0x7FF

var slcanBitrates = []struct {
	kbit float64
	cmd  string
}{
	{10, "S0"},
	{20, "S1"},
	{50, "S2"},
	{100, "S3"},
	{125, "S4"},
	{250, "S5"},
	{500, "S6"},
	{750, "S7"},
	{1000, "S8"},
}

type SLCan struct {
	BaseAdapter
	port      serial.Port
	mu        sync.Mutex
	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func init() {
	if err := htcontrol.RegisterTransport(&htcontrol.TransportInfo{
		Name:               "SLCan",
		Description:        "Canable/Lawicel compatible serial line CAN adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

func NewSLCan(cfg *htcontrol.TransportConfig) (htcontrol.Transport, error) {
	if cfg.Port == "" {
		return nil, errors.New("SLCan requires a serial port")
	}
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = 115200
	}
	return &SLCan{
		BaseAdapter: NewBaseAdapter("SLCan", cfg),
	}, nil
}

// Connect opens the port, sets the bitrate and opens the CAN channel. A
// bitrate the adapter cannot do is replaced by the nearest one and reported
// as StatusCaution.
func (sl *SLCan) Connect(ctx context.Context) (htcontrol.StatusCode, error) {
	if sl.connected.Load() {
		return htcontrol.StatusOK, nil
	}
	mode := &serial.Mode{
		BaudRate: sl.cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	var p serial.Port
	err := retry.Do(func() error {
		var err error
		p, err = serial.Open(sl.cfg.Port, mode)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			sl.message(fmt.Sprintf("retry #%d: %v", n, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return htcontrol.StatusHardwareNotFound, fmt.Errorf("failed to open com port %q: %w", sl.cfg.Port, err)
	}
	if err := p.SetReadTimeout(1 * time.Millisecond); err != nil {
		p.Close()
		return htcontrol.StatusHardwareNotFound, err
	}
	p.ResetOutputBuffer()
	p.ResetInputBuffer()

	// the channel may still be open from a previous run
	p.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	p.ResetInputBuffer()

	err = retry.Do(func() error {
		v, err := queryVersion(ctx, p)
		if err != nil {
			return err
		}
		sl.message(fmt.Sprintf("H/W version %d.%d", v/100, v%100))
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// not every firmware answers V, the channel may still work
		sl.message(fmt.Sprintf("no version reply: %v", err))
	}

	cmd, actual, exact := bitrateCommand(sl.cfg.Bitrate)
	if _, err := p.Write([]byte(cmd + "\r")); err != nil {
		p.Close()
		return htcontrol.StatusBusError, fmt.Errorf("failed to set bitrate: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := p.Write([]byte("O\r")); err != nil {
		p.Close()
		return htcontrol.StatusBusError, fmt.Errorf("failed to open channel: %w", err)
	}

	sl.port = p
	rctx, cancel := context.WithCancel(context.Background())
	sl.cancel = cancel
	sl.connected.Store(true)
	sl.wg.Add(1)
	go sl.recvManager(rctx)

	if !exact {
		sl.message(fmt.Sprintf("bitrate %g kbit/s not supported, using %g kbit/s", sl.cfg.Bitrate, actual))
		return htcontrol.StatusCaution, nil
	}
	return htcontrol.StatusOK, nil
}

func (sl *SLCan) Disconnect() error {
	if !sl.connected.Swap(false) {
		return nil
	}
	sl.BaseAdapter.Close()
	sl.cancel()
	sl.wg.Wait()
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.port.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	return sl.port.Close()
}

func (sl *SLCan) Write(f htcontrol.Frame) htcontrol.StatusCode {
	if !sl.connected.Load() {
		return htcontrol.StatusNotConnected
	}
	line, err := encodeFrame(f)
	if err != nil {
		sl.message(err.Error())
		return htcontrol.StatusIllegalParameter
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if _, err := sl.port.Write(line); err != nil {
		sl.message(fmt.Sprintf("failed to write to com port: %q, %v", line, err))
		return htcontrol.StatusWriteFailed
	}
	if sl.cfg.Debug {
		sl.message(">> " + string(bytes.TrimRight(line, "\r")))
	}
	return htcontrol.StatusOK
}

func (sl *SLCan) recvManager(ctx context.Context) {
	defer sl.wg.Done()
	buff := bytes.NewBuffer(nil)
	readBuffer := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := sl.port.Read(readBuffer)
		if err != nil {
			if !sl.Closed() {
				sl.SetError(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}
		sl.parse(buff, readBuffer[:n])
	}
}

func (sl *SLCan) parse(buff *bytes.Buffer, data []byte) {
	for _, b := range data {
		switch b {
		case 0x07: // bell, last command was rejected
			sl.message("adapter rejected the last command")
			buff.Reset()
			continue
		case '\r':
		default:
			buff.WriteByte(b)
			continue
		}
		if buff.Len() == 0 {
			continue
		}
		line := buff.Bytes()
		switch line[0] {
		case 't':
			if sl.cfg.Debug {
				sl.message("<< " + buff.String())
			}
			f, err := decodeFrame(line)
			if err != nil {
				sl.message(fmt.Sprintf("failed to decode frame %q: %v", line, err))
				break
			}
			sl.Deliver(f)
		case 'T', 'r', 'R':
			// extended and remote frames are not used on this bus
		case 'z', 'Z':
			// transmit ack
		case 'F':
			if err := decodeStatus(line); err != nil {
				sl.message(fmt.Sprintf("CAN status error: %v", err))
			}
		case 'V':
			if v, err := parseVersion(line); err == nil {
				sl.message(fmt.Sprintf("H/W version %d.%d", v/100, v%100))
			}
		default:
			sl.message("Unknown>> " + buff.String())
		}
		buff.Reset()
	}
}

// bitrateCommand returns the Sn command for kbit, or for the nearest rate the
// adapter supports when it has no exact match.
func bitrateCommand(kbit float64) (cmd string, actual float64, exact bool) {
	best := 0
	for i, r := range slcanBitrates {
		if r.kbit == kbit {
			return r.cmd, r.kbit, true
		}
		if math.Abs(r.kbit-kbit) < math.Abs(slcanBitrates[best].kbit-kbit) {
			best = i
		}
	}
	return slcanBitrates[best].cmd, slcanBitrates[best].kbit, false
}

// encodeFrame renders f as a standard frame line: t, 3 hex id digits, dlc, data, CR
func encodeFrame(f htcontrol.Frame) ([]byte, error) {
	if f.Identifier > slcanMaxID {
		return nil, fmt.Errorf("identifier 0x%X does not fit a standard frame", f.Identifier)
	}
	if f.Length > htcontrol.MaxDataLength {
		return nil, fmt.Errorf("invalid frame length %d", f.Length)
	}
	out := make([]byte, 0, 5+2*htcontrol.MaxDataLength+1)
	out = append(out, 't')
	out = append(out, fmt.Sprintf("%03X", f.Identifier)...)
	out = strconv.AppendInt(out, int64(f.Length), 10)
	out = append(out, bytes.ToUpper([]byte(hex.EncodeToString(f.Payload())))...)
	return append(out, '\r'), nil
}

// decodeFrame parses a t line without the trailing CR. A timestamp after the
// data is ignored.
func decodeFrame(line []byte) (htcontrol.Frame, error) {
	if len(line) < 5 {
		return htcontrol.Frame{}, errors.New("line too short")
	}
	id, err := strconv.ParseUint(string(line[1:4]), 16, 16)
	if err != nil {
		return htcontrol.Frame{}, fmt.Errorf("failed to decode identifier: %w", err)
	}
	dlc := int(line[4] - '0')
	if dlc < 0 || dlc > htcontrol.MaxDataLength {
		return htcontrol.Frame{}, fmt.Errorf("invalid dlc %q", line[4])
	}
	if len(line) < 5+2*dlc {
		return htcontrol.Frame{}, fmt.Errorf("want %d data bytes, got %d hex digits", dlc, len(line)-5)
	}
	data, err := hex.DecodeString(string(line[5 : 5+2*dlc]))
	if err != nil {
		return htcontrol.Frame{}, fmt.Errorf("failed to decode frame body: %w", err)
	}
	return htcontrol.NewFrame(uint16(id), data), nil
}

var statusFlags = []string{
	"CAN receive FIFO queue full",
	"CAN transmit FIFO queue full",
	"error warning (EI)",
	"data overrun (DOI)",
	"",
	"error passive (EPI)",
	"arbitration lost (ALI)",
	"bus error (BEI)",
}

// decodeStatus parses an F reply, the status byte is a bit field
func decodeStatus(line []byte) error {
	if len(line) < 3 {
		return errors.New("short status reply")
	}
	b, err := hex.DecodeString(string(line[1:3]))
	if err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	var errs []error
	for bit, msg := range statusFlags {
		if msg != "" && b[0]&(1<<bit) != 0 {
			errs = append(errs, errors.New(msg))
		}
	}
	return errors.Join(errs...)
}

// parseVersion decodes a Vhhss reply, two BCD bytes, into hhss
func parseVersion(line []byte) (uint16, error) {
	if len(line) < 5 || line[0] != 'V' {
		return 0, fmt.Errorf("invalid version reply %q", line)
	}
	b, err := hex.DecodeString(string(line[1:5]))
	if err != nil {
		return 0, fmt.Errorf("invalid version reply %q: %w", line, err)
	}
	return bcd.ToUint16(b), nil
}

func queryVersion(ctx context.Context, p serial.Port) (uint16, error) {
	var version uint16
	errg, gctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		start := time.Now()
		readbuff := make([]byte, 16)
		buff := bytes.NewBuffer(nil)
		for time.Since(start) < 300*time.Millisecond {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := p.Read(readbuff)
			if err != nil {
				return err
			}
			for _, b := range readbuff[:n] {
				if b != '\r' {
					buff.WriteByte(b)
					continue
				}
				if line := buff.Bytes(); len(line) > 0 && line[0] == 'V' {
					v, err := parseVersion(line)
					if err != nil {
						return err
					}
					version = v
					return nil
				}
				buff.Reset()
			}
		}
		return errors.New("timeout waiting for version reply")
	})
	if _, err := p.Write([]byte("V\r")); err != nil {
		return 0, err
	}
	if err := errg.Wait(); err != nil {
		return 0, err
	}
	return version, nil
}
