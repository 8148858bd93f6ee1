package htcontrol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// MaxDataLength is the payload size of a classic CAN frame
const MaxDataLength = 8

// Frame is a standard (11-bit) CAN frame. Frames are values and are sent as-is.
type Frame struct {
	Identifier uint16
	Data       [MaxDataLength]byte
	Length     uint8
}

// NewFrame creates a Frame copying at most 8 bytes of data
func NewFrame(identifier uint16, data []byte) Frame {
	f := Frame{Identifier: identifier}
	f.Length = uint8(copy(f.Data[:], data))
	return f
}

// Payload returns a copy of the used part of the data array
func (f Frame) Payload() []byte {
	n := min(int(f.Length), MaxDataLength)
	out := make([]byte, n)
	copy(out, f.Data[:n])
	return out
}

// DLC returns the data length code
func (f Frame) DLC() int {
	return min(int(f.Length), MaxDataLength)
}

var (
	yellow = color.New(color.FgHiBlue).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

func (f Frame) String() string {
	id, hexView, binView, ascii := f.columns()
	return id + " || " + strconv.Itoa(f.DLC()) + " || " + hexView + " || " + binView + " || " + ascii
}

func (f Frame) ColorString() string {
	id, hexView, binView, ascii := f.columns()
	return green(id) + " || " + strconv.Itoa(f.DLC()) + " || " + hexView + " || " + red(binView) + " || " + yellow(ascii)
}

func (f Frame) columns() (id, hexView, binView, ascii string) {
	data := f.Data[:f.DLC()]
	var hb, bb strings.Builder
	for i, b := range data {
		hb.WriteString(fmt.Sprintf("%02X", b))
		bb.WriteString(fmt.Sprintf("%08b", b))
		if i != len(data)-1 {
			hb.WriteString(" ")
			bb.WriteString(" ")
		}
	}
	return fmt.Sprintf("0x%03X", f.Identifier),
		fmt.Sprintf("%-23s", hb.String()),
		fmt.Sprintf("%-71s", bb.String()),
		onlyPrintable(data)
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
