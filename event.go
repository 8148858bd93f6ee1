package htcontrol

import (
	"fmt"

	"github.com/fatih/color"
)

// EventType is the severity of an operator notice
type EventType int

const (
	EventTypeError EventType = iota
	EventTypeWarning
	EventTypeInfo
	EventTypeDebug
)

var eventTypeNames = [...]string{
	EventTypeError:   "ERROR",
	EventTypeWarning: "WARN",
	EventTypeInfo:    "INFO",
	EventTypeDebug:   "DEBUG",
}

func (et EventType) String() string {
	if et < 0 || int(et) >= len(eventTypeNames) {
		return "UNKNOWN"
	}
	return eventTypeNames[et]
}

var eventTypeColors = map[EventType]func(a ...interface{}) string{
	EventTypeError:   color.New(color.FgRed, color.Bold).SprintFunc(),
	EventTypeWarning: color.New(color.FgYellow).SprintFunc(),
	EventTypeInfo:    color.New(color.FgGreen).SprintFunc(),
	EventTypeDebug:   color.New(color.FgHiBlack).SprintFunc(),
}

// Event is an operator facing notice, raised by transports and sessions for
// conditions that do not stop the current operation (a bitrate fallback, a
// dropped frame, a status report from the bus)
type Event struct {
	Type    EventType
	Details string
}

// Notice builds an Event from a format string
func Notice(t EventType, format string, args ...interface{}) Event {
	return Event{Type: t, Details: fmt.Sprintf(format, args...)}
}

func (e Event) String() string {
	return "[" + e.Type.String() + "] " + e.Details
}

// ColorString renders the level tag in the level's terminal color
func (e Event) ColorString() string {
	paint, ok := eventTypeColors[e.Type]
	if !ok {
		return e.String()
	}
	return paint("["+e.Type.String()+"]") + " " + e.Details
}
