package htcontrol

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Transport is the raw frame capability of a CAN interface.
//
// ReadAvailable must never block; an empty result is normal. Write blocks
// until the frame is handed to the driver and returns its status.
type Transport interface {
	Name() string
	Connect(context.Context) (StatusCode, error)
	Disconnect() error
	ReadAvailable() ([]Frame, error)
	Write(Frame) StatusCode
}

type TransportInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*TransportConfig) (Transport, error)
}

func (t *TransportInfo) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v ", t.Name, t.Description, t.RequiresSerialPort)
}

type TransportConfig struct {
	Debug        bool
	Port         string
	PortBaudrate int
	// Bitrate in kbit/s
	Bitrate   float64
	OnMessage func(string)
}

var (
	transportMap = make(map[string]*TransportInfo)
	transportMu  sync.RWMutex
)

func NewTransport(name string, cfg *TransportConfig) (Transport, error) {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			_, file, no, ok := runtime.Caller(1)
			if ok {
				log.Printf("%s#%d %v\n", filepath.Base(file), no, msg)
			} else {
				log.Println(msg)
			}
		}
	}
	transportMu.RLock()
	info, found := transportMap[strings.ToLower(name)]
	transportMu.RUnlock()
	if found {
		return info.New(cfg)
	}
	return nil, fmt.Errorf("unknown transport %q", name)
}

func RegisterTransport(info *TransportInfo) error {
	transportMu.Lock()
	defer transportMu.Unlock()
	key := strings.ToLower(info.Name)
	if _, found := transportMap[key]; !found {
		transportMap[key] = info
		return nil
	}
	return fmt.Errorf("transport %s already registered", info.Name)
}

func ListTransports() []TransportInfo {
	transportMu.RLock()
	defer transportMu.RUnlock()
	var out []TransportInfo
	for _, info := range transportMap {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}
