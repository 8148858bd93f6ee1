// Package adapter holds the CAN interfaces a session can run on. Each
// transport registers itself with htcontrol.RegisterTransport in init.
package adapter

import (
	"errors"
	"log"
	"sync"

	"github.com/roffe/htcontrol"
)

var ErrTransportClosed = errors.New("transport closed")

// BaseAdapter buffers received frames between a transport's receive goroutine
// and ReadAvailable. A fatal error set with SetError is returned by the next
// ReadAvailable after the buffered frames.
type BaseAdapter struct {
	name  string
	cfg   *htcontrol.TransportConfig
	recv  chan htcontrol.Frame
	err   chan error
	close chan struct{}
	once  sync.Once
}

func NewBaseAdapter(name string, cfg *htcontrol.TransportConfig) BaseAdapter {
	return BaseAdapter{
		name:  name,
		cfg:   cfg,
		recv:  make(chan htcontrol.Frame, 1024),
		err:   make(chan error, 10),
		close: make(chan struct{}),
	}
}

func (base *BaseAdapter) Name() string {
	return base.name
}

// ReadAvailable returns every frame received since the last call without blocking
func (base *BaseAdapter) ReadAvailable() ([]htcontrol.Frame, error) {
	var out []htcontrol.Frame
	for {
		select {
		case f := <-base.recv:
			out = append(out, f)
		default:
			if len(out) > 0 {
				return out, nil
			}
			select {
			case err := <-base.err:
				return nil, err
			default:
			}
			return nil, nil
		}
	}
}

// Deliver queues a received frame, it is dropped when nobody reads
func (base *BaseAdapter) Deliver(f htcontrol.Frame) {
	select {
	case base.recv <- f:
	default:
		base.message(htcontrol.ErrDroppedFrame.Error())
	}
}

func (base *BaseAdapter) Close() {
	base.once.Do(func() {
		close(base.close)
	})
}

func (base *BaseAdapter) Closed() bool {
	select {
	case <-base.close:
		return true
	default:
		return false
	}
}

func (base *BaseAdapter) SetError(err error) {
	select {
	case base.err <- err:
	default:
		log.Println(htcontrol.ErrErrorChannelFull)
	}
}

func (base *BaseAdapter) message(msg string) {
	if base.cfg != nil && base.cfg.OnMessage != nil {
		base.cfg.OnMessage(msg)
		return
	}
	log.Println(msg)
}
