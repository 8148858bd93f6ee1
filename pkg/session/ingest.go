package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/protocol"
)

// ingest drains the transport until ctx is cancelled or a read fails. A
// failing read is published once as LoopStopped, kept for Err, and the loop
// is not restarted.
func (s *Session) ingest(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.stopped(fmt.Errorf("ingest: %v", r))
		}
	}()

	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()
	for {
		frames, err := s.t.ReadAvailable()
		if err != nil {
			s.stopped(fmt.Errorf("read %s: %w", s.t.Name(), err))
			return
		}
		for _, f := range frames {
			s.handleFrame(f)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) handleFrame(f htcontrol.Frame) {
	if s.opts.debug {
		log.Println("<< " + f.ColorString())
	}
	if !protocol.IsUpstreamReport(f.Identifier) {
		return
	}
	src := protocol.StripAddressBits(f.Identifier)
	s.scanner.Observe(src)

	s.mu.Lock()
	selected, live := s.selected, s.live
	s.mu.Unlock()
	if !selected.Valid() || src != selected {
		return
	}

	if live && f.Length == 2 {
		if v, ok := protocol.DecodePressure(f); ok {
			s.publish(PressureReading{Address: src, Value: v})
		}
		return
	}

	raw, ok := protocol.DecodeRawSample(f)
	if !ok {
		return
	}
	s.mu.Lock()
	s.raw, s.hasRaw = raw, true
	s.mu.Unlock()

	physical, err := s.table.Interpolate(int64(raw))
	s.publish(RawSample{Address: src, Raw: raw, Physical: physical, Err: err})
}
