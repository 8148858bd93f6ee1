// Package stream serves session events to WebSocket clients as JSON.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/session"
)

// Hub fans published events out to every connected client. A client that
// falls behind misses messages instead of blocking the others.
type Hub struct {
	upgrader websocket.Upgrader

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Message is the JSON form of a session event
type Message struct {
	Type  string `json:"type"`
	Stamp int64  `json:"stamp"` // Unix ms

	Address    *int     `json:"address,omitempty"`
	Value      *uint16  `json:"value,omitempty"`
	Raw        *uint32  `json:"raw,omitempty"`
	Physical   *float64 `json:"physical,omitempty"`
	Step       *int     `json:"step,omitempty"`
	Index      *int     `json:"index,omitempty"`
	Percent    *int     `json:"percent,omitempty"`
	Entries    *int     `json:"entries,omitempty"`
	Candidates []int    `json:"candidates,omitempty"`
	Selected   *int     `json:"selected,omitempty"`
	Level      string   `json:"level,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func NewMessage(ev session.Event, stamp time.Time) Message {
	m := Message{Type: ev.Kind(), Stamp: stamp.UnixMilli()}
	switch e := ev.(type) {
	case session.Notice:
		m.Level = e.Type.String()
		m.Message = e.Details
	case session.PressureReading:
		m.Address = ptr(int(e.Address))
		m.Value = ptr(e.Value)
	case session.RawSample:
		m.Address = ptr(int(e.Address))
		m.Raw = ptr(e.Raw)
		switch {
		case errors.Is(e.Err, calibration.ErrOutOfRange):
			m.Error = "Error"
		case e.Err != nil:
			m.Error = e.Err.Error()
		default:
			m.Physical = ptr(e.Physical)
		}
	case session.ScanProgress:
		m.Step = ptr(e.Step)
		m.Percent = ptr(e.Percent)
	case session.ScanComplete:
		m.Candidates = make([]int, len(e.Candidates))
		for i, a := range e.Candidates {
			m.Candidates[i] = int(a)
		}
		m.Selected = ptr(int(e.Selected))
	case session.WriteProgress:
		m.Index = ptr(e.Index)
		m.Percent = ptr(e.Percent)
	case session.WriteComplete:
		m.Entries = ptr(e.Entries)
	case session.WriteFailed:
		m.Index = ptr(e.Index)
		m.Percent = ptr(e.Percent)
		if e.Err != nil {
			m.Error = e.Err.Error()
		}
	case session.LoopStopped:
		if e.Err != nil {
			m.Error = e.Err.Error()
		}
	}
	return m
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.clientsMu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	log.Printf("[ws] client connected (%d total)", n)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// reads only to notice the close
	go func() {
		defer func() {
			h.clientsMu.Lock()
			delete(h.clients, client)
			n := len(h.clients)
			h.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Publish(ev session.Event) {
	data, err := json.Marshal(NewMessage(ev, time.Now()))
	if err != nil {
		log.Printf("[ws] encode %s: %v", ev.Kind(), err)
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ListenAndServe serves the hub on /ws until ctx is done
func ListenAndServe(ctx context.Context, addr string, h *Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()
	log.Printf("[ws] listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
