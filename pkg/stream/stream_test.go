package stream

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
)

func TestNewMessage(t *testing.T) {
	stamp := time.UnixMilli(1700000000000)
	tests := []struct {
		name  string
		event session.Event
		want  string
	}{
		{
			name:  "sample",
			event: session.RawSample{Address: 12, Raw: 1500, Physical: 50},
			want:  `{"type":"sample","stamp":1700000000000,"address":12,"raw":1500,"physical":50}`,
		},
		{
			name:  "sample out of range",
			event: session.RawSample{Address: 12, Raw: 10, Err: calibration.ErrOutOfRange},
			want:  `{"type":"sample","stamp":1700000000000,"address":12,"raw":10,"error":"Error"}`,
		},
		{
			name:  "pressure",
			event: session.PressureReading{Address: 3, Value: 0x1234},
			want:  `{"type":"pressure","stamp":1700000000000,"address":3,"value":4660}`,
		},
		{
			name:  "scan complete",
			event: session.ScanComplete{Candidates: []protocol.Address{20, 7}, Selected: 20},
			want:  `{"type":"scan_complete","stamp":1700000000000,"candidates":[20,7],"selected":20}`,
		},
		{
			name:  "scan without devices",
			event: session.ScanComplete{},
			want:  `{"type":"scan_complete","stamp":1700000000000,"selected":0}`,
		},
		{
			name:  "write failed",
			event: session.WriteFailed{Index: 1, Percent: 33, Err: errors.New("bus error")},
			want:  `{"type":"write_failed","stamp":1700000000000,"index":1,"percent":33,"error":"bus error"}`,
		},
		{
			name:  "write progress at zero",
			event: session.WriteProgress{Index: 0, Percent: 0},
			want:  `{"type":"write_progress","stamp":1700000000000,"index":0,"percent":0}`,
		},
		{
			name:  "notice",
			event: session.Notice{Event: htcontrol.Event{Type: htcontrol.EventTypeWarning, Details: "slow"}},
			want:  `{"type":"notice","stamp":1700000000000,"level":"WARN","message":"slow"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(NewMessage(tt.event, stamp))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestHubDelivers(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	h.Publish(session.WriteComplete{Entries: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "write_complete" || m.Entries == nil || *m.Entries != 3 {
		t.Errorf("message = %+v", m)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never removed")
		}
		time.Sleep(time.Millisecond)
	}
}
