package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aristath/butler/internal/events"
)

const (
	eventBuffer  = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

type eventEnvelope struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
	Data   any    `json:"data"`
}

type failedData struct {
	ID        string        `json:"id"`
	Error     string        `json:"error"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func newEnvelope(ev events.Event) eventEnvelope {
	var data any = ev
	if f, ok := ev.(events.TaskFailedEvent); ok {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		data = failedData{ID: f.ID, Error: msg, Duration: f.Duration, Timestamp: f.Timestamp}
	}
	return eventEnvelope{Type: ev.EventType(), TaskID: ev.TaskID(), Data: data}
}

// handleEvents streams every bus event to a websocket client until either
// side goes away. Slow clients lose events rather than stall the bus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		respondError(w, http.StatusNotImplemented, "events_disabled", "event stream is not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.bus.SubscribeAll(eventBuffer)
	defer s.bus.Unsubscribe(ch)

	// Reads only service control frames; any error ends the stream.
	readDone := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readDone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bus closed"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(newEnvelope(ev)); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}
