package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kolapsis/vigil/internal/notify"
)

// Sink is one client's side of a live stream: it accepts a sequence of
// serialized messages until the transport closes. Keeping it an interface
// lets the same delivery loop drive SSE responses, WebSocket connections and
// in-process test sinks.
type Sink interface {
	// Send writes one stream message to the client.
	Send(data []byte) error
	// Keepalive writes a lightweight heartbeat so intermediaries do not
	// time the connection out during idle periods.
	Keepalive() error
}

// streamMessage is the wire envelope for every stream transport.
type streamMessage struct {
	Type string               `json:"type"` // "connected" or "notification"
	Data *notify.Announcement `json:"data,omitempty"`
}

// streamTo runs one connection's Opening → Streaming → Closed lifecycle:
// subscribe, acknowledge, then relay announcements until the context is
// cancelled, a write fails, or the broker shuts down. The deferred
// unsubscribe guarantees no subscription outlives its connection, whatever
// path ends the loop.
func (s *Server) streamTo(ctx context.Context, sink Sink) {
	id, ch := s.broker.Subscribe()
	defer s.broker.Unsubscribe(id)

	hello, _ := json.Marshal(streamMessage{Type: "connected"})
	if err := sink.Send(hello); err != nil {
		return
	}

	slog.Debug("stream opened", "subscription_id", id)
	defer slog.Debug("stream closed", "subscription_id", id)

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-ch:
			if !ok {
				// Broker closed on shutdown.
				return
			}
			msg, err := json.Marshal(streamMessage{Type: "notification", Data: &a})
			if err != nil {
				slog.Warn("marshaling announcement", "id", a.ID, "error", err)
				continue
			}
			if err := sink.Send(msg); err != nil {
				// Client gone; routine cleanup, not a system error.
				return
			}
		case <-ticker.C:
			if err := sink.Keepalive(); err != nil {
				return
			}
		}
	}
}

// sseSink writes Server-Sent Events frames.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Keepalive() error {
	// SSE comment line: ignored by EventSource, enough to keep proxies happy.
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleStream is the Server-Sent Events endpoint. The connection lives
// until the browser navigates away; the server never hangs up first except
// on shutdown.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.streamTo(r.Context(), &sseSink{w: w, flusher: flusher})
}
