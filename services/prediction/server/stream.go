package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"stakeoracle/core/events"
)

const wsWriteTimeout = 10 * time.Second

type streamFilter struct {
	loan string
	typ  string
}

func (f streamFilter) match(evt events.Event) bool {
	if f.typ != "" && evt.EventType() != f.typ {
		return false
	}
	if f.loan == "" {
		return true
	}
	rendered := events.Render(evt)
	if rendered == nil {
		return false
	}
	return strings.EqualFold(rendered.Attributes["loan"], f.loan)
}

type streamPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// StreamEvents pushes committed events over a websocket. Optional ?loan= and
// ?type= query parameters narrow the stream.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	filter := streamFilter{typ: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("loan"); raw != "" {
		loan, err := parseAddress(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.loan = hexAddress(loan)
	}
	feed := s.ledger.Events()
	if feed == nil {
		http.Error(w, "event feed unavailable", http.StatusServiceUnavailable)
		return
	}
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Clients never send frames; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	updates, cancel := feed.Subscribe(s.cfg.StreamBuffer)
	defer cancel()

	if err := s.streamEvents(ctx, conn, updates, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream aborted", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan events.Event, filter streamFilter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if !filter.match(evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt events.Event) error {
	payload := streamPayload{Type: evt.EventType()}
	if rendered := events.Render(evt); rendered != nil {
		payload.Attributes = rendered.Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
