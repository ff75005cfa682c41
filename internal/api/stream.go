package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/session"
)

// keepAliveInterval paces comment pings that stop proxies from closing
// an idle SSE connection.
const keepAliveInterval = 15 * time.Second

// statusPayload is the body of a "status" event.
type statusPayload struct {
	Status  lead.SessionStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// stream bridges one caller to one session over server-sent events. It
// flushes everything already buffered (one "leads" event plus the current
// status), then forwards each append and status change until the session
// is terminal, then closes. A caller disconnect only drops the
// subscription — the session runs to completion for the next subscriber.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sessionId"})
		return
	}

	snap, events, cancel, err := s.sessions.Subscribe(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Keeps nginx/Cloudflare style proxies from buffering the stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Replay what the subscriber missed, batched as one event, then the
	// current status.
	if len(snap.Leads) > 0 {
		if err := writeEvent(w, flusher, "leads", snap.Leads); err != nil {
			return
		}
	}
	if err := writeEvent(w, flusher, "status", statusPayload{Status: snap.Status, Message: snap.Error}); err != nil {
		return
	}
	if snap.Status.Terminal() {
		return
	}

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("stream client disconnected", "session_id", sessionID)
			return

		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case ev, open := <-events:
			if !open {
				// Store closed us out (terminal already delivered, or we
				// fell too far behind).
				return
			}
			if len(ev.Leads) > 0 {
				if err := writeEvent(w, flusher, "leads", ev.Leads); err != nil {
					return
				}
				continue
			}
			if err := writeEvent(w, flusher, "status", statusPayload{Status: ev.Status, Message: ev.Message}); err != nil {
				return
			}
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
