package callapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/linnemanlabs/rapid/internal/bus"
)

const (
	sseHeartbeat   = 25 * time.Second
	sseStatsWindow = 24 * time.Hour
)

// handleEvents serves GET /api/v1/events: a server-sent event stream of bus
// traffic. A stats_update is sent on connect so dashboards paint without
// waiting for the next call.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		a.writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := a.hub.Subscribe()
	defer unsubscribe()

	if stats, err := a.store.Analytics(r.Context(), sseStatsWindow); err == nil {
		writeSSE(w, bus.TopicStatsUpdate, stats)
	} else {
		a.logger.Warn(r.Context(), "initial stats snapshot failed", "error", err)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev.Topic, ev.Payload)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
