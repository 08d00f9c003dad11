package report_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamCounters sends today's counters as one snapshot event, then one
// counter event per update until the client disconnects.
func (h *Handler) StreamCounters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	snapshot, updates, err := h.Service.WatchCounters(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}

	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.sendEvent(w, rc, "snapshot", snapshot); err != nil {
		h.Logger.Debug("SSE", fmt.Sprintf("Counter stream closed before snapshot: %v", err))
		return
	}
	h.Logger.Info("SSE", fmt.Sprintf("Counter stream opened with %d counters", len(snapshot)))

	for {
		select {
		case count, ok := <-updates:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, "counter", count); err != nil {
				h.Logger.Debug("SSE", fmt.Sprintf("Counter stream write failed: %v", err))
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Counter stream client disconnected")
			return
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
