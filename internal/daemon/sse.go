package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"

	"curator/internal/logging"
)

// handleEvents streams job lifecycle events as server-sent events. Each
// subscriber gets its own bounded buffer on the hub; a slow client loses the
// oldest undelivered events rather than stalling publishers.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.daemon.hub.Subscribe()
	if sub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event bus closed")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.log().With(logging.String("remote", r.RemoteAddr))
	logger.Debug("event stream opened")
	defer func() {
		logger.Debug("event stream closed", logging.Int64("dropped", int64(sub.Dropped())))
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				logger.Warn("failed to encode event", logging.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Sequence, evt.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
