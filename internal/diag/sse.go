package diag

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeHTTP streams hub events as Server-Sent Events. A new connection
// replaces the previous subscriber, whose stream then ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan []byte, 64)
	sub := h.Subscribe(func(e Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			return
		}
		select {
		case ch <- []byte(fmt.Sprintf("event: diagnostic\ndata: %s\n\n", payload)):
		default:
			// Buffer full; drop rather than block the producer.
		}
	})
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case msg := <-ch:
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
