package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hperssn/gridcheck/internal/session"
)

// StreamSessionEvents pushes the current snapshot, then the latest one after
// each change, until the client leaves or the session closes.
func StreamSessionEvents(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := manager.Get(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		write := func(s session.Snapshot) {
			data, _ := json.Marshal(sessionView{ID: e.ID, Snapshot: s})
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}

		events, cancel := e.Controller.Subscribe()
		defer cancel()

		for {
			select {
			case snap, ok := <-events:
				if !ok {
					w.Write([]byte("event: closed\ndata: {}\n\n"))
					flusher.Flush()
					return
				}
				write(snap)
				e.Controller.Touch()

			case <-r.Context().Done():
				return
			}
		}
	}
}
