package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
)

const maxEventBytes = 1 << 20

// HTTPHandler accepts POSTed JSON events. It answers 400 for undecodable
// events and 503 when the option store is unavailable.
func HTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			metrics.IncIngestError("http")
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		ev, err := Decode(b)
		if err != nil {
			metrics.IncIngestError("http")
			logging.Get().Warn().Err(err).Str("source", "http").Msg("rejecting mail event")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := h(r.Context(), ev); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, config.ErrStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "event": ev.Kind.String()})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
