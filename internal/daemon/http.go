package daemon

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/ingest"
	"github.com/mailnotify/mailnotify/internal/metrics"
	"github.com/mailnotify/mailnotify/internal/notify"
	"github.com/mailnotify/mailnotify/internal/remote"
)

// Routes returns the daemon's HTTP surface.
func (d *Daemon) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/events", ingest.HTTPHandler(d.HandleEvent))
	mux.HandleFunc("/test", d.handleTest)
	mux.Handle("/remote", remote.RequireBearer(d.cfg.RemoteJWTSecret, d.remote.Handler()))
	mux.Handle("/metrics", metrics.PromHandler())
	mux.Handle("/stats", metrics.JSONHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type testResponse struct {
	Channel    config.ChannelName `json:"channel"`
	Event      string             `json:"event"`
	Dispatched bool               `json:"dispatched"`
}

// handleTest sends a synthetic notification to one channel:
// POST /test?channel=slack&event=failed
func (d *Daemon) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()
	channel := config.ChannelName(q.Get("channel"))
	if !knownChannel(channel) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown channel " + string(channel)})
		return
	}
	kind := notify.KindSent
	if s := q.Get("event"); s != "" {
		k, err := notify.ParseKind(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		kind = k
	}
	dispatched, err := d.manager.SendTest(r.Context(), channel, kind)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, testResponse{Channel: channel, Event: kind.Slug(), Dispatched: dispatched})
}

func knownChannel(name config.ChannelName) bool {
	for _, c := range config.Channels {
		if c == name {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
