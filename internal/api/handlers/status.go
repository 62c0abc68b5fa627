package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const DefaultKeepAlive = 5 * time.Second

type StatusHandler struct {
	svc       Service
	log       *slog.Logger
	keepAlive time.Duration
}

func NewStatusHandler(svc Service, keepAlive time.Duration, log *slog.Logger) *StatusHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &StatusHandler{svc: svc, log: log, keepAlive: keepAlive}
}

// Stream sends the progress events of one ingestion as Server-Sent Events.
// Heartbeat comments go out immediately and then every keep-alive interval.
// The stream ends after a terminal event or when the client goes away;
// either way the ingestion itself is unaffected.
func (h *StatusHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["youtubeId"]
	log := h.log.With("job", id)

	sub := h.svc.Subscribe(id)
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long ingestions short.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(frame string) bool {
		if _, err := fmt.Fprint(w, frame); err != nil {
			log.Debug("sse write", "err", err)
			return false
		}
		if err := rc.Flush(); err != nil {
			log.Debug("sse flush", "err", err)
			return false
		}
		return true
	}

	if !send(": heartbeat\n\n") {
		return
	}
	log.Debug("sse stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("sse client gone")
			return
		case <-ticker.C:
			if !send(": heartbeat\n\n") {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error("encode progress event", "err", err)
				continue
			}
			if !send("data: " + string(data) + "\n\n") {
				return
			}
			if ev.Stage.Terminal() {
				log.Debug("sse stream finished", "stage", ev.Stage.String())
				return
			}
		}
	}
}
