package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pbeck/parley/internal/presence"
)

// PresenceHandler exposes the tracker's read side. Tracker may be nil when
// the deployment runs without redis.
type PresenceHandler struct {
	Tracker *presence.Tracker
}

func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		writeJSON(w, http.StatusServiceUnavailable, "Presence tracking disabled", nil)
		return
	}

	userID := mux.Vars(r)["id"]
	online, err := h.Tracker.IsOnline(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	extra := envelope{"online": online}
	if !online {
		lastSeen, err := h.Tracker.LastSeen(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
			return
		}
		if !lastSeen.IsZero() {
			extra["last_seen"] = lastSeen.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, "Presence", extra)
}
