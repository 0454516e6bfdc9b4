package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kolapsis/vigil/internal/notify"
)

// handleNotifications returns the most recent announcements the broker still
// holds, newest first. This backs the initial dashboard render; live updates
// come over the stream.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	count := 20
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}

	recent := s.broker.Recent(count)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"count":         len(recent),
		"notifications": recent,
	})
}

// handleTestNotification publishes a synthetic announcement so operators can
// verify the browser is receiving the stream.
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	a := notify.Announcement{
		ID:                notify.NewID(),
		ObjectTypes:       []string{"Test"},
		ConfidencePercent: 100,
		Message:           "Test notification from Vigil",
		Timestamp:         now,
		NotifiedAt:        now,
	}
	s.broker.Publish(a)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      a.ID,
	})
}
