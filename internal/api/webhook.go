package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kolapsis/vigil/internal/notify"
)

// timestampFormats are accepted producer timestamp renderings, tried in order.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// webhookRequest is the announcement push from the producer. Pointer fields
// distinguish "absent" from zero values for required-field validation.
type webhookRequest struct {
	ID                string    `json:"id"`
	ObjectTypes       *[]string `json:"objectTypes"`
	ConfidencePercent *float64  `json:"confidencePercent"`
	Message           string    `json:"message"`
	EventReference    string    `json:"eventReference"`
	Timestamp         string    `json:"timestamp"`
}

// handleWebhook validates an inbound announcement and hands it to the
// broker. The response is synchronous but independent of how many dashboards
// are connected: Publish never blocks on subscribers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if req.ObjectTypes == nil {
		writeError(w, http.StatusBadRequest, "missing objectTypes")
		return
	}
	if req.ConfidencePercent == nil {
		writeError(w, http.StatusBadRequest, "missing confidencePercent")
		return
	}
	if *req.ConfidencePercent < 0 || *req.ConfidencePercent > 100 {
		writeError(w, http.StatusBadRequest, "confidencePercent must be between 0 and 100")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}
	if req.EventReference == "" {
		writeError(w, http.StatusBadRequest, "missing eventReference")
		return
	}

	a := notify.Announcement{
		ID:                req.ID,
		ObjectTypes:       *req.ObjectTypes,
		ConfidencePercent: *req.ConfidencePercent,
		Message:           req.Message,
		EventReference:    req.EventReference,
		Timestamp:         parseTimestamp(req.Timestamp),
		NotifiedAt:        time.Now(),
	}
	if a.ID == "" {
		a.ID = notify.NewID()
	}

	// The archived record is richer than the webhook payload once the
	// producer has finished writing it. When it is not there yet the
	// payload alone is enough; the dashboard reconciles later.
	if s.archive != nil {
		if rec, err := s.archive.GetByID(req.EventReference); err == nil {
			a.ObjectTypes = rec.ObjectTypes
			a.ConfidencePercent = rec.ConfidencePercent()
			if rec.AlertMessage != "" {
				a.Message = rec.AlertMessage
			}
			if !rec.Timestamp.IsZero() {
				a.Timestamp = rec.Timestamp
			}
		}
	}

	s.broker.Publish(a)

	slog.Info("announcement admitted",
		"id", a.ID,
		"event_reference", a.EventReference,
		"confidence_pct", a.ConfidencePercent)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      a.ID,
	})
}

// parseTimestamp falls back to receipt time when the producer sent nothing
// usable; announcements are never rejected over a bad clock rendering.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Now()
}
