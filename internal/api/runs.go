package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kolapsis/vigil/internal/store"
)

type runResponse struct {
	ID                  int64      `json:"id"`
	PID                 int        `json:"pid"`
	ModelPath           string     `json:"modelPath"`
	Resolution          string     `json:"resolution"`
	ConfidenceThreshold float64    `json:"confidenceThreshold"`
	AnalysisInterval    int        `json:"analysisInterval"`
	Outcome             string     `json:"outcome"`
	StartedAt           time.Time  `json:"startedAt"`
	StoppedAt           *time.Time `json:"stoppedAt,omitempty"`
}

// handleRuns returns the producer run audit trail, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.ListRuns(limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	runs := make([]runResponse, 0, len(records))
	for _, rec := range records {
		run := runResponse{
			ID:                  rec.ID,
			PID:                 rec.PID,
			ModelPath:           rec.ModelPath,
			Resolution:          rec.Resolution,
			ConfidenceThreshold: rec.ConfidenceThreshold,
			AnalysisInterval:    rec.AnalysisInterval,
			Outcome:             rec.Outcome,
			StartedAt:           rec.StartedAt,
		}
		if rec.Outcome != store.OutcomeRunning && !rec.StoppedAt.IsZero() {
			t := rec.StoppedAt
			run.StoppedAt = &t
		}
		runs = append(runs, run)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(runs),
		"runs":    runs,
	})
}
