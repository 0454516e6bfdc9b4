package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kolapsis/vigil/internal/settings"
	"github.com/kolapsis/vigil/internal/supervisor"
)

// currentSettings loads the persisted detector settings, falling back to the
// defaults when nothing was ever saved.
func (s *Server) currentSettings() (settings.Settings, error) {
	cur := settings.Defaults()
	data, err := s.store.GetSettings()
	if err != nil {
		return cur, err
	}
	if data != nil {
		if err := json.Unmarshal(data, &cur); err != nil {
			return cur, fmt.Errorf("stored settings corrupt: %w", err)
		}
	}
	return cur, nil
}

// handleStart launches the producer. The request body may carry a partial
// settings override applied on top of the persisted settings for this run
// only; an empty body starts with the persisted settings as-is.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cur, err := s.currentSettings()
	if err != nil {
		slog.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	if r.Body != nil && r.ContentLength != 0 {
		var patch settings.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		cur = cur.Merge(patch)
	}
	if err := cur.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	webhook := cur.WebhookURL
	if webhook == "" {
		webhook = s.webhookURL
	}

	pid, err := s.sup.Start(supervisor.LaunchConfig{
		ModelPath:           cur.ModelPath,
		Resolution:          cur.Resolution,
		ConfidenceThreshold: cur.ConfidenceThreshold,
		AnalysisInterval:    cur.AnalysisInterval,
		WebhookURL:          webhook,
	})
	if errors.Is(err, supervisor.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "detection is already running",
		})
		return
	}
	if err != nil {
		slog.Error("producer start failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start detection: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "detection started",
		"pid":     pid,
	})
}

// handleStop terminates the producer, gracefully when it cooperates.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.sup.Stop(s.stopTimeout)
	if errors.Is(err, supervisor.ErrNotRunning) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "detection is not running",
		})
		return
	}
	if err != nil {
		slog.Error("producer stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to stop detection: %v", err))
		return
	}

	msg := "detection stopped"
	if !res.Graceful {
		msg = "detection stopped (forced)"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

// handleStatus reports whether the producer is running. The check is what
// detects crashes: a dead child is reaped here and reported as not running.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sup.Status()

	resp := map[string]any{
		"success": true,
		"running": st.Running,
	}
	if st.Running {
		resp["pid"] = st.PID
		resp["uptime"] = supervisor.FormatUptime(st.Uptime)
		resp["uptimeSeconds"] = int(st.Uptime.Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}
