package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kolapsis/vigil/internal/settings"
)

// handleGetSettings returns the persisted detector settings, defaults when
// nothing was ever saved.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.currentSettings()
	if err != nil {
		slog.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  cur,
	})
}

// handleUpdateSettings applies a partial update, validates the result and
// persists it. Out-of-range values reject the whole request; the stored
// settings are never left partially updated.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.currentSettings()
	if err != nil {
		slog.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	merged := cur.Merge(patch)
	if err := merged.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := json.Marshal(merged)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode settings")
		return
	}
	if err := s.store.SaveSettings(data); err != nil {
		slog.Error("save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	slog.Info("detector settings updated")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  merged,
	})
}
