package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolapsis/vigil/internal/store"
)

func seedRun(t *testing.T, st store.Store, pid int, outcome string) {
	t.Helper()
	rec := &store.RunRecord{
		PID:                 pid,
		ModelPath:           "best_ncnn_model",
		Resolution:          "1640x1232",
		ConfidenceThreshold: 0.2,
		AnalysisInterval:    10,
		Outcome:             store.OutcomeRunning,
		StartedAt:           time.Now().Add(-time.Minute),
	}
	require.NoError(t, st.StartRun(rec))
	if outcome != store.OutcomeRunning {
		require.NoError(t, st.FinishRun(pid, outcome, time.Now()))
	}
}

func TestHandleRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	seedRun(t, env.store, 100, store.OutcomeGraceful)
	seedRun(t, env.store, 200, store.OutcomeCrashed)
	seedRun(t, env.store, 300, store.OutcomeRunning)

	rec := env.do(t, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	require.Equal(t, true, resp["success"])
	require.Equal(t, float64(3), resp["count"])

	runs := resp["runs"].([]any)
	newest := runs[0].(map[string]any)
	assert.Equal(t, float64(300), newest["pid"])
	assert.Equal(t, "running", newest["outcome"])
	// An open run has no stop time.
	assert.NotContains(t, newest, "stoppedAt")

	finished := runs[2].(map[string]any)
	assert.Equal(t, "graceful", finished["outcome"])
	assert.Contains(t, finished, "stoppedAt")
}

func TestHandleRuns_Limit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for pid := 1; pid <= 5; pid++ {
		seedRun(t, env.store, pid, store.OutcomeGraceful)
	}

	rec := env.do(t, http.MethodGet, "/api/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/runs?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
