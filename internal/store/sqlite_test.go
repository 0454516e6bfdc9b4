package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(pid int) *RunRecord {
	return &RunRecord{
		PID:                 pid,
		ModelPath:           "/opt/models/best",
		Resolution:          "1640x1232",
		ConfidenceThreshold: 0.2,
		AnalysisInterval:    3,
		WebhookURL:          "http://127.0.0.1:8520/api/webhook/new-event",
		StartedAt:           time.Now().Truncate(time.Second),
	}
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_StartRun_AssignsID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r := testRun(4242)
	require.NoError(t, s.StartRun(r))
	assert.Greater(t, r.ID, int64(0))
	assert.Equal(t, OutcomeRunning, r.Outcome)

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4242, runs[0].PID)
	assert.Equal(t, "/opt/models/best", runs[0].ModelPath)
	assert.Equal(t, OutcomeRunning, runs[0].Outcome)
}

func TestSQLiteStore_FinishRun_UpdatesOpenRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r := testRun(4242)
	require.NoError(t, s.StartRun(r))

	stopped := time.Now().Truncate(time.Second)
	require.NoError(t, s.FinishRun(4242, OutcomeGraceful, stopped))

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, OutcomeGraceful, runs[0].Outcome)
	assert.Equal(t, stopped.Unix(), runs[0].StoppedAt.Unix())
}

func TestSQLiteStore_FinishRun_UnknownPIDIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.FinishRun(9999, OutcomeCrashed, time.Now()))

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLiteStore_FinishRun_OnlyTouchesLatestOpenRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first := testRun(100)
	require.NoError(t, s.StartRun(first))
	require.NoError(t, s.FinishRun(100, OutcomeForced, time.Now()))

	second := testRun(100) // pid reuse
	require.NoError(t, s.StartRun(second))
	require.NoError(t, s.FinishRun(100, OutcomeGraceful, time.Now()))

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, OutcomeGraceful, runs[0].Outcome)
	assert.Equal(t, OutcomeForced, runs[1].Outcome)
}

func TestSQLiteStore_ListRuns_Limit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for pid := 1; pid <= 5; pid++ {
		require.NoError(t, s.StartRun(testRun(pid)))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 5, runs[0].PID)
	assert.Equal(t, 4, runs[1].PID)
}

func TestSQLiteStore_Settings_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// Unset settings come back nil so callers can fall back to defaults.
	data, err := s.GetSettings()
	require.NoError(t, err)
	assert.Nil(t, data)

	doc, _ := json.Marshal(map[string]any{"confidence_threshold": 0.3})
	require.NoError(t, s.SaveSettings(doc))

	data, err = s.GetSettings()
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(data))

	// Overwrite replaces the single document.
	doc2, _ := json.Marshal(map[string]any{"confidence_threshold": 0.5})
	require.NoError(t, s.SaveSettings(doc2))

	data, err = s.GetSettings()
	require.NoError(t, err)
	assert.JSONEq(t, string(doc2), string(data))
}
