package store

import "time"

// Store is the persistence interface for Vigil: the producer run audit trail
// and the detector settings document. Live notifications are deliberately
// not persisted — the event archive is the durable record, the broker is a
// delivery cache only.
type Store interface {
	// Producer runs
	StartRun(r *RunRecord) error
	FinishRun(pid int, outcome string, stoppedAt time.Time) error
	ListRuns(limit int) ([]RunRecord, error)

	// Detector settings (opaque JSON document)
	GetSettings() ([]byte, error)
	SaveSettings(data []byte) error

	Close() error
}

// Run outcomes.
const (
	OutcomeRunning  = "running"
	OutcomeGraceful = "graceful"
	OutcomeForced   = "forced"
	OutcomeCrashed  = "crashed"
)

// RunRecord is one supervised producer run.
type RunRecord struct {
	ID                  int64
	PID                 int
	ModelPath           string
	Resolution          string
	ConfidenceThreshold float64
	AnalysisInterval    int
	WebhookURL          string
	Outcome             string
	StartedAt           time.Time
	StoppedAt           time.Time
}
