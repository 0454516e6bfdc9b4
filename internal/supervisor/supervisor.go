package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start when a live producer exists.
	ErrAlreadyRunning = errors.New("producer is already running")
	// ErrNotRunning is returned by Stop when no producer is running.
	ErrNotRunning = errors.New("producer is not running")
)

// LaunchConfig holds the command-line parameters passed to the producer.
type LaunchConfig struct {
	ModelPath           string
	Resolution          string
	ConfidenceThreshold float64
	AnalysisInterval    int
	WebhookURL          string
}

// Args renders the producer command line.
func (c LaunchConfig) Args() []string {
	args := []string{
		"--model", c.ModelPath,
		"--resolution", c.Resolution,
		"--thresh", strconv.FormatFloat(c.ConfidenceThreshold, 'f', -1, 64),
		"--analyze-interval", strconv.Itoa(c.AnalysisInterval),
	}
	if c.WebhookURL != "" {
		args = append(args, "--webhook", c.WebhookURL)
	}
	return args
}

// Event describes a producer lifecycle change.
type Event struct {
	Type    string // "producer.started", "producer.stopped", "producer.crashed"
	PID     int
	Launch  LaunchConfig
	Outcome string // "graceful", "forced" or "crashed"; empty for started
	Message string
}

// NotifyFunc is called when a producer lifecycle event occurs.
type NotifyFunc func(Event)

// Status is a point-in-time view of the supervised producer.
type Status struct {
	Running   bool
	PID       int
	StartedAt time.Time
	Uptime    time.Duration
}

// handle is the one live child. Exactly one exists process-wide while the
// producer runs; it is mutated only under the Supervisor mutex.
type handle struct {
	pid       int
	startedAt time.Time
	launch    LaunchConfig
	proc      *os.Process
	done      chan struct{} // closed by the reaper once the child exits
}

// Supervisor owns the lifecycle of the external detection process. All
// operations are serialized under a single mutex: concurrent starts cannot
// produce two children and concurrent stops cannot double-signal a cleared
// handle.
//
// A child that dies on its own is noticed lazily at the next Status call,
// not by a background watcher. Announcements the producer would have sent
// during that gap are simply absent; the archive remains the source of truth.
type Supervisor struct {
	mu       sync.Mutex
	bin      string
	workDir  string
	env      map[string]string
	onNotify NotifyFunc
	handle   *handle
}

// New creates a Supervisor for the given producer binary.
func New(bin, workDir string, env map[string]string) *Supervisor {
	return &Supervisor{bin: bin, workDir: workDir, env: env}
}

// SetNotifyFunc sets the callback for producer lifecycle events.
func (s *Supervisor) SetNotifyFunc(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotify = fn
}

// Start spawns the producer with the given launch configuration and returns
// its PID without waiting for the child to finish initializing. Fails with
// ErrAlreadyRunning if a live child exists. Spawn failures are reported, not
// retried.
func (s *Supervisor) Start(launch LaunchConfig) (int, error) {
	var events []Event
	defer func() { s.deliver(events) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		if s.alive(s.handle) {
			return 0, ErrAlreadyRunning
		}
		events = append(events, s.reapStale("producer found dead on start"))
	}

	cmd := exec.Command(s.bin, launch.Args()...) //nolint:gosec // binary path comes from operator config
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}
	cmd.Env = os.Environ()
	for k, v := range s.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Detach into its own session so the producer survives terminal signals
	// aimed at the dashboard and can be signalled as a unit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting producer %s: %w", s.bin, err)
	}

	h := &handle{
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		launch:    launch,
		proc:      cmd.Process,
		done:      make(chan struct{}),
	}
	s.handle = h

	// Reap the child to avoid zombies. This goroutine only records the
	// exit; crash detection stays lazy in Status.
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	slog.Info("producer started",
		"pid", h.pid,
		"model", launch.ModelPath,
		"resolution", launch.Resolution)

	events = append(events, Event{Type: "producer.started", PID: h.pid, Launch: launch, Message: "producer started"})
	return h.pid, nil
}

// StopResult reports how a stop completed.
type StopResult struct {
	PID      int
	Graceful bool
}

// Stop sends SIGTERM, waits up to timeout for a clean exit, then escalates
// to SIGKILL. The handle is always cleared on return, whichever path was
// taken. Fails with ErrNotRunning when there is nothing to stop.
func (s *Supervisor) Stop(timeout time.Duration) (StopResult, error) {
	var events []Event
	defer func() { s.deliver(events) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return StopResult{}, ErrNotRunning
	}
	if !s.alive(s.handle) {
		events = append(events, s.reapStale("producer found dead on stop"))
		return StopResult{}, ErrNotRunning
	}

	h := s.handle
	s.handle = nil

	_ = h.proc.Signal(syscall.SIGTERM)

	graceful := true
	select {
	case <-h.done:
	case <-time.After(timeout):
		graceful = false
		slog.Warn("producer ignored SIGTERM, killing", "pid", h.pid, "waited", timeout)
		_ = h.proc.Kill()
		<-h.done
	}

	outcome := "graceful"
	if !graceful {
		outcome = "forced"
	}
	slog.Info("producer stopped", "pid", h.pid, "outcome", outcome)

	events = append(events, Event{Type: "producer.stopped", PID: h.pid, Launch: h.launch, Outcome: outcome, Message: "producer stopped (" + outcome + ")"})
	return StopResult{PID: h.pid, Graceful: graceful}, nil
}

// Status checks OS-level liveness of the recorded child, not just the
// internal flag: the producer may have crashed or been killed from outside.
// A dead handle is cleared here (self-heal) so a subsequent Start succeeds.
func (s *Supervisor) Status() Status {
	var events []Event
	defer func() { s.deliver(events) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return Status{}
	}
	if !s.alive(s.handle) {
		events = append(events, s.reapStale("producer exited unexpectedly"))
		return Status{}
	}

	return Status{
		Running:   true,
		PID:       s.handle.pid,
		StartedAt: s.handle.startedAt,
		Uptime:    time.Since(s.handle.startedAt),
	}
}

// alive reports whether the child behind h is still running. The reaper's
// done channel is authoritative for children we own; signal 0 covers the
// window before the reaper has run.
func (s *Supervisor) alive(h *handle) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	return h.proc.Signal(syscall.Signal(0)) == nil
}

// reapStale clears a handle whose child is already dead and returns the
// crash event for the caller to deliver. Caller must hold the mutex.
func (s *Supervisor) reapStale(msg string) Event {
	h := s.handle
	s.handle = nil
	slog.Warn(msg, "pid", h.pid)
	return Event{Type: "producer.crashed", PID: h.pid, Launch: h.launch, Outcome: "crashed", Message: msg}
}

// deliver invokes the notify callback synchronously, after the operation has
// released the supervisor lock (it is registered as the outermost defer).
// Running outside the lock lets the callback call back into the supervisor;
// running synchronously means a consumer observes events in operation order,
// so a run's started event always lands before its stopped or crashed event.
func (s *Supervisor) deliver(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	fn := s.onNotify
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, e := range events {
		fn(e)
	}
}

// FormatUptime renders a duration the way the dashboard displays it: "1h 2m 3s".
func FormatUptime(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
