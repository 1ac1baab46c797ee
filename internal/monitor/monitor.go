// Package monitor implements the background health monitor: a polling loop
// over liveness checks and worker handles that accumulates faults for the
// engine to consume at its checkpoints.
package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"testrig/pkg/logging"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = time.Second

// Fault is one recorded health problem. Faults accumulate for the lifetime
// of the monitor and are never cleared automatically.
type Fault struct {
	Origin  string
	Message string
	Err     error
}

func (f Fault) String() string {
	if f.Err != nil {
		return fmt.Sprintf("%q reports %q (%v)", f.Origin, f.Message, f.Err)
	}
	return fmt.Sprintf("%q reports %q", f.Origin, f.Message)
}

// AggregateError bundles every accumulated fault into a single fatal error.
type AggregateError struct {
	Faults []Fault
}

func (e *AggregateError) Error() string {
	lines := make([]string, 0, len(e.Faults)+1)
	lines = append(lines, "multiple issues accumulated:")
	for _, f := range e.Faults {
		lines = append(lines, "    "+f.String())
	}
	return strings.Join(lines, "\n")
}

// NewAggregateError creates the aggregate fault raised at engine checkpoints.
func NewAggregateError(faults []Fault) *AggregateError {
	return &AggregateError{Faults: faults}
}

// Check is a liveness assertion about the system; returning false means the
// asserted condition no longer holds.
type Check func() bool

// Task is a concurrently running worker polled for liveness.
type Task interface {
	Name() string
	Alive() bool
}

// ExitCoder is implemented by process-like tasks that can report an exit
// status once dead.
type ExitCoder interface {
	ExitCode() (int, bool)
}

// CheckHandle identifies a registered check for later removal.
type CheckHandle struct {
	check  Check
	onFail func()
}

// Monitor polls registered checks and tasks at a fixed interval.
type Monitor struct {
	interval time.Duration

	mu     sync.Mutex
	checks []*CheckHandle
	tasks  []Task
	faults []Fault

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a monitor polling at the given interval (DefaultInterval when
// zero).
func New(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddCheck registers a liveness assertion. onFail (may be nil) runs on the
// monitor goroutine whenever the check returns false.
func (m *Monitor) AddCheck(check Check, onFail func()) *CheckHandle {
	h := &CheckHandle{check: check, onFail: onFail}
	m.mu.Lock()
	m.checks = append(m.checks, h)
	m.mu.Unlock()
	return h
}

// RemoveCheck unregisters a previously added check.
func (m *Monitor) RemoveCheck(h *CheckHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.checks {
		if c == h {
			m.checks = append(m.checks[:i], m.checks[i+1:]...)
			return
		}
	}
}

// WithCheck registers a check and returns the function that removes it
// again, for scoped use inside a step or phase.
func (m *Monitor) WithCheck(check Check, onFail func()) (remove func()) {
	h := m.AddCheck(check, onFail)
	return func() { m.RemoveCheck(h) }
}

// AddTask registers a worker to be polled for liveness.
func (m *Monitor) AddTask(t Task) {
	logging.Debug("Monitor", "adding task %s", t.Name())
	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()
}

// RemoveTask unregisters a worker.
func (m *Monitor) RemoveTask(t Task) {
	logging.Debug("Monitor", "removing task %s", t.Name())
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, task := range m.tasks {
		if task == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

// WithTask registers a task and returns the function that removes it again.
func (m *Monitor) WithTask(t Task) (remove func()) {
	m.AddTask(t)
	return func() { m.RemoveTask(t) }
}

// SetFault records a health problem.
func (m *Monitor) SetFault(origin, message string, err error) {
	logging.Error("Monitor", err, "%q reports %q", origin, message)
	m.mu.Lock()
	m.faults = append(m.faults, Fault{Origin: origin, Message: message, Err: err})
	m.mu.Unlock()
}

// Wrecked reports whether any fault has ever been recorded.
func (m *Monitor) Wrecked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.faults) > 0
}

// Faults returns a copy of the accumulated fault list.
func (m *Monitor) Faults() []Fault {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Fault(nil), m.faults...)
}

// Quit stops the polling loop after the current tick.
func (m *Monitor) Quit() {
	m.once.Do(func() { close(m.quit) })
}

// Done is closed when the polling loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Run executes the polling loop until Quit is called. It is meant to run on
// its own goroutine, alongside the engine loop.
func (m *Monitor) Run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	m.mu.Lock()
	checks := append([]*CheckHandle(nil), m.checks...)
	tasks := append([]Task(nil), m.tasks...)
	m.mu.Unlock()

	for _, h := range checks {
		if h.check() {
			continue
		}
		logging.Error("Monitor", nil, "liveness check failed")
		if h.onFail != nil {
			h.onFail()
		}
	}

	for _, t := range tasks {
		if t.Alive() {
			logging.Debug("Monitor", "task %q seems to be alive", t.Name())
			continue
		}
		msg := fmt.Sprintf("%s seems to be dead!", t.Name())
		if ec, ok := t.(ExitCoder); ok {
			if code, exited := ec.ExitCode(); exited {
				msg = fmt.Sprintf("%s seems to be dead! (exit code: %d)", t.Name(), code)
			}
		}
		m.SetFault("health monitor", msg, nil)
	}
}
