// Package engine drives the test system run: a phase loop that executes the
// registered lifecycle callbacks against repeated UUT iterations, supervises
// the steps of each test sequence, consults the health monitor at its
// checkpoints and releases acquired resources on every exit path.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"testrig/internal/callbacks"
	"testrig/internal/monitor"
	"testrig/internal/steps"
	"testrig/pkg/logging"
)

// Options tunes the timing of the engine's goroutines.
type Options struct {
	// PollInterval is how often the controller re-checks the run state.
	PollInterval time.Duration
	// JoinTimeout bounds the wait for the exec loop after a forced quit.
	JoinTimeout time.Duration
	// MonitorInterval is the health monitor's polling interval.
	MonitorInterval time.Duration
}

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultJoinTimeout  = time.Second
)

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = monitor.DefaultInterval
	}
	return o
}

// ErrorHandler receives every error the engine deems fatal for the run,
// before the run winds down.
type ErrorHandler func(err error)

// StepRepeatFunc decides, after a step invocation completed, whether the
// engine should run the same step again. The default never repeats.
type StepRepeatFunc func(step steps.Step, node steps.Node) bool

// System is a configured test system. Callbacks are registered up front;
// Run then executes the phase loop until quit or a fatal condition.
type System struct {
	registry *callbacks.Registry
	health   *monitor.Monitor
	opts     Options

	mu           sync.Mutex
	errorHandler ErrorHandler
	stepRepeat   StepRepeatFunc
	runErr       error

	running    atomic.Bool
	quitFlag   atomic.Bool
	neverAbort atomic.Int32

	// Per-sequence-run supervisor, touched only on the exec goroutine.
	sup *steps.Supervisor
}

// New creates a test system with no callbacks registered.
func New(opts Options) *System {
	opts = opts.withDefaults()
	return &System{
		registry: callbacks.NewRegistry(),
		health:   monitor.New(opts.MonitorInterval),
		opts:     opts,
	}
}

// RegisterSystemSetup binds the system setup callback. It runs once at the
// beginning of the run and may defer cleanup on the run-wide scope.
func (s *System) RegisterSystemSetup(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.SystemSetup, cb)
}

// RegisterTestBedPreparation binds the test bed preparation callback. It
// runs at the start of every UUT iteration.
func (s *System) RegisterTestBedPreparation(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.TestBedPreparation, cb)
}

// RegisterUutSetup binds the UUT setup callback. It runs per iteration and
// may defer cleanup on the iteration scope.
func (s *System) RegisterUutSetup(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.UutSetup, cb)
}

// RegisterTestSequence binds the test sequence callback, the only mandatory
// one. Its steps are supervised; its verdict decides the iteration outcome.
func (s *System) RegisterTestSequence(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.TestSequence, cb)
}

// RegisterUutRecovery binds the UUT recovery callback. It runs after every
// sequence, including aborted and quitting ones.
func (s *System) RegisterUutRecovery(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.UutRecovery, cb)
}

// RegisterUutResultHandler binds the result handler callback. It runs after
// recovery on ordinary iterations and is skipped on the ending one.
func (s *System) RegisterUutResultHandler(cb callbacks.Callback) error {
	return s.registry.Register(callbacks.UutResultHandler, cb)
}

// SetErrorHandler replaces the default fatal-error handler, which logs.
func (s *System) SetErrorHandler(h ErrorHandler) {
	s.mu.Lock()
	s.errorHandler = h
	s.mu.Unlock()
}

// SetStepRepeat installs the per-step repeat decision.
func (s *System) SetStepRepeat(fn StepRepeatFunc) {
	s.mu.Lock()
	s.stepRepeat = fn
	s.mu.Unlock()
}

// Monitor exposes the health monitor so integrators can register liveness
// checks and worker handles from their callbacks.
func (s *System) Monitor() *monitor.Monitor {
	return s.health
}

// Quit requests an orderly shutdown: the run ends after the current
// iteration's recovery and cleanup.
func (s *System) Quit() {
	if s.quitFlag.CompareAndSwap(false, true) {
		logging.Info("Engine", "quit requested")
	}
}

// Running reports whether a run is in progress.
func (s *System) Running() bool {
	return s.running.Load()
}

// NeverAbort runs fn with quit conversion suppressed: a pending quit request
// does not interrupt steps inside fn, it is honored at the next step outside.
// Meant for cleanup work that must not be cut short.
func (s *System) NeverAbort(fn func()) {
	s.neverAbort.Add(1)
	defer s.neverAbort.Add(-1)
	fn()
}

func (s *System) handleError(err error) {
	s.mu.Lock()
	h := s.errorHandler
	s.mu.Unlock()
	if h != nil {
		h(err)
		return
	}
	logging.Error("Engine", err, "error during test system run")
}

// setFatal records the first fatal error of the run.
func (s *System) setFatal(err error) {
	s.mu.Lock()
	if s.runErr == nil {
		s.runErr = err
	}
	s.mu.Unlock()
}

func (s *System) fatalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}
