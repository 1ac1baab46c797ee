package engine

import (
	"context"
	"errors"
	"time"

	"testrig/internal/callbacks"
	"testrig/internal/capability"
	"testrig/internal/control"
	"testrig/internal/logcap"
	"testrig/internal/monitor"
	"testrig/internal/result"
	"testrig/internal/scope"
	"testrig/internal/sequence"
	"testrig/pkg/logging"
)

// ErrAlreadyRunning is returned when Run is called on a running system.
var ErrAlreadyRunning = errors.New("test system is already running")

// Run executes the test system until quit, context cancellation or a fatal
// condition. It validates the callback registry, starts the health monitor
// and the exec loop on their own goroutines, then polls: cancellation is
// converted into a quit request, and the exec loop is given a bounded grace
// period to wind down. The monitor is always joined before Run returns.
//
// The returned error is the first fatal one of the run, or nil for an
// orderly quit.
func (s *System) Run(ctx context.Context) error {
	if err := s.registry.Check(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	logging.Info("Engine", "starting test system run")
	go s.health.Run()
	exec := monitor.Go("engine exec loop", s.execLoop)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-exec.Done():
			break poll
		case <-ctx.Done():
			s.Quit()
			select {
			case <-exec.Done():
			case <-time.After(s.opts.JoinTimeout):
				logging.Error("Engine", nil,
					"exec loop did not stop within %s after quit", s.opts.JoinTimeout)
			}
			break poll
		case <-ticker.C:
		}
	}

	s.health.Quit()
	<-s.health.Done()
	s.running.Store(false)
	logging.Info("Engine", "test system run finished")
	return s.fatalError()
}

// execLoop is the phase machine: system setup once, then UUT iterations
// until quit or a fatal condition, then teardown of the run scope.
func (s *System) execLoop() {
	runScope := scope.New()
	defer func() {
		logging.Info("Engine", "phase: teardown")
		if err := runScope.Close(); err != nil {
			s.handleError(err)
			s.setFatal(err)
		}
	}()

	logging.Info("Engine", "phase: system setup")
	systemSetupResult, err := s.registry.Invoke(callbacks.SystemSetup,
		map[capability.Capability]interface{}{
			capability.ExitScope: runScope,
		})
	if err != nil {
		if control.IsQuit(err) {
			return
		}
		s.handleError(err)
		s.setFatal(err)
		return
	}

	for !s.quitFlag.Load() {
		if err := s.monitorCheckpoint(); err != nil {
			s.handleError(err)
			s.setFatal(err)
			return
		}
		if s.runIteration(systemSetupResult) {
			return
		}
	}
}

// runIteration executes one UUT cycle. It returns true when the run must
// end, either because of a quit request or a fatal condition.
func (s *System) runIteration(systemSetupResult interface{}) (ending bool) {
	iterScope := scope.New()
	quitting := false
	var fatalErr error
	fail := func(err error) {
		s.handleError(err)
		if fatalErr == nil {
			fatalErr = err
		}
	}

	logging.Info("Engine", "phase: test bed preparation")
	_, err := s.registry.Invoke(callbacks.TestBedPreparation,
		map[capability.Capability]interface{}{
			capability.SystemSetupResult: systemSetupResult,
		})
	if err != nil {
		if control.IsQuit(err) {
			s.Quit()
			return true
		}
		s.handleError(err)
		s.setFatal(err)
		return true
	}

	logging.Info("Engine", "phase: uut setup")
	uutSetupResult, err := s.registry.Invoke(callbacks.UutSetup,
		map[capability.Capability]interface{}{
			capability.SystemSetupResult: systemSetupResult,
			capability.ExitScope:         iterScope,
		})
	setupFailed := false
	if err != nil {
		if control.IsQuit(err) {
			s.Quit()
			quitting = true
		} else {
			fail(err)
			setupFailed = true
		}
	}

	var seq *sequence.Supervision
	if !quitting && !setupFailed {
		seq = s.runSequence(systemSetupResult, uutSetupResult, &quitting, fail)
		if err := s.monitorCheckpoint(); err != nil {
			fail(err)
		}
	}

	// Recovery runs whenever the UUT was (or began being) set up, even on a
	// quit or an aborted sequence. It is skipped when setup itself died.
	if !setupFailed {
		logging.Info("Engine", "phase: uut recovery")
		if _, err := s.registry.Invoke(callbacks.UutRecovery,
			s.outcomeValues(systemSetupResult, uutSetupResult, seq)); err != nil {
			if control.IsQuit(err) {
				s.Quit()
				quitting = true
			} else {
				fail(err)
			}
		}
	}

	if err := iterScope.Close(); err != nil {
		fail(err)
	}

	ending = quitting || fatalErr != nil || s.quitFlag.Load()
	if !ending {
		logging.Info("Engine", "phase: uut result handler")
		if _, err := s.registry.Invoke(callbacks.UutResultHandler,
			s.outcomeValues(systemSetupResult, uutSetupResult, seq)); err != nil {
			if control.IsQuit(err) {
				s.Quit()
				quitting = true
			} else {
				fail(err)
			}
		}
		ending = quitting || fatalErr != nil
	} else {
		logging.Info("Engine", "ending iteration, skipping result handler")
	}

	if fatalErr != nil {
		s.setFatal(fatalErr)
	}
	return ending
}

// runSequence supervises one invocation of the test sequence callback.
func (s *System) runSequence(systemSetupResult, uutSetupResult interface{}, quitting *bool, fail func(error)) *sequence.Supervision {
	logging.Info("Engine", "phase: test sequence")
	capture := logcap.New()
	defer capture.Close()

	seq, sup := sequence.Setup(capture)
	s.sup = sup
	defer func() { s.sup = nil }()

	seq.Enter()
	ret, err := s.registry.Invoke(callbacks.TestSequence,
		map[capability.Capability]interface{}{
			capability.SystemSetupResult: systemSetupResult,
			capability.UutSetupResult:    uutSetupResult,
		})
	switch {
	case err == nil:
		seq.SubmitReturnValue(ret)
	case control.IsAbort(err):
		// Expected early termination; no return value was produced.
		logging.Info("Engine", "%v", err)
	case control.IsQuit(err):
		s.Quit()
		*quitting = true
	default:
		fail(err)
	}
	seq.Exit()

	logging.Info("Engine", "test sequence finished with result %s", seq.Result())
	return seq
}

// outcomeValues assembles the capability values recovery and the result
// handler consume. A sequence that never ran yields a nil sequence result
// and an empty outcome.
func (s *System) outcomeValues(systemSetupResult, uutSetupResult interface{}, seq *sequence.Supervision) map[capability.Capability]interface{} {
	var sequenceResult interface{}
	outcome := result.Info{}
	if seq != nil {
		sequenceResult = seq.ReturnValue()
		outcome = seq.ResultInfo()
	}
	return map[capability.Capability]interface{}{
		capability.SystemSetupResult: systemSetupResult,
		capability.UutSetupResult:    uutSetupResult,
		capability.SequenceResult:    sequenceResult,
		capability.TestOutcome:       outcome,
	}
}

func (s *System) monitorCheckpoint() error {
	if faults := s.health.Faults(); len(faults) > 0 {
		return monitor.NewAggregateError(faults)
	}
	return nil
}
