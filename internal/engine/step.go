package engine

import (
	"fmt"

	"testrig/internal/control"
	"testrig/internal/result"
	"testrig/internal/steps"
	"testrig/pkg/logging"
)

// RunStep executes fn as one supervised step of the current test sequence.
// The invocation is recorded in the sequence's step tree: timing, captured
// log, return value and error, nested under the step that is currently
// executing. Bookkeeping always completes, even when fn fails.
//
// After each attempt the engine honors a pending quit request (unless inside
// a never-abort section), consults the repeat decision, and escalates a
// non-success verdict into a sequence abort for abort-on-error steps.
// Control signals pass through unchanged; other errors are returned to the
// enclosing step for it to absorb or propagate.
func (s *System) RunStep(step steps.Step, fn func() (interface{}, error)) (interface{}, error) {
	if s.sup == nil {
		panic(fmt.Sprintf("engine: step %q executed outside a sequence run", step.Name))
	}

	for {
		logging.Info("Engine", "running step %q", step.Name)
		sv := s.sup.Supervise(step)
		sv.Enter()
		ret, err := fn()
		if err != nil {
			// The record still completes so partial trees render.
			ret = nil
		}
		sv.SubmitReturnValue(ret)
		sv.Exit(err)

		if control.IsSignal(err) {
			return nil, err
		}

		if s.quitFlag.Load() {
			if s.neverAbort.Load() > 0 {
				logging.Warn("Engine", "quit requested, but step %q ran in a never-abort section", step.Name)
			} else {
				return nil, control.ErrQuit
			}
		}

		node := sv.Node()
		if s.shouldRepeat(step, node) {
			logging.Info("Engine", "repeating step %q", step.Name)
			continue
		}

		if verdict := node.Result(); step.AbortOnError && verdict != result.Success {
			return nil, control.AbortSequence(
				fmt.Sprintf("step %q ended with %s", step.Name, verdict))
		}
		// Callers observe the payload of a custom result, not the envelope.
		return result.Unwrap(ret), err
	}
}

func (s *System) shouldRepeat(step steps.Step, node steps.Node) bool {
	s.mu.Lock()
	repeat := s.stepRepeat
	s.mu.Unlock()
	return repeat != nil && repeat(step, node)
}
