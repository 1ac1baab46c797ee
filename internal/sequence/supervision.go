// Package sequence supervises one full execution of the test sequence
// callback for one UUT iteration: it collects the root-level steps observed
// by the step supervisor, records the sequence's own return value and
// computes the overall verdict.
package sequence

import (
	"fmt"

	"testrig/internal/logcap"
	"testrig/internal/result"
	"testrig/internal/steps"
)

// Supervision tracks one sequence run. Its verdict and rendered result are
// only available once the run's scope has exited.
type Supervision struct {
	roots []steps.Node

	returnValue interface{}
	submitted   bool
	traversed   bool
}

// Setup creates an entangled pair: every root-level step the returned step
// supervisor observes is appended to the sequence's root list.
func Setup(capture *logcap.Capture) (*Supervision, *steps.Supervisor) {
	sv := &Supervision{}
	sup := steps.NewSupervisor(capture, func(n steps.Node) {
		if _, hasParent := n.Parent(); hasParent {
			return
		}
		sv.roots = append(sv.roots, n)
	}, nil)
	return sv, sup
}

// Enter marks the beginning of the sequence scope.
func (sv *Supervision) Enter() {}

// Exit marks the end of the sequence scope. Verdict and result info become
// readable afterwards.
func (sv *Supervision) Exit() {
	sv.traversed = true
}

// SubmitReturnValue records the sequence callback's own return value.
func (sv *Supervision) SubmitReturnValue(returned interface{}) {
	sv.returnValue = returned
	sv.submitted = true
}

// ReturnValue is what the sequence callback returned, or nil when the
// sequence ended (via abort or error) before a value was submitted.
func (sv *Supervision) ReturnValue() interface{} {
	return sv.returnValue
}

func (sv *Supervision) mustBeTraversed(what string) {
	if !sv.traversed {
		panic(fmt.Sprintf("sequence: reading %s before the sequence scope exited", what))
	}
}

// Result is the overall verdict of the sequence: the merge over every root
// step's verdict and the verdict inferred from the sequence's own return
// value. Panics while the sequence is still running.
func (sv *Supervision) Result() result.TestResult {
	sv.mustBeTraversed("result")
	merged := result.Infer(sv.returnValue, nil)
	for _, root := range sv.roots {
		merged = merged.Merge(root.Result())
	}
	return merged
}

// ResultInfo renders the full step tree in execution order. Panics while
// the sequence is still running.
func (sv *Supervision) ResultInfo() result.Info {
	sv.mustBeTraversed("result info")
	info := result.Info{
		Result: sv.Result(),
		Steps:  make([]result.StepResultInfo, 0, len(sv.roots)),
	}
	for _, root := range sv.roots {
		info.Steps = append(info.Steps, root.ResultInfo())
	}
	return info
}

// Roots returns the root-level step records collected so far.
func (sv *Supervision) Roots() []steps.Node {
	return sv.roots
}
