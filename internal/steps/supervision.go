package steps

import (
	"time"

	"testrig/internal/logcap"
	"testrig/pkg/logging"
)

// Supervision tracks progress, the captured log, a potential error and the
// return value of one step invocation. Enter and Exit bracket the step body;
// SubmitReturnValue may be called on either side of Exit, and the record
// completes once both have happened.
type Supervision struct {
	sup   *Supervisor
	node  Node
	frame *logcap.Frame
}

// Node returns the step record handle of the supervised invocation.
func (sv *Supervision) Node() Node {
	return sv.node
}

// Enter begins supervision: the node is pushed onto the active-step stack,
// log capture for this nesting level starts and the start time is recorded.
func (sv *Supervision) Enter() {
	sv.frame = sv.sup.capture.Push()
	sv.sup.stack = append(sv.sup.stack, sv.node.idx)
	if sv.sup.onEnter != nil {
		sv.sup.onEnter(sv.node)
	}
	sv.node.rec().start = time.Now()
}

// Exit ends supervision. The end time is recorded, the captured log and the
// error (if any) are attached, the node is popped off the stack and the
// record completes if the return value was already submitted. A stack
// mismatch means supervision scopes were interleaved incorrectly, which is
// a programming defect, never a user error.
func (sv *Supervision) Exit(err error) {
	rec := sv.node.rec()
	rec.end = time.Now()
	rec.log = sv.sup.capture.Pop(sv.frame)
	rec.err = err
	rec.traversed = true
	sv.attemptToComplete()

	stack := sv.sup.stack
	if len(stack) == 0 || stack[len(stack)-1] != sv.node.idx {
		panic("steps: supervision exited out of order")
	}
	sv.sup.stack = stack[:len(stack)-1]
	sv.sup.latest = &sv.node
	if len(sv.sup.stack) == 0 {
		sv.sup.latestRoot = &sv.node
	}
	if sv.sup.onExit != nil {
		sv.sup.onExit(sv.node)
	}
}

// SubmitReturnValue records what the step body returned. It may be called
// before or after Exit; both paths converge on the same completion check.
func (sv *Supervision) SubmitReturnValue(returned interface{}) {
	rec := sv.node.rec()
	rec.returned = returned
	rec.returnSet = true
	sv.attemptToComplete()
}

func (sv *Supervision) attemptToComplete() {
	rec := sv.node.rec()
	if rec.returnSet && rec.traversed {
		rec.completed = true
	}
}

// Supervisor maintains the stack of currently executing steps for one
// sequence run and parents new supervisions onto the innermost active step.
type Supervisor struct {
	tree    *Tree
	capture *logcap.Capture
	stack   []int

	onEnter func(Node)
	onExit  func(Node)

	latest     *Node
	latestRoot *Node
}

// NewSupervisor creates a step supervisor backed by the given log capture.
// onEnter and onExit (either may be nil) are notified as supervision scopes
// open and close.
func NewSupervisor(capture *logcap.Capture, onEnter, onExit func(Node)) *Supervisor {
	return &Supervisor{
		tree:    &Tree{},
		capture: capture,
		onEnter: onEnter,
		onExit:  onExit,
	}
}

// Supervise creates a record for one invocation of step, parented to the
// currently active step (or as a root when none is active), and returns the
// supervision scope for it.
func (s *Supervisor) Supervise(step Step) *Supervision {
	parent := -1
	var ancestry []string
	if active, ok := s.Active(); ok {
		parent = active.idx
		ancestry = append(append([]string(nil), active.Ancestry()...), active.Name())
	}
	idx := s.tree.newRecord(step.Name, ancestry, parent)
	logging.Debug("Steps", "supervising step %q (call %s)", step.Name, s.tree.records[idx].callID)
	return &Supervision{
		sup:  s,
		node: Node{tree: s.tree, idx: idx},
	}
}

// Active returns the innermost currently executing step, if any.
func (s *Supervisor) Active() (Node, bool) {
	if len(s.stack) == 0 {
		return Node{}, false
	}
	return Node{tree: s.tree, idx: s.stack[len(s.stack)-1]}, true
}

// Latest returns the most recently finished step, if any.
func (s *Supervisor) Latest() (Node, bool) {
	if s.latest == nil {
		return Node{}, false
	}
	return *s.latest, true
}

// LatestRoot returns the most recently finished root step, if any.
func (s *Supervisor) LatestRoot() (Node, bool) {
	if s.latestRoot == nil {
		return Node{}, false
	}
	return *s.latestRoot, true
}
