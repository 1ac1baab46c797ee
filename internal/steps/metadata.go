// Package steps tracks the hierarchical execution of test steps inside a
// sequence run. Records live in an arena indexed by position; parent and
// child links are indices, so the tree carries no cyclic ownership. A record
// becomes immutable once completed, and completion requires both that its
// execution scope has exited and that its return value has been submitted,
// in either order.
package steps

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"testrig/internal/result"
	"testrig/pkg/logging"
)

// Step identifies one runnable test step.
type Step struct {
	// Name of the step, used in reports and log messages.
	Name string
	// AbortOnError escalates a non-success verdict of this step into a
	// sequence-abort, skipping the remaining sibling steps.
	AbortOnError bool
}

// Tree is the arena holding all step records of one sequence run. It is
// single-threaded by design: steps execute strictly sequentially on the
// engine worker.
type Tree struct {
	records []*record
}

type record struct {
	callID   string
	name     string
	ancestry []string
	parent   int // index into the arena, -1 for a root step
	children []int

	start    time.Time
	end      time.Time
	returned interface{}
	err      error
	log      []logging.LogEntry

	returnSet bool
	traversed bool
	completed bool
}

func (t *Tree) newRecord(name string, ancestry []string, parent int) int {
	idx := len(t.records)
	t.records = append(t.records, &record{
		callID:   uuid.NewString(),
		name:     name,
		ancestry: ancestry,
		parent:   parent,
	})
	if parent >= 0 {
		p := t.records[parent]
		p.children = append(p.children, idx)
	}
	return idx
}

// Node is a handle to one step record in the arena.
type Node struct {
	tree *Tree
	idx  int
}

func (n Node) rec() *record {
	return n.tree.records[n.idx]
}

// mustBeCompleted guards every accessor on fields that are only meaningful
// once the record is immutable. Reading earlier is a programming defect.
func (n Node) mustBeCompleted(field string) {
	if !n.rec().completed {
		panic(fmt.Sprintf("steps: reading %s of step %q before completion", field, n.rec().name))
	}
}

// Name returns the step's name.
func (n Node) Name() string { return n.rec().name }

// CallID returns the unique id of this step invocation.
func (n Node) CallID() string { return n.rec().callID }

// Ancestry returns the names of the enclosing steps, outermost first.
func (n Node) Ancestry() []string { return n.rec().ancestry }

// Completed reports whether the step's scope has exited and its return
// value has been submitted.
func (n Node) Completed() bool { return n.rec().completed }

// Parent returns the enclosing step, if any.
func (n Node) Parent() (Node, bool) {
	if n.rec().parent < 0 {
		return Node{}, false
	}
	return Node{tree: n.tree, idx: n.rec().parent}, true
}

// Children returns the nested steps in execution order.
func (n Node) Children() []Node {
	rec := n.rec()
	children := make([]Node, len(rec.children))
	for i, idx := range rec.children {
		children[i] = Node{tree: n.tree, idx: idx}
	}
	return children
}

// StartTime returns when step execution began. Panics before completion.
func (n Node) StartTime() time.Time {
	n.mustBeCompleted("start time")
	return n.rec().start
}

// EndTime returns when step execution ended. Panics before completion.
func (n Node) EndTime() time.Time {
	n.mustBeCompleted("end time")
	return n.rec().end
}

// ReturnValue returns what the step body returned. Panics before completion.
func (n Node) ReturnValue() interface{} {
	n.mustBeCompleted("return value")
	return n.rec().returned
}

// Err returns the error that escaped the step body, if any. Panics before
// completion.
func (n Node) Err() error {
	n.mustBeCompleted("error")
	return n.rec().err
}

// Log returns the entries captured while the step was executing. Panics
// before completion.
func (n Node) Log() []logging.LogEntry {
	n.mustBeCompleted("log")
	return n.rec().log
}

// Result computes the step's merged verdict: the step's own inferred result
// merged with every child's result, worst wins. Panics before completion.
func (n Node) Result() result.TestResult {
	n.mustBeCompleted("result")
	rec := n.rec()
	merged := result.Infer(rec.returned, rec.err)
	for _, child := range n.Children() {
		merged = merged.Merge(child.Result())
	}
	return merged
}

// ResultInfo renders the step and its subtree. Panics before completion.
func (n Node) ResultInfo() result.StepResultInfo {
	rec := n.rec()
	children := n.Children()
	info := result.StepResultInfo{
		Name:     rec.name,
		Ancestry: append([]string(nil), rec.ancestry...),
		Result:   n.Result(),
		CallID:   rec.callID,
		Start:    n.StartTime(),
		End:      n.EndTime(),
		Returned: n.ReturnValue(),
		Log:      n.Log(),
		Err:      rec.err,
		Children: make([]result.StepResultInfo, 0, len(children)),
	}
	for _, child := range children {
		info.Children = append(info.Children, child.ResultInfo())
	}
	return info
}
