// Package logcap captures log entries per step-supervision scope. One
// Capture is shared by all steps of a sequence run; each nesting level opens
// a frame and collects the entries emitted while it is active. A parent
// frame also sees the entries of its children, since those were emitted
// during the parent's scope.
package logcap

import (
	"sync"

	"testrig/pkg/logging"
)

// Frame accumulates the log entries of one supervision scope.
type Frame struct {
	entries []logging.LogEntry
}

// Capture is the log capture collaborator for one sequence run. It registers
// itself as a logging sink on creation and must be closed when the run ends.
type Capture struct {
	mu     sync.Mutex
	frames []*Frame
	remove func()
}

// New creates a Capture and hooks it into the logging fan-out.
func New() *Capture {
	c := &Capture{}
	c.remove = logging.RegisterSink(c)
	return c
}

// Capture implements logging.Sink. Every active frame records the entry.
func (c *Capture) Capture(entry logging.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		f.entries = append(f.entries, entry)
	}
}

// Push opens a new capture frame for a supervision scope.
func (c *Capture) Push() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &Frame{}
	c.frames = append(c.frames, f)
	return f
}

// Pop closes the given frame and returns the entries captured while it was
// active. The frame must be the innermost one; a mismatch means the
// supervision scopes are unbalanced, which is a programming defect.
func (c *Capture) Pop(f *Frame) []logging.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 || c.frames[len(c.frames)-1] != f {
		panic("logcap: frame popped out of order")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return f.entries
}

// Close unhooks the capture from the logging fan-out.
func (c *Capture) Close() {
	if c.remove != nil {
		c.remove()
		c.remove = nil
	}
}
