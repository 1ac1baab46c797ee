// Package scope implements deferred resource release for engine runs. A
// Scope collects cleanup functions during a run or a UUT iteration and
// releases them in reverse order on every exit path.
package scope

import (
	"errors"
	"sync"

	"testrig/pkg/logging"
)

// Scope is a stack of cleanup functions. Callbacks that acquire resources
// push their release functions onto the scope they received; the engine
// closes the scope when the run (or iteration) ends, releasing in reverse
// acquisition order.
type Scope struct {
	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// New creates an empty scope.
func New() *Scope {
	return &Scope{}
}

// Defer registers a cleanup function. Functions run in reverse registration
// order when the scope is closed. Registering on a closed scope runs the
// function immediately.
func (s *Scope) Defer(fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logging.Warn("Engine", "cleanup registered on a closed scope, running immediately")
		if err := fn(); err != nil {
			logging.Error("Engine", err, "late cleanup failed")
		}
		return
	}
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// Close releases all registered resources in reverse order. Every closer
// runs even if earlier ones fail; their errors are joined. Close is
// idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closed reports whether the scope has been closed.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
