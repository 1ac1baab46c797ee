// Package control defines the error values used as cooperative control
// signals between steps, the sequence and the engine loop. Control signals
// are expected conditions that drive state transitions; they are never
// treated as test failures.
package control

import "errors"

// ErrQuit requests termination of the whole test system. It unwinds through
// step and phase boundaries uninterrupted; the engine converts it into the
// quit flag and ends the loop after the current iteration's cleanup.
var ErrQuit = errors.New("test system quit requested")

// AbortSequenceError terminates the running test sequence early. It is
// raised when an abort-on-error step fails and unwinds execution up to the
// sequence boundary, skipping remaining sibling steps.
type AbortSequenceError struct {
	Reason string
}

func (e *AbortSequenceError) Error() string {
	return "test sequence aborted: " + e.Reason
}

// AbortSequence creates a sequence-abort signal with the given reason.
func AbortSequence(reason string) error {
	return &AbortSequenceError{Reason: reason}
}

// IsAbort reports whether err is a sequence-abort signal.
func IsAbort(err error) bool {
	var abort *AbortSequenceError
	return errors.As(err, &abort)
}

// IsQuit reports whether err is a quit request.
func IsQuit(err error) bool {
	return errors.Is(err, ErrQuit)
}

// IsSignal reports whether err is any control signal. Control signals
// propagate through step boundaries uninterrupted, everything else is
// absorbed and recorded on the step.
func IsSignal(err error) bool {
	return IsQuit(err) || IsAbort(err)
}
