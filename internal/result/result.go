// Package result implements the three-valued test verdict and its merge law,
// together with the rendered result types handed to recovery and result
// handler callbacks.
package result

import (
	"errors"
	"fmt"
	"time"

	"testrig/pkg/logging"
)

// TestResult is the verdict of a test step or a test sequence.
type TestResult int

const (
	// Success means the step returned normally and nothing below it failed.
	Success TestResult = iota
	// Failed means a test assertion did not hold.
	Failed
	// Exception means an unexpected error interrupted execution.
	Exception
)

// String makes TestResult satisfy the fmt.Stringer interface.
func (r TestResult) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	case Exception:
		return "EXCEPTION"
	default:
		return fmt.Sprintf("TestResult(%d)", int(r))
	}
}

// Passed reports whether the result is Success.
func (r TestResult) Passed() bool {
	return r == Success
}

// Merge combines two results; the worse one wins. The precedence order is
// Success < Failed < Exception.
func (r TestResult) Merge(other TestResult) TestResult {
	if other > r {
		return other
	}
	return r
}

// FailedError is the assertion-style failure. A step that returns it (or an
// error wrapping it) is classified as Failed rather than Exception.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "test failed: " + e.Reason
}

// Fail creates an assertion-style failure error.
func Fail(format string, args ...interface{}) error {
	return &FailedError{Reason: fmt.Sprintf(format, args...)}
}

// CustomResult lets a test step return a recognized verdict along with data.
// When a step returns a CustomResult, verdict inference is bypassed and
// Result is used verbatim; Returned is what callers of the step observe.
type CustomResult struct {
	Result   TestResult
	Returned interface{}
}

// Infer derives a TestResult from a step's return value and error.
//
// A returned TestResult or CustomResult carries an explicit verdict and is
// used verbatim. Otherwise an assertion-style failure maps to Failed, any
// other error to Exception, and no error to Success.
func Infer(returned interface{}, err error) TestResult {
	switch v := returned.(type) {
	case TestResult:
		return v
	case *CustomResult:
		return v.Result
	case CustomResult:
		return v.Result
	}
	if err != nil {
		var failed *FailedError
		if errors.As(err, &failed) {
			return Failed
		}
		return Exception
	}
	return Success
}

// Unwrap strips the CustomResult envelope from a step's return value. Step
// callers observe the payload, not the envelope.
func Unwrap(returned interface{}) interface{} {
	switch v := returned.(type) {
	case *CustomResult:
		return v.Returned
	case CustomResult:
		return v.Returned
	}
	return returned
}

// StepResultInfo is the rendered, immutable result of one executed step.
type StepResultInfo struct {
	Name     string
	Ancestry []string
	Result   TestResult
	CallID   string
	Start    time.Time
	End      time.Time
	Returned interface{}
	Log      []logging.LogEntry
	Children []StepResultInfo
	Err      error
}

// Duration is how long the step executed.
func (s StepResultInfo) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Passed reports whether the step and everything below it succeeded.
func (s StepResultInfo) Passed() bool {
	return s.Result == Success
}

// Info is the finished result of one test sequence run, handed to the
// recovery and result handler callbacks as the test outcome.
type Info struct {
	Steps  []StepResultInfo
	Result TestResult
}

// Passed reports whether the whole sequence succeeded.
func (i Info) Passed() bool {
	return i.Result == Success
}
