package sequence

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/internal/logcap"
	"testrig/internal/result"
	"testrig/internal/steps"
	"testrig/pkg/logging"
)

func setup(t *testing.T) (*Supervision, *steps.Supervisor) {
	t.Helper()
	logging.Init(logging.LevelDebug, io.Discard)
	capture := logcap.New()
	t.Cleanup(capture.Close)
	return Setup(capture)
}

func runStep(sup *steps.Supervisor, step steps.Step, fn func() (interface{}, error)) steps.Node {
	sv := sup.Supervise(step)
	sv.Enter()
	ret, err := fn()
	if err != nil {
		ret = nil
	}
	sv.SubmitReturnValue(ret)
	sv.Exit(err)
	return sv.Node()
}

func TestCollectsOnlyRootSteps(t *testing.T) {
	sv, sup := setup(t)

	sv.Enter()
	runStep(sup, steps.Step{Name: "first"}, func() (interface{}, error) {
		runStep(sup, steps.Step{Name: "nested"}, func() (interface{}, error) { return nil, nil })
		return nil, nil
	})
	runStep(sup, steps.Step{Name: "second"}, func() (interface{}, error) { return nil, nil })
	sv.SubmitReturnValue(nil)
	sv.Exit()

	roots := sv.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "first", roots[0].Name())
	assert.Equal(t, "second", roots[1].Name())
}

func TestResult_GatedOnScopeExit(t *testing.T) {
	sv, _ := setup(t)

	sv.Enter()
	assert.Panics(t, func() { sv.Result() })
	assert.Panics(t, func() { sv.ResultInfo() })

	sv.SubmitReturnValue("data")
	sv.Exit()
	assert.NotPanics(t, func() { sv.Result() })
}

func TestResult_MergesRootsAndReturnValue(t *testing.T) {
	tests := []struct {
		name        string
		stepResults []error
		returned    interface{}
		expected    result.TestResult
	}{
		{"all pass", []error{nil, nil}, "data", result.Success},
		{"one failed step", []error{nil, result.Fail("nope")}, "data", result.Failed},
		{"explicit failed return", []error{nil}, result.Failed, result.Failed},
		{"no steps, plain return", nil, map[string]int{"x": 1}, result.Success},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sv, sup := setup(t)
			sv.Enter()
			for i, stepErr := range test.stepResults {
				stepErr := stepErr
				runStep(sup, steps.Step{Name: "step"}, func() (interface{}, error) {
					_ = i
					return nil, stepErr
				})
			}
			sv.SubmitReturnValue(test.returned)
			sv.Exit()
			assert.Equal(t, test.expected, sv.Result())
		})
	}
}

func TestResult_AbortedSequenceHasNilReturnValue(t *testing.T) {
	sv, sup := setup(t)

	sv.Enter()
	runStep(sup, steps.Step{Name: "before abort"}, func() (interface{}, error) {
		return nil, result.Fail("limit check")
	})
	// The sequence ended early; no return value was ever submitted.
	sv.Exit()

	assert.Nil(t, sv.ReturnValue())
	assert.Equal(t, result.Failed, sv.Result())

	info := sv.ResultInfo()
	assert.Equal(t, result.Failed, info.Result)
	require.Len(t, info.Steps, 1)
	assert.Equal(t, "before abort", info.Steps[0].Name)
}

func TestResultInfo_RendersExecutionOrder(t *testing.T) {
	sv, sup := setup(t)

	sv.Enter()
	runStep(sup, steps.Step{Name: "a"}, func() (interface{}, error) { return 1, nil })
	runStep(sup, steps.Step{Name: "b"}, func() (interface{}, error) {
		runStep(sup, steps.Step{Name: "b1"}, func() (interface{}, error) { return nil, nil })
		return 2, nil
	})
	sv.SubmitReturnValue("seq")
	sv.Exit()

	info := sv.ResultInfo()
	assert.Equal(t, result.Success, info.Result)
	require.Len(t, info.Steps, 2)
	assert.Equal(t, "a", info.Steps[0].Name)
	assert.Equal(t, "b", info.Steps[1].Name)
	require.Len(t, info.Steps[1].Children, 1)
	assert.Equal(t, "b1", info.Steps[1].Children[0].Name)
}
