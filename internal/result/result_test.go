package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allResults = []TestResult{Success, Failed, Exception}

func TestMerge_WorstWins(t *testing.T) {
	tests := []struct {
		a, b     TestResult
		expected TestResult
	}{
		{Success, Success, Success},
		{Success, Failed, Failed},
		{Failed, Success, Failed},
		{Failed, Exception, Exception},
		{Exception, Failed, Exception},
		{Success, Exception, Exception},
		{Exception, Exception, Exception},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%v+%v", test.a, test.b), func(t *testing.T) {
			assert.Equal(t, test.expected, test.a.Merge(test.b))
		})
	}
}

func TestMerge_Laws(t *testing.T) {
	max := func(a, b TestResult) TestResult {
		if b > a {
			return b
		}
		return a
	}

	for _, a := range allResults {
		// idempotent
		assert.Equal(t, a, a.Merge(a))
		for _, b := range allResults {
			// commutative and equal to max under the precedence order
			assert.Equal(t, b.Merge(a), a.Merge(b))
			assert.Equal(t, max(a, b), a.Merge(b))
			for _, c := range allResults {
				// associative
				assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
			}
		}
	}
}

func TestInfer(t *testing.T) {
	wrapped := fmt.Errorf("step: %w", Fail("limit exceeded"))

	tests := []struct {
		name     string
		returned interface{}
		err      error
		expected TestResult
	}{
		{"no return, no error", nil, nil, Success},
		{"plain data", 42, nil, Success},
		{"assertion failure", nil, Fail("voltage out of range"), Failed},
		{"wrapped assertion failure", nil, wrapped, Failed},
		{"unexpected error", nil, errors.New("i2c bus stuck"), Exception},
		{"explicit verdict", Failed, nil, Failed},
		{"explicit verdict beats error", Success, errors.New("ignored"), Success},
		{"custom result", &CustomResult{Result: Failed, Returned: "data"}, nil, Failed},
		{"custom result by value", CustomResult{Result: Exception}, nil, Exception},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Infer(test.returned, test.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	assert.Equal(t, 7, Unwrap(7))
	assert.Nil(t, Unwrap(nil))
	assert.Equal(t, "payload", Unwrap(&CustomResult{Result: Failed, Returned: "payload"}))
	assert.Equal(t, "payload", Unwrap(CustomResult{Result: Success, Returned: "payload"}))
}

func TestTestResult_String(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success.String())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, "EXCEPTION", Exception.String())
}

func TestPassed(t *testing.T) {
	assert.True(t, Success.Passed())
	assert.False(t, Failed.Passed())
	assert.False(t, Exception.Passed())

	info := Info{Result: Success}
	assert.True(t, info.Passed())
	info.Result = Exception
	assert.False(t, info.Passed())
}
