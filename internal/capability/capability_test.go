package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	supplies := []Capability{SystemSetupResult, UutSetupResult}

	tests := []struct {
		name     string
		requests []Request
		wantErr  string
	}{
		{
			name: "all requests supplied",
			requests: []Request{
				{Param: "settings", Capability: SystemSetupResult},
				{Param: "uut", Capability: UutSetupResult},
			},
		},
		{
			name:     "no requests",
			requests: nil,
		},
		{
			name: "subset of supplies",
			requests: []Request{
				{Param: "uut", Capability: UutSetupResult},
			},
		},
		{
			name: "capability not supplied by slot",
			requests: []Request{
				{Param: "outcome", Capability: TestOutcome},
			},
			wantErr: "not supplied by this slot",
		},
		{
			name: "unknown capability",
			requests: []Request{
				{Param: "x", Capability: Capability("telemetry")},
			},
			wantErr: "unknown capability",
		},
		{
			name: "same capability twice",
			requests: []Request{
				{Param: "a", Capability: UutSetupResult},
				{Param: "b", Capability: UutSetupResult},
			},
			wantErr: "more than one parameter",
		},
		{
			name: "duplicate parameter name",
			requests: []Request{
				{Param: "a", Capability: UutSetupResult},
				{Param: "a", Capability: SystemSetupResult},
			},
			wantErr: "declared more than once",
		},
		{
			name: "empty parameter name",
			requests: []Request{
				{Param: "", Capability: UutSetupResult},
			},
			wantErr: "empty parameter name",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			binding, err := Bind("TestSequence", supplies, test.requests)
			if test.wantErr != "" {
				require.Error(t, err)
				var bindErr *BindingError
				require.ErrorAs(t, err, &bindErr)
				assert.Equal(t, "TestSequence", bindErr.Slot)
				assert.Contains(t, err.Error(), test.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, binding, len(test.requests))
			for _, req := range test.requests {
				assert.Equal(t, req.Param, binding[req.Capability])
			}
		})
	}
}

func TestInvoke_TranslatesNames(t *testing.T) {
	binding, err := Bind("TestSequence",
		[]Capability{SystemSetupResult, UutSetupResult},
		[]Request{
			{Param: "settings", Capability: SystemSetupResult},
			{Param: "serial", Capability: UutSetupResult},
		})
	require.NoError(t, err)

	var got Args
	ret, err := binding.Invoke(func(args Args) (interface{}, error) {
		got = args
		return "done", nil
	}, map[Capability]interface{}{
		SystemSetupResult: map[string]int{"id": 1},
		UutSetupResult:    "SN-X",
	})

	require.NoError(t, err)
	assert.Equal(t, "done", ret)
	assert.Equal(t, Args{
		"settings": map[string]int{"id": 1},
		"serial":   "SN-X",
	}, got)
}

func TestInvoke_IgnoresUnrequestedValues(t *testing.T) {
	binding, err := Bind("UutSetup",
		[]Capability{SystemSetupResult, ExitScope},
		[]Request{{Param: "settings", Capability: SystemSetupResult}})
	require.NoError(t, err)

	_, err = binding.Invoke(func(args Args) (interface{}, error) {
		assert.Len(t, args, 1)
		return nil, nil
	}, map[Capability]interface{}{
		SystemSetupResult: 1,
		ExitScope:         2,
	})
	require.NoError(t, err)
}

func TestInvoke_MissingBoundValuePanics(t *testing.T) {
	binding, err := Bind("TestSequence",
		[]Capability{UutSetupResult},
		[]Request{{Param: "serial", Capability: UutSetupResult}})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = binding.Invoke(func(args Args) (interface{}, error) {
			return nil, nil
		}, map[Capability]interface{}{})
	})
}
