// Package capability implements the argument binding that wires externally
// authored callbacks into the engine's fixed lifecycle slots. A callback does
// not have to match a slot's exact call shape; instead it declares, via a
// typed request descriptor, which of the fixed capabilities it consumes and
// under which parameter names. Binding is validated once at registration
// time; invocation is a plain name translation with no further inspection.
package capability

import "fmt"

// Capability names a semantic input a callback may request from its slot.
// The set is small, fixed and closed.
type Capability string

const (
	// ExitScope is the resource scope a setup callback registers cleanup on.
	ExitScope Capability = "exit_scope"
	// SystemSetupResult is the value returned by the system setup callback.
	SystemSetupResult Capability = "system_setup_result"
	// UutSetupResult is the value returned by the UUT setup callback.
	UutSetupResult Capability = "uut_setup_result"
	// SequenceResult is the value returned by the test sequence callback.
	SequenceResult Capability = "sequence_result"
	// TestOutcome is the rendered result tree of the finished sequence.
	TestOutcome Capability = "test_outcome"
)

// Known reports whether c is one of the fixed capabilities.
func (c Capability) Known() bool {
	switch c {
	case ExitScope, SystemSetupResult, UutSetupResult, SequenceResult, TestOutcome:
		return true
	}
	return false
}

// Request declares that a callback consumes one capability under its own
// parameter name. At most one request per capability is allowed.
type Request struct {
	// Param is the callback's own name for the value; it is the key under
	// which the value appears in the Args map at invocation time.
	Param string
	// Capability is the semantic input being requested.
	Capability Capability
}

// Args carries the bound capability values into a callback, keyed by the
// callback's own parameter names.
type Args map[string]interface{}

// Func is the call shape of every registered callback.
type Func func(args Args) (interface{}, error)

// BindingError reports an unsupportable callback descriptor. Binding errors
// are fatal, raised at registration time and never retried.
type BindingError struct {
	Slot   string
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("cannot bind callback to slot %s: %s", e.Slot, e.Reason)
}

// Binding maps each requested capability to the callback's parameter name.
// It is computed once at registration time.
type Binding map[Capability]string

// Bind validates a callback's requests against the capabilities a slot
// supplies and produces the binding table. It fails when a request names an
// unknown capability, a capability the slot does not supply, an empty or
// duplicate parameter name, or when the same capability is requested twice.
func Bind(slot string, supplies []Capability, requests []Request) (Binding, error) {
	supplied := make(map[Capability]bool, len(supplies))
	for _, c := range supplies {
		supplied[c] = true
	}

	binding := make(Binding, len(requests))
	params := make(map[string]bool, len(requests))
	for _, req := range requests {
		if req.Param == "" {
			return nil, &BindingError{Slot: slot, Reason: "request with empty parameter name"}
		}
		if !req.Capability.Known() {
			return nil, &BindingError{
				Slot:   slot,
				Reason: fmt.Sprintf("unknown capability %q requested by parameter %q", req.Capability, req.Param),
			}
		}
		if !supplied[req.Capability] {
			return nil, &BindingError{
				Slot:   slot,
				Reason: fmt.Sprintf("capability %q requested by parameter %q is not supplied by this slot", req.Capability, req.Param),
			}
		}
		if params[req.Param] {
			return nil, &BindingError{
				Slot:   slot,
				Reason: fmt.Sprintf("parameter %q declared more than once", req.Param),
			}
		}
		if _, dup := binding[req.Capability]; dup {
			return nil, &BindingError{
				Slot:   slot,
				Reason: fmt.Sprintf("capability %q requested on more than one parameter", req.Capability),
			}
		}
		params[req.Param] = true
		binding[req.Capability] = req.Param
	}
	return binding, nil
}

// Invoke translates the capability-keyed values into the callback's own
// parameter names and calls it. A bound capability missing from values is an
// internal consistency violation: registration already guaranteed that the
// slot supplies it, so the call site failed to pass it.
func (b Binding) Invoke(fn Func, values map[Capability]interface{}) (interface{}, error) {
	args := make(Args, len(b))
	for cap, param := range b {
		value, ok := values[cap]
		if !ok {
			panic(fmt.Sprintf("capability: bound capability %q not supplied at call time", cap))
		}
		args[param] = value
	}
	return fn(args)
}
