// Package callbacks holds the six fixed lifecycle slots at which integrators
// hook into a test system run, and the registry that validates and invokes
// them. Each slot accepts exactly one callback, bound once via the
// capability binder; the test sequence slot is the only mandatory one.
package callbacks

import (
	"fmt"

	"testrig/internal/capability"
	"testrig/pkg/logging"
)

// SlotName identifies one of the fixed lifecycle slots.
type SlotName string

const (
	SystemSetup        SlotName = "SystemSetup"
	TestBedPreparation SlotName = "TestBedPreparation"
	UutSetup           SlotName = "UutSetup"
	TestSequence       SlotName = "TestSequence"
	UutRecovery        SlotName = "UutRecovery"
	UutResultHandler   SlotName = "UutResultHandler"
)

// Callback pairs the function to invoke with its capability request
// descriptor. The descriptor replaces signature introspection: the
// integrator states explicitly which capabilities the function consumes.
type Callback struct {
	Fn       capability.Func
	Requests []capability.Request
}

// slot is one lifecycle slot. Created once at registry construction and
// mutated exactly once by registration.
type slot struct {
	name        SlotName
	description string
	mandatory   bool
	supplies    []capability.Capability

	bound   bool
	binding capability.Binding
	fn      capability.Func
}

// Registry holds all callback slots.
type Registry struct {
	slots map[SlotName]*slot
	order []SlotName
}

// NewRegistry creates a registry with all six slots unbound. The supplied
// capability sets per slot are fixed:
//
//	SystemSetup        {exit_scope}
//	TestBedPreparation {system_setup_result}
//	UutSetup           {system_setup_result, exit_scope}
//	TestSequence       {system_setup_result, uut_setup_result}
//	UutRecovery        {system_setup_result, uut_setup_result, sequence_result, test_outcome}
//	UutResultHandler   {system_setup_result, uut_setup_result, sequence_result, test_outcome}
func NewRegistry() *Registry {
	outcomeSet := []capability.Capability{
		capability.SystemSetupResult,
		capability.UutSetupResult,
		capability.SequenceResult,
		capability.TestOutcome,
	}
	slots := []*slot{
		{
			name:        SystemSetup,
			description: "System Setup",
			supplies:    []capability.Capability{capability.ExitScope},
		},
		{
			name:        TestBedPreparation,
			description: "Test Bed Preparation",
			supplies:    []capability.Capability{capability.SystemSetupResult},
		},
		{
			name:        UutSetup,
			description: "UUT Setup",
			supplies: []capability.Capability{
				capability.SystemSetupResult,
				capability.ExitScope,
			},
		},
		{
			name:        TestSequence,
			description: "Test Sequence",
			mandatory:   true,
			supplies: []capability.Capability{
				capability.SystemSetupResult,
				capability.UutSetupResult,
			},
		},
		{
			name:        UutRecovery,
			description: "UUT Recovery",
			supplies:    outcomeSet,
		},
		{
			name:        UutResultHandler,
			description: "UUT Result Handler",
			supplies:    outcomeSet,
		},
	}

	r := &Registry{slots: make(map[SlotName]*slot, len(slots))}
	for _, s := range slots {
		r.slots[s.name] = s
		r.order = append(r.order, s.name)
	}
	return r
}

// Register binds a callback to a slot. It fails if the slot is already
// bound or if the callback's capability requests cannot be bound; in both
// cases the existing binding is left untouched.
func (r *Registry) Register(name SlotName, cb Callback) error {
	s, ok := r.slots[name]
	if !ok {
		return fmt.Errorf("unknown callback slot %q", name)
	}
	if s.bound {
		return fmt.Errorf("slot %s already has a callback registered", name)
	}
	if cb.Fn == nil {
		return &capability.BindingError{Slot: string(name), Reason: "callback function is nil"}
	}

	binding, err := capability.Bind(string(name), s.supplies, cb.Requests)
	if err != nil {
		return err
	}

	s.binding = binding
	s.fn = cb.Fn
	s.bound = true
	logging.Debug("Registry", "registered %s callback (requests: %d)", name, len(cb.Requests))
	return nil
}

// Registered reports whether a callback is bound to the given slot.
func (r *Registry) Registered(name SlotName) bool {
	s, ok := r.slots[name]
	return ok && s.bound
}

// Check verifies that the registry can drive a run. A missing mandatory
// callback is fatal; missing optional callbacks are only warned about.
func (r *Registry) Check() error {
	for _, name := range r.order {
		s := r.slots[name]
		if s.bound {
			continue
		}
		if s.mandatory {
			return fmt.Errorf("no %s callback registered", s.description)
		}
		logging.Warn("Registry", "no %s callback registered", s.description)
	}
	return nil
}

// Invoke calls the callback bound to a slot with the given capability
// values. An unbound slot is a no-op returning nil. Values for capabilities
// the callback did not request are dropped by the binding.
func (r *Registry) Invoke(name SlotName, values map[capability.Capability]interface{}) (interface{}, error) {
	s, ok := r.slots[name]
	if !ok {
		return nil, fmt.Errorf("unknown callback slot %q", name)
	}
	if !s.bound {
		logging.Debug("Registry", "no callback registered for %s, skipping", name)
		return nil, nil
	}
	logging.Debug("Registry", "invoking %s callback", name)
	return s.binding.Invoke(s.fn, values)
}
