// Package logging provides structured logging for testrig with unified log
// handling and a capture fan-out used by the step supervision machinery.
//
// The package is built on Go's standard slog package and exposes a small
// printf-style API keyed by subsystem:
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//	logging.Info("Engine", "starting run")
//	logging.Error("Monitor", err, "worker %s died", name)
//
// # Log Levels
//
//   - Debug: detailed information for development and troubleshooting
//   - Info: general information about system operation
//   - Warn: conditions that deserve attention but do not stop a run
//   - Error: failures and exceptional conditions
//
// # Subsystem Organization
//
// Log entries carry a subsystem identifier for filtering:
//
//   - Bootstrap: process startup
//   - Config: configuration loading
//   - Engine: phase loop execution
//   - Registry: callback registration and invocation
//   - Steps: test step supervision
//   - Monitor: health monitoring
//   - Transfer: firmware transfer service
//
// # Capture Sinks
//
// Besides writing to the configured output, every entry is fanned out to the
// registered capture sinks. The step supervisor registers a sink per sequence
// run so that log entries can be attached to the step during which they were
// emitted:
//
//	remove := logging.RegisterSink(sink)
//	defer remove()
//
// # Thread Safety
//
// All functions are safe for concurrent use. Sinks must be safe for
// concurrent Capture calls; entries may originate from the engine loop, the
// health monitor and transfer workers at the same time.
package logging
