// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, logging setup, log-level hot reload and debug
// introspection for hioload-bus.
//
// Provides concurrent-safe state handling primitives including:
//   - Lock-free counters for hot paths (offers, fragments)
//   - zap logger construction with optional file rotation
//   - Runtime log level changes without restarting poll loops
//   - Debug probe registration and state export
package control
