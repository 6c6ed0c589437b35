// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that own poll loops or
// driver connections and must release them in order.
type GracefulShutdown interface {
	// Shutdown stops background loops, closes endpoints and releases the
	// driver connection. Safe to call more than once.
	Shutdown() error
}
