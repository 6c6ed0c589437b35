// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrLoopStarted indicates Start was called on a running loop
	ErrLoopStarted = errors.New("poll loop already started")

	// ErrAffinityNotSupported indicates CPU affinity is not supported on this platform
	ErrAffinityNotSupported = errors.New("CPU affinity not supported")

	// ErrInvalidCPU indicates a CPU index outside the online set
	ErrInvalidCPU = errors.New("invalid cpu index")
)
