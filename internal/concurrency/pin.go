//go:build !linux
// +build !linux

// hioload-bus/internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
//
// Fallback for platforms without thread affinity support.

package concurrency

// PinCurrentThread is unsupported here; the caller keeps running unpinned.
func PinCurrentThread(cpuID int) error {
	return ErrAffinityNotSupported
}
