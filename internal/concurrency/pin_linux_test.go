//go:build linux

package concurrency

import (
	"errors"
	"runtime"
	"testing"
)

func TestPinCurrentThreadRejectsBadCPU(t *testing.T) {
	for _, cpu := range []int{-1, runtime.NumCPU()} {
		if err := PinCurrentThread(cpu); !errors.Is(err, ErrInvalidCPU) {
			t.Errorf("cpu %d: want ErrInvalidCPU, got %v", cpu, err)
		}
	}
}

func TestPinCurrentThreadNarrowsAffinity(t *testing.T) {
	allowed, err := CurrentAffinity()
	if err != nil || len(allowed) == 0 {
		t.Skipf("affinity unavailable: %v", err)
	}
	target := allowed[len(allowed)-1]

	type result struct {
		cpus []int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		// Exits locked so the pinned thread is discarded.
		runtime.LockOSThread()
		if err := PinCurrentThread(target); err != nil {
			done <- result{err: err}
			return
		}
		cpus, err := CurrentAffinity()
		done <- result{cpus, err}
	}()
	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	if len(r.cpus) != 1 || r.cpus[0] != target {
		t.Fatalf("affinity after pin = %v, want [%d]", r.cpus, target)
	}
}
