package concurrency

import (
	"runtime"
	"testing"
)

func TestRingBufferRoundsUpAndFills(t *testing.T) {
	r := NewRingBuffer[int](5)
	if r.Cap() != 8 {
		t.Fatalf("expected capacity 8, got %d", r.Cap())
	}
	for i := 0; i < 8; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("Enqueue failed at %d", i)
		}
	}
	if r.Enqueue(99) {
		t.Fatal("Enqueue succeeded on a full ring")
	}
	for i := 0; i < 8; i++ {
		v, ok := r.Dequeue()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatal("Dequeue succeeded on an empty ring")
	}
}

func TestRingBufferSPSC(t *testing.T) {
	r := NewRingBuffer[int](64)
	const items = 10000
	go func() {
		for i := 0; i < items; i++ {
			for !r.Enqueue(i) {
				runtime.Gosched()
			}
		}
	}()
	for want := 0; want < items; {
		v, ok := r.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		if v != want {
			t.Fatalf("expected %d, got %d", want, v)
		}
		want++
	}
}
