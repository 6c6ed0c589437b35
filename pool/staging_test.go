package pool_test

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/pool"
)

func TestScratchIsAlignedAndSized(t *testing.T) {
	sp := pool.NewStagingPool()
	for i := 0; i < 32; i++ {
		s := sp.Acquire()
		b := s.Bytes()
		if len(b) != api.MaxPayload || cap(b) != api.MaxPayload {
			t.Fatalf("len=%d cap=%d, want %d", len(b), cap(b), api.MaxPayload)
		}
		if addr := uintptr(unsafe.Pointer(&b[0])); addr%pool.StagingAlignment != 0 {
			t.Fatalf("scratch at %#x not %d-byte aligned", addr, pool.StagingAlignment)
		}
		sp.Release(s)
	}
}

func TestStageBoundary(t *testing.T) {
	sp := pool.NewStagingPool()
	s := sp.Acquire()
	defer sp.Release(s)

	msg := bytes.Repeat([]byte{0xAB}, api.MaxPayload)
	staged := s.Stage(msg)
	if !bytes.Equal(staged, msg) {
		t.Fatal("full-size payload not staged intact")
	}
	if got := s.Stage([]byte("hello")); string(got) != "hello" {
		t.Fatalf("staged %q", got)
	}
}

func TestStagingStats(t *testing.T) {
	sp := pool.NewStagingPool()
	a := sp.Acquire()
	b := sp.Acquire()
	sp.Release(a)
	stats := sp.Stats()
	if stats["acquired"] != 2 || stats["released"] != 1 || stats["in_use"] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
	sp.Release(b)
	sp.Release(nil)
	if sp.Stats()["in_use"] != 0 {
		t.Fatalf("in_use not zero: %v", sp.Stats())
	}
}
