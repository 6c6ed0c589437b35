// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-bus components.

package benchmarks

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/facade"
	"github.com/momentics/hioload-bus/internal/concurrency"
	"github.com/momentics/hioload-bus/internal/handles"
	"github.com/momentics/hioload-bus/pool"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// BenchmarkStagingPool measures acquire/stage/release of publish scratch.
func BenchmarkStagingPool(b *testing.B) {
	sp := pool.NewStagingPool()
	msg := make([]byte, api.MaxPayload)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s := sp.Acquire()
			s.Stage(msg)
			sp.Release(s)
		}
	})
}

// BenchmarkRingBufferThroughput measures the SPSC ring used by UDP images.
func BenchmarkRingBufferThroughput(b *testing.B) {
	ring := concurrency.NewRingBuffer[int](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !ring.Enqueue(i) {
			ring.Dequeue()
			ring.Enqueue(i)
		}
	}
}

// BenchmarkHandleLookup measures the read-locked slot access on the
// publish path.
func BenchmarkHandleLookup(b *testing.B) {
	t := handles.NewTable[nopCloser](api.PublicationCapacity)
	for i := 0; i < api.PublicationCapacity; i++ {
		t.Insert(nopCloser{})
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		h := handles.Handle(0)
		for pb.Next() {
			_ = t.With(h, func(nopCloser) error { return nil })
			h = (h + 1) % api.PublicationCapacity
		}
	})
}

// BenchmarkPublishIPC measures Publish through the facade with a busy-spin
// subscriber draining the stream.
func BenchmarkPublishIPC(b *testing.B) {
	cfg := facade.DefaultConfig()
	cfg.Dir = b.TempDir()
	cfg.TermLength = 1 << 16
	bus, err := facade.New(cfg, facade.WithLogger(zap.NewNop()))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if err := bus.Initialize(ctx); err != nil {
		b.Fatal(err)
	}
	defer bus.Destroy()

	sh, err := bus.AddSubscription(ctx, "aeron:ipc", 1)
	if err != nil {
		b.Fatal(err)
	}
	ph, err := bus.AddPublication(ctx, "aeron:ipc", 1)
	if err != nil {
		b.Fatal(err)
	}
	if err := bus.StartPoll(sh, func([]byte) {}, 0); err != nil {
		b.Fatal(err)
	}

	msg := make([]byte, 256)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for {
			res, err := bus.Publish(ph, msg)
			if err != nil {
				b.Fatal(err)
			}
			if res > 0 {
				break
			}
		}
	}
}
