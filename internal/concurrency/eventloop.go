// File: internal/concurrency/eventloop.go
// Package concurrency implements the per-subscription poll loop.
// The loop owns one goroutine, checks its stop channel every iteration and
// hands the fragment count of each poll to its idle strategy.

package concurrency

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bus/api"
)

// Poller is the part of a subscription a poll loop drives.
type Poller interface {
	Poll(handler api.FragmentHandler, fragmentLimit int) int
}

// LoopOption configures a PollLoop.
type LoopOption func(*PollLoop)

// WithFragmentLimit overrides the per-poll fragment ceiling.
func WithFragmentLimit(n int) LoopOption {
	return func(l *PollLoop) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithCPU pins the loop goroutine's OS thread to cpu. Negative disables.
func WithCPU(cpu int) LoopOption {
	return func(l *PollLoop) { l.cpu = cpu }
}

// WithPanicHandler receives panics raised by the fragment handler.
// The loop keeps running after a recovered panic.
func WithPanicHandler(fn func(error)) LoopOption {
	return func(l *PollLoop) { l.onPanic = fn }
}

// WithPinErrorHandler receives the error when CPU pinning fails.
func WithPinErrorHandler(fn func(error)) LoopOption {
	return func(l *PollLoop) { l.onPinErr = fn }
}

// PollLoop repeatedly polls one subscription until stopped.
type PollLoop struct {
	poller   Poller
	handler  api.FragmentHandler
	idle     api.IdleStrategy
	limit    int
	cpu      int
	onPanic  func(error)
	onPinErr func(error)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	running  int32

	polls     atomic.Int64
	fragments atomic.Int64
	panics    atomic.Int64
}

// NewPollLoop creates a stopped loop.
func NewPollLoop(p Poller, h api.FragmentHandler, idle api.IdleStrategy, opts ...LoopOption) *PollLoop {
	if idle == nil {
		idle = BusySpinIdle{}
	}
	l := &PollLoop{
		poller:  p,
		handler: h,
		idle:    idle,
		limit:   api.FragmentLimit,
		cpu:     -1,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start spawns the loop goroutine and returns immediately.
func (l *PollLoop) Start() error {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return ErrLoopStarted
	}
	go l.run()
	return nil
}

// Stop signals the loop and waits for its goroutine to exit. Stop on a
// loop that was never started returns at once.
func (l *PollLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if atomic.LoadInt32(&l.running) == 1 {
		<-l.doneCh
	}
}

// Done is closed when the loop goroutine exits.
func (l *PollLoop) Done() <-chan struct{} { return l.doneCh }

// Idle returns the strategy the loop applies between polls.
func (l *PollLoop) Idle() api.IdleStrategy { return l.idle }

// Polls returns the number of completed poll calls.
func (l *PollLoop) Polls() int64 { return l.polls.Load() }

// Stats returns basic loop metrics.
func (l *PollLoop) Stats() map[string]int64 {
	return map[string]int64{
		"polls":     l.polls.Load(),
		"fragments": l.fragments.Load(),
		"panics":    l.panics.Load(),
	}
}

func (l *PollLoop) run() {
	defer close(l.doneCh)
	if l.cpu >= 0 {
		// Left locked: the pinned thread exits with the goroutine.
		runtime.LockOSThread()
		if err := PinCurrentThread(l.cpu); err != nil && l.onPinErr != nil {
			l.onPinErr(err)
		}
	}
	deliver := l.safeHandler()
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		n := l.poller.Poll(deliver, l.limit)
		l.polls.Add(1)
		if n > 0 {
			l.fragments.Add(int64(n))
		}
		l.idle.Idle(n)
	}
}

func (l *PollLoop) safeHandler() api.FragmentHandler {
	return func(buf []byte, hdr api.Header) {
		defer func() {
			if r := recover(); r != nil {
				l.panics.Add(1)
				if l.onPanic != nil {
					l.onPanic(fmt.Errorf("fragment handler panic: %v", r))
				}
			}
		}()
		l.handler(buf, hdr)
	}
}
