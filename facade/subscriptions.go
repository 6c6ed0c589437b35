// File: facade/subscriptions.go
// Author: momentics <momentics@gmail.com>
//
// Subscription handles and their poll loops. Each slot owns at most one
// loop; the loop goroutine never touches the tables.

package facade

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/internal/concurrency"
	"github.com/momentics/hioload-bus/internal/handles"
)

type subscriptionSlot struct {
	sub api.Subscription

	mu   sync.Mutex
	loop *concurrency.PollLoop
}

// stopLoop stops and forgets the running loop. Reports whether one ran.
func (s *subscriptionSlot) stopLoop() bool {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()
	if loop == nil {
		return false
	}
	loop.Stop()
	return true
}

func (s *subscriptionSlot) polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

// Close stops the loop before closing the subscription it polls.
func (s *subscriptionSlot) Close() error {
	s.stopLoop()
	return s.sub.Close()
}

// AddSubscription registers a subscription and stores it at the lowest
// free handle. A full table returns handles.Invalid and api.ErrTableFull
// and leaves the table unchanged.
func (b *Bus) AddSubscription(ctx context.Context, channel string, streamID int32) (handles.Handle, error) {
	sess, err := b.session()
	if err != nil {
		return handles.Invalid, err
	}
	if b.subs.Len() >= b.subs.Cap() {
		b.metrics.Add("subscriptions.rejected_full", 1)
		return handles.Invalid, api.ErrTableFull
	}
	sub, err := sess.AddSubscription(ctx, channel, streamID)
	if err != nil {
		b.log.Error("add subscription failed", zap.String("channel", channel), zap.Int32("stream_id", streamID), zap.Error(err))
		return handles.Invalid, err
	}
	h, err := b.subs.Insert(&subscriptionSlot{sub: sub})
	if err != nil {
		_ = sub.Close()
		b.metrics.Add("subscriptions.rejected_full", 1)
		return handles.Invalid, err
	}
	b.metrics.Add("subscriptions.added", 1)
	b.log.Debug("subscription added",
		zap.Int32("handle", int32(h)),
		zap.String("channel", channel),
		zap.Int32("stream_id", streamID))
	return h, nil
}

// StartPoll starts the background loop for h and returns at once. cb gets
// each payload in arrival order; the slice is only valid during the call.
// idleIntervalMS 0 busy-spins, a positive value sleeps that long after an
// empty poll, a negative value backs off adaptively. A slot already being
// polled returns api.ErrAlreadyPolling.
func (b *Bus) StartPoll(h handles.Handle, cb api.PayloadHandler, idleIntervalMS int) error {
	if cb == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "nil poll callback", nil).WithContext("handle", h)
	}
	return b.subs.With(h, func(s *subscriptionSlot) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loop != nil {
			return fmt.Errorf("%w: handle %d", api.ErrAlreadyPolling, h)
		}
		idle := concurrency.NewIdleStrategy(idleIntervalMS)
		opts := []concurrency.LoopOption{
			concurrency.WithPanicHandler(func(err error) {
				b.metrics.Add("poll.callback_panics", 1)
				b.reportError(fmt.Errorf("subscription %d: %w", h, err))
			}),
			concurrency.WithPinErrorHandler(func(err error) {
				b.log.Warn("poll loop cpu pinning failed", zap.Int32("handle", int32(h)), zap.Error(err))
			}),
		}
		if cpu, ok := b.cpuFor(h); ok {
			opts = append(opts, concurrency.WithCPU(cpu))
		}
		loop := concurrency.NewPollLoop(s.sub, func(buf []byte, _ api.Header) { cb(buf) }, idle, opts...)
		if err := loop.Start(); err != nil {
			return err
		}
		s.loop = loop
		b.metrics.Add("poll_loops.started", 1)
		b.log.Info("poll loop started",
			zap.Int32("handle", int32(h)),
			zap.String("idle", idle.Name()),
			zap.Int("idle_interval_ms", idleIntervalMS))
		return nil
	})
}

// StopPoll stops the loop for h and waits for its goroutine to exit.
// Must not be called from the poll callback itself.
func (b *Bus) StopPoll(h handles.Handle) error {
	return b.subs.With(h, func(s *subscriptionSlot) error {
		if !s.stopLoop() {
			return fmt.Errorf("%w: handle %d", api.ErrNotPolling, h)
		}
		b.metrics.Add("poll_loops.stopped", 1)
		b.log.Info("poll loop stopped", zap.Int32("handle", int32(h)))
		return nil
	})
}

// IsPolling reports whether a loop is running for h.
func (b *Bus) IsPolling(h handles.Handle) (bool, error) {
	var out bool
	err := b.subs.With(h, func(s *subscriptionSlot) error {
		out = s.polling()
		return nil
	})
	return out, err
}

// RemoveSubscription stops the loop for h, if any, closes the
// subscription and frees the slot.
func (b *Bus) RemoveSubscription(h handles.Handle) error {
	if err := b.subs.Remove(h); err != nil {
		return err
	}
	b.metrics.Add("subscriptions.removed", 1)
	return nil
}

func (b *Bus) cpuFor(h handles.Handle) (int, bool) {
	cpus := b.cfg.PollCPUAffinity
	if len(cpus) == 0 {
		return 0, false
	}
	return cpus[int(h)%len(cpus)], true
}

func (b *Bus) runningLoops() int {
	n := 0
	b.subs.Range(func(_ handles.Handle, s *subscriptionSlot) {
		if s.polling() {
			n++
		}
	})
	return n
}
