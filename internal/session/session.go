// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core session implementation with registration futures and teardown.

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
)

// Session is a live connection to a media driver.
type Session struct {
	sctx      Context
	log       *zap.Logger
	conn      api.DriverConn
	pending   *pendingStore
	startedAt time.Time

	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// Connect dials the driver for sctx.Dir. Failure is logged and returned;
// no session is created.
func Connect(ctx context.Context, sctx Context) (*Session, error) {
	sctx = sctx.withDefaults()
	log := sctx.Logger.With(zap.String("dir", sctx.Dir), zap.String("client", sctx.ClientName))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{
		sctx:      sctx,
		log:       log,
		pending:   newPendingStore(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	conn, err := sctx.Dialer(sctx.Dir, listener{s})
	if err != nil {
		log.Error("transport session initialization failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", api.ErrNotConnected, err)
	}
	s.conn = conn
	log.Info("transport session connected", zap.Int64("client_id", conn.ClientID()))
	return s, nil
}

// ClientID is the driver-assigned connection id.
func (s *Session) ClientID() int64 { return s.conn.ClientID() }

// ClientName is the host-visible name of this session.
func (s *Session) ClientName() string { return s.sctx.ClientName }

// Dir is the driver directory the session is attached to.
func (s *Session) Dir() string { return s.sctx.Dir }

// StartedAt is when the session connected.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// IsClosed reports whether Close was called.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// AddPublication registers a publication and waits for the driver to
// make it ready.
func (s *Session) AddPublication(ctx context.Context, channel string, streamID int32) (api.Publication, error) {
	if s.closed.Load() {
		return nil, api.ErrNotConnected
	}
	id, err := s.conn.AddPublication(channel, streamID)
	if err != nil {
		return nil, err
	}
	ep, err := s.await(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("add publication %s stream %d: %w", channel, streamID, err)
	}
	return ep.(api.Publication), nil
}

// AddSubscription registers a subscription and waits for the driver to
// make it ready.
func (s *Session) AddSubscription(ctx context.Context, channel string, streamID int32) (api.Subscription, error) {
	if s.closed.Load() {
		return nil, api.ErrNotConnected
	}
	id, err := s.conn.AddSubscription(channel, streamID)
	if err != nil {
		return nil, err
	}
	ep, err := s.await(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("add subscription %s stream %d: %w", channel, streamID, err)
	}
	return ep.(api.Subscription), nil
}

func (s *Session) await(ctx context.Context, id int64) (api.Closer, error) {
	timer := time.NewTimer(s.sctx.RegistrationTimeout)
	defer timer.Stop()

	var cause error
	select {
	case <-s.pending.watch(id):
		res := s.pending.take(id)
		return res.endpoint, res.err
	case <-timer.C:
		cause = api.ErrRegistrationTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	case <-s.done:
		cause = api.ErrNotConnected
	}
	if res, ok := s.pending.abandon(id); ok {
		if res.err != nil {
			return nil, res.err
		}
		return res.endpoint, nil
	}
	s.log.Warn("registration abandoned", zap.Int64("registration_id", id), zap.Error(cause))
	return nil, cause
}

// Close disconnects from the driver. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.pending.cancelAll(api.ErrNotConnected)
		err = s.conn.Close()
		s.log.Info("transport session closed", zap.Duration("uptime", time.Since(s.startedAt)))
	})
	return err
}

// complete resolves a registration; a late endpoint nobody waits for is
// closed so the driver does not leak it.
func (s *Session) complete(id int64, ep api.Closer, err error) {
	if s.pending.complete(id, result{endpoint: ep, err: err}) && ep != nil {
		s.log.Debug("closing late registration", zap.Int64("registration_id", id))
		go ep.Close()
	}
}

// listener adapts driver notifications to the session callbacks.
type listener struct{ s *Session }

func (l listener) OnPublicationReady(id int64, pub api.Publication, err error) {
	if err != nil {
		l.s.complete(id, nil, err)
		return
	}
	l.s.complete(id, pub, nil)
}

func (l listener) OnSubscriptionReady(id int64, sub api.Subscription, err error) {
	if err != nil {
		l.s.complete(id, nil, err)
		return
	}
	l.s.sctx.OnNewSubscription(sub.Channel(), sub.StreamID(), id)
	l.s.complete(id, sub, nil)
}

func (l listener) OnAvailableImage(img api.ImageInfo)   { l.s.sctx.OnAvailableImage(img) }
func (l listener) OnUnavailableImage(img api.ImageInfo) { l.s.sctx.OnUnavailableImage(img) }
func (l listener) OnError(err error)                    { l.s.sctx.OnError(err) }
