// File: facade/bus.go
// Unified facade layer for hioload-bus.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bus is the explicit context a host holds instead of process-wide state:
// one transport session, the publication and subscription handle tables,
// the publish staging pool and the per-subscription poll loops. Hosts
// address endpoints only through small integer handles.

package facade

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/control"
	"github.com/momentics/hioload-bus/driver"
	"github.com/momentics/hioload-bus/internal/handles"
	"github.com/momentics/hioload-bus/internal/session"
	"github.com/momentics/hioload-bus/pool"
)

// Callbacks are the host's transport notifications. Nil entries log.
// They run on driver goroutines and must not block.
type Callbacks struct {
	OnNewSubscription  func(channel string, streamID int32, correlationID int64)
	OnAvailableImage   func(img api.ImageInfo)
	OnUnavailableImage func(img api.ImageInfo)
	OnError            func(err error)
}

// Option customizes a Bus.
type Option func(*Bus)

// WithLogger uses l instead of building a logger from Config.Log.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// WithCallbacks installs host notifications.
func WithCallbacks(cb Callbacks) Option {
	return func(b *Bus) { b.callbacks = cb }
}

// Bus owns every endpoint a host created.
type Bus struct {
	cfg        *Config
	log        *zap.Logger
	level      *control.LevelSwitch
	ownsLogger bool
	callbacks  Callbacks

	mu     sync.Mutex // serializes Initialize and Destroy
	status atomic.Int32
	sess   atomic.Pointer[session.Session]
	md     atomic.Pointer[driver.MediaDriver]

	pubs    *handles.Table[api.Publication]
	subs    *handles.Table[*subscriptionSlot]
	staging *pool.StagingPool
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Bus)(nil)

// New builds an unconnected Bus. Call Initialize before adding endpoints.
func New(cfg *Config, opts ...Option) (*Bus, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bus{
		cfg:     cfg,
		pubs:    handles.NewTable[api.Publication](api.PublicationCapacity),
		subs:    handles.NewTable[*subscriptionSlot](api.SubscriptionCapacity),
		staging: pool.NewStagingPool(),
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		log, lvl, err := control.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		b.log = log
		b.level = control.NewLevelSwitch(lvl)
		b.ownsLogger = true
	}
	b.log = b.log.Named("bus")
	b.registerProbes()
	return b, nil
}

// Initialize connects to the media driver for Config.Dir, launching an
// embedded one first when configured. Failure is logged and returned and
// the bus stays not connected. Calling it on a connected bus is a no-op.
func (b *Bus) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Status() == api.SessionActive {
		return nil
	}
	b.setStatus(api.SessionConnecting)

	var md *driver.MediaDriver
	if b.cfg.EmbeddedDriver {
		dcfg := driver.DefaultConfig(b.cfg.Dir)
		dcfg.TermLength = b.cfg.TermLength
		dcfg.Logger = b.log
		var err error
		md, err = driver.Launch(dcfg)
		if err != nil && !errors.Is(err, driver.ErrDriverActive) {
			b.setStatus(api.SessionUnknown)
			b.log.Error("embedded media driver failed to start", zap.String("dir", b.cfg.Dir), zap.Error(err))
			return err
		}
	}

	sess, err := session.Connect(ctx, session.Context{
		Dir:                 b.cfg.Dir,
		ClientName:          b.cfg.ClientName,
		RegistrationTimeout: b.cfg.RegistrationTimeout,
		Logger:              b.log.Named("session"),
		OnNewSubscription:   b.callbacks.OnNewSubscription,
		OnAvailableImage:    b.callbacks.OnAvailableImage,
		OnUnavailableImage:  b.callbacks.OnUnavailableImage,
		OnError:             b.callbacks.OnError,
	})
	if err != nil {
		if md != nil {
			md.Close()
		}
		b.setStatus(api.SessionUnknown)
		return err
	}
	b.md.Store(md)
	b.sess.Store(sess)
	b.setStatus(api.SessionActive)
	b.metrics.Set("started_at", sess.StartedAt())
	return nil
}

// Initialize connects a bus with default settings to the driver already
// running for dir and returns it with a host status: 0 on success, -1 on
// failure. On failure the returned bus is not connected.
func Initialize(dir string) (*Bus, int) {
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.EmbeddedDriver = false
	b, err := New(cfg)
	if err != nil {
		return nil, api.StatusFailure
	}
	return b, api.StatusOf(b.Initialize(context.Background()))
}

// Destroy stops every poll loop, closes every endpoint and the session.
func (b *Bus) Destroy() {
	_ = b.Shutdown()
}

// Shutdown implements api.GracefulShutdown.
func (b *Bus) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess := b.sess.Load()
	if sess == nil {
		return nil
	}
	b.setStatus(api.SessionClosing)

	var errs []error
	for _, h := range b.subs.Handles() {
		if err := b.subs.Remove(h); err != nil && !errors.Is(err, api.ErrSlotEmpty) {
			errs = append(errs, err)
		}
	}
	for _, h := range b.pubs.Handles() {
		if err := b.pubs.Remove(h); err != nil && !errors.Is(err, api.ErrSlotEmpty) {
			errs = append(errs, err)
		}
	}
	b.sess.Store(nil)
	errs = append(errs, sess.Close())
	if md := b.md.Swap(nil); md != nil {
		errs = append(errs, md.Close())
	}
	b.setStatus(api.SessionClosed)
	b.log.Info("bus destroyed", zap.Duration("uptime", time.Since(sess.StartedAt())))
	if b.ownsLogger {
		_ = b.log.Sync()
	}
	return errors.Join(errs...)
}

// Status reports the session state.
func (b *Bus) Status() api.SessionStatus { return api.SessionStatus(b.status.Load()) }

func (b *Bus) setStatus(s api.SessionStatus) {
	b.status.Store(int32(s))
	b.metrics.Set("status", s.String())
}

// Info describes the bus for tools.
func (b *Bus) Info() api.BusInfo {
	info := api.BusInfo{Dir: b.cfg.Dir, Status: b.Status(), ClientName: b.cfg.ClientName}
	if sess := b.sess.Load(); sess != nil {
		info.ClientName = sess.ClientName()
		info.ClientID = sess.ClientID()
		info.StartedAt = sess.StartedAt()
	}
	return info
}

// Logger returns the bus logger.
func (b *Bus) Logger() *zap.Logger { return b.log }

// SetLogLevel changes the level of a logger built from Config.Log.
func (b *Bus) SetLogLevel(level string) error {
	if b.level == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "log level is owned by the injected logger", nil)
	}
	return b.level.SetLevel(level)
}

// Stats merges counters, gauges and debug probes.
func (b *Bus) Stats() map[string]any {
	out := b.metrics.GetSnapshot()
	for k, v := range b.probes.DumpState() {
		out[k] = v
	}
	return out
}

func (b *Bus) session() (*session.Session, error) {
	sess := b.sess.Load()
	if sess == nil {
		return nil, api.ErrNotConnected
	}
	return sess, nil
}

func (b *Bus) registerProbes() {
	b.probes.RegisterProbe("publications.in_use", func() any { return b.pubs.Len() })
	b.probes.RegisterProbe("subscriptions.in_use", func() any { return b.subs.Len() })
	b.probes.RegisterProbe("poll_loops.running", func() any { return b.runningLoops() })
	b.probes.RegisterProbe("staging", func() any { return b.staging.Stats() })
	b.probes.RegisterProbe("driver", func() any {
		md := b.md.Load()
		if md == nil {
			return nil
		}
		return md.Stats()
	})
	control.RegisterPlatformProbes(b.probes)
}

func (b *Bus) reportError(err error) {
	if b.callbacks.OnError != nil {
		b.callbacks.OnError(err)
		return
	}
	b.log.Error("transport error", zap.Error(err))
}
