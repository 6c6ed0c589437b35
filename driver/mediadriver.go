// File: driver/mediadriver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MediaDriver owns every stream and endpoint for one directory. A single
// conductor goroutine applies client commands in order, so stream topology
// is only ever changed from one place.

package driver

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
)

type cmdKind int

const (
	cmdAddPublication cmdKind = iota
	cmdAddSubscription
	cmdRemovePublication
	cmdRemoveSubscription
	cmdCloseClient
)

type command struct {
	kind     cmdKind
	client   *Client
	regID    int64
	channel  string
	streamID int32
	pub      *publication
	sub      *subscription
	done     chan struct{}
}

// MediaDriver is an in-process driver instance.
type MediaDriver struct {
	cfg       Config
	dir       string
	log       *zap.Logger
	startedAt time.Time

	cmds     chan *command
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	nextID      atomic.Int64
	nextSession atomic.Int32

	clientsMu sync.Mutex
	clients   map[int64]*Client

	// Conductor-owned.
	ipcStreams   map[streamKey]*ipcStream
	udpEndpoints map[string]*udpEndpoint
}

// Launch starts a driver for cfg.Dir. Only one driver may run per
// directory in a process.
func Launch(cfg Config) (*MediaDriver, error) {
	cfg.normalize()
	dir, err := canonicalDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if err := prepareDir(dir, cfg.DirCreate); err != nil {
		return nil, err
	}
	md := &MediaDriver{
		cfg:          cfg,
		dir:          dir,
		log:          cfg.Logger.Named("driver").With(zap.String("dir", dir)),
		startedAt:    time.Now(),
		cmds:         make(chan *command, cfg.CommandQueue),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		clients:      make(map[int64]*Client),
		ipcStreams:   make(map[streamKey]*ipcStream),
		udpEndpoints: make(map[string]*udpEndpoint),
	}
	md.nextSession.Store(rand.Int32N(1 << 24))

	if err := register(dir, md); err != nil {
		return nil, err
	}
	info := CncInfo{Version: cncVersion, PID: os.Getpid(), StartedAt: md.startedAt, TermLength: cfg.TermLength}
	if err := writeCnc(dir, info); err != nil {
		unregister(dir, md)
		return nil, fmt.Errorf("write %s: %w", CncFile, err)
	}
	go md.run()
	md.log.Info("media driver started", zap.Int("term_length", cfg.TermLength))
	return md, nil
}

// Dir returns the canonical driver directory.
func (md *MediaDriver) Dir() string { return md.dir }

// Close stops the conductor, closes every endpoint and removes cnc.dat.
func (md *MediaDriver) Close() error {
	md.stopOnce.Do(func() { close(md.stopCh) })
	<-md.doneCh
	return nil
}

// Done is closed once the driver has shut down.
func (md *MediaDriver) Done() <-chan struct{} { return md.doneCh }

// Stats reports driver occupancy.
func (md *MediaDriver) Stats() map[string]int64 {
	md.clientsMu.Lock()
	clients := len(md.clients)
	md.clientsMu.Unlock()
	return map[string]int64{
		"clients":          int64(clients),
		"pending_commands": int64(len(md.cmds)),
	}
}

func (md *MediaDriver) connect(l api.DriverListener) (*Client, error) {
	select {
	case <-md.stopCh:
		return nil, fmt.Errorf("%w: driver %s is closing", api.ErrNoDriver, md.dir)
	default:
	}
	c := newClient(md, md.nextID.Add(1), l)
	md.clientsMu.Lock()
	md.clients[c.id] = c
	md.clientsMu.Unlock()
	md.log.Debug("client connected", zap.Int64("client_id", c.id))
	return c, nil
}

func (md *MediaDriver) submit(cmd *command) error {
	select {
	case <-md.stopCh:
		return api.ErrClosed
	default:
	}
	select {
	case md.cmds <- cmd:
		return nil
	case <-md.stopCh:
		return api.ErrClosed
	}
}

// submitWait returns once the conductor has applied cmd or the driver
// has stopped.
func (md *MediaDriver) submitWait(cmd *command) error {
	cmd.done = make(chan struct{})
	if err := md.submit(cmd); err != nil {
		if errors.Is(err, api.ErrClosed) {
			return nil
		}
		return err
	}
	select {
	case <-cmd.done:
	case <-md.doneCh:
	}
	return nil
}

func (md *MediaDriver) livenessInterval() time.Duration {
	iv := md.cfg.ImageLivenessTimeout / 4
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	return iv
}

func (md *MediaDriver) run() {
	defer close(md.doneCh)
	ticker := time.NewTicker(md.livenessInterval())
	defer ticker.Stop()
	for {
		select {
		case cmd := <-md.cmds:
			md.apply(cmd)
		case now := <-ticker.C:
			md.checkLiveness(now)
		case <-md.stopCh:
			md.shutdown()
			return
		}
	}
}

func (md *MediaDriver) apply(cmd *command) {
	defer func() {
		if cmd.done != nil {
			close(cmd.done)
		}
	}()
	switch cmd.kind {
	case cmdAddPublication:
		md.addPublication(cmd)
	case cmdAddSubscription:
		md.addSubscription(cmd)
	case cmdRemovePublication:
		md.removePublication(cmd.client, cmd.pub)
	case cmdRemoveSubscription:
		md.removeSubscription(cmd.client, cmd.sub)
	case cmdCloseClient:
		md.closeClient(cmd.client)
	}
}

func (md *MediaDriver) ipcStream(ch Channel, streamID int32) *ipcStream {
	key := streamKey{channel: ch.canonical(), streamID: streamID}
	s, ok := md.ipcStreams[key]
	if !ok {
		s = newIPCStream(key, md.cfg.TermLength)
		md.ipcStreams[key] = s
	}
	return s
}

func (md *MediaDriver) releaseStream(s *ipcStream) {
	if s != nil && s.empty() {
		delete(md.ipcStreams, s.key)
	}
}

func (md *MediaDriver) addPublication(cmd *command) {
	c := cmd.client
	ch, err := ParseChannel(cmd.channel)
	if err != nil {
		c.listener.OnPublicationReady(cmd.regID, nil, err)
		return
	}
	pub := newPublication(md, c, cmd.regID, ch, cmd.streamID, md.nextSession.Add(1))

	var events []imageEvent
	switch ch.Media {
	case MediaIPC:
		events = md.ipcStream(ch, cmd.streamID).addPublication(md, pub)
	case MediaUDP:
		conn, err := dialEndpoint(ch.Endpoint)
		if err != nil {
			c.listener.OnPublicationReady(cmd.regID, nil, fmt.Errorf("publication %s: %w", ch.Raw, err))
			return
		}
		pub.conn = conn
	}
	c.pubs[pub.regID] = pub
	md.log.Debug("publication added",
		zap.Int64("registration_id", pub.regID),
		zap.String("channel", ch.Raw),
		zap.Int32("stream_id", pub.streamID),
		zap.Int32("session_id", pub.sessionID))
	for _, ev := range events {
		ev.sub.client.notifyAvailable(ev.info)
	}
	c.listener.OnPublicationReady(pub.regID, pub, nil)
}

func (md *MediaDriver) addSubscription(cmd *command) {
	c := cmd.client
	ch, err := ParseChannel(cmd.channel)
	if err != nil {
		c.listener.OnSubscriptionReady(cmd.regID, nil, err)
		return
	}
	sub := newSubscription(md, c, cmd.regID, ch, cmd.streamID)

	if ch.Media == MediaUDP {
		ep, ok := md.udpEndpoints[ch.Endpoint]
		if !ok {
			ep, err = bindEndpoint(md, ch.Endpoint)
			if err != nil {
				c.listener.OnSubscriptionReady(cmd.regID, nil, fmt.Errorf("subscription %s: %w", ch.Raw, err))
				return
			}
			md.udpEndpoints[ch.Endpoint] = ep
		}
		ep.add(sub)
	}
	c.subs[sub.regID] = sub
	md.log.Debug("subscription added",
		zap.Int64("registration_id", sub.regID),
		zap.String("channel", ch.Raw),
		zap.Int32("stream_id", sub.streamID))
	c.listener.OnSubscriptionReady(sub.regID, sub, nil)

	if ch.Media == MediaIPC {
		for _, ev := range md.ipcStream(ch, cmd.streamID).addSubscription(md, sub) {
			c.notifyAvailable(ev.info)
		}
	}
}

func (md *MediaDriver) removePublication(c *Client, pub *publication) {
	if _, ok := c.pubs[pub.regID]; !ok {
		return
	}
	delete(c.pubs, pub.regID)
	pub.closed.Store(true)
	switch pub.channel.Media {
	case MediaIPC:
		for _, ev := range pub.stream.removePublication(pub) {
			ev.sub.client.notifyUnavailable(ev.info)
		}
		md.releaseStream(pub.stream)
	case MediaUDP:
		if pub.conn != nil {
			pub.offerMu.Lock()
			_ = pub.conn.Close()
			pub.offerMu.Unlock()
		}
	}
	md.log.Debug("publication removed", zap.Int64("registration_id", pub.regID))
}

func (md *MediaDriver) removeSubscription(c *Client, sub *subscription) {
	if _, ok := c.subs[sub.regID]; !ok {
		return
	}
	delete(c.subs, sub.regID)
	sub.closed.Store(true)
	switch sub.channel.Media {
	case MediaIPC:
		key := streamKey{channel: sub.channel.canonical(), streamID: sub.streamID}
		if s, ok := md.ipcStreams[key]; ok {
			s.removeSubscription(sub)
			md.releaseStream(s)
		}
	case MediaUDP:
		if ep, ok := md.udpEndpoints[sub.channel.Endpoint]; ok && ep.remove(sub) {
			delete(md.udpEndpoints, ep.addr)
			ep.close()
		}
	}
	md.log.Debug("subscription removed", zap.Int64("registration_id", sub.regID))
}

func (md *MediaDriver) closeClient(c *Client) {
	for _, pub := range c.pubs {
		md.removePublication(c, pub)
	}
	for _, sub := range c.subs {
		md.removeSubscription(c, sub)
	}
	md.clientsMu.Lock()
	delete(md.clients, c.id)
	md.clientsMu.Unlock()
	md.log.Debug("client closed", zap.Int64("client_id", c.id))
}

func (md *MediaDriver) checkLiveness(now time.Time) {
	deadline := now.Add(-md.cfg.ImageLivenessTimeout).UnixNano()
	for _, ep := range md.udpEndpoints {
		for _, ev := range ep.expire(deadline) {
			ev.sub.client.notifyUnavailable(ev.info)
		}
	}
}

func (md *MediaDriver) shutdown() {
	md.clientsMu.Lock()
	clients := make([]*Client, 0, len(md.clients))
	for _, c := range md.clients {
		clients = append(clients, c)
	}
	md.clientsMu.Unlock()
	for _, c := range clients {
		c.closed.Store(true)
		md.closeClient(c)
	}
	for addr, ep := range md.udpEndpoints {
		ep.close()
		delete(md.udpEndpoints, addr)
	}
	unregister(md.dir, md)
	if err := os.Remove(filepath.Join(md.dir, CncFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		md.log.Warn("remove cnc file", zap.Error(err))
	}
	md.log.Info("media driver stopped", zap.Duration("uptime", time.Since(md.startedAt)))
}
