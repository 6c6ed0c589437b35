// File: driver/publication.go
// Author: momentics <momentics@gmail.com>

package driver

import (
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/momentics/hioload-bus/api"
)

var _ api.Publication = (*publication)(nil)

const (
	frameHeaderLength = 32
	frameAlignment    = 32
	maxPosition       = math.MaxInt64 - 1<<20
)

func alignedFrame(n int) int64 {
	return int64((n + frameHeaderLength + frameAlignment - 1) &^ (frameAlignment - 1))
}

// publication is safe for concurrent Offer calls; offers are serialized
// so positions increase in the order fragments reach the images.
type publication struct {
	md        *MediaDriver
	client    *Client
	regID     int64
	channel   Channel
	streamID  int32
	sessionID int32

	offerMu  sync.Mutex
	position int64
	closed   atomic.Bool

	// ipc: images are guarded by stream.mu.
	stream    *ipcStream
	ipcImages []*ipcImage

	// udp
	conn *net.UDPConn
}

func newPublication(md *MediaDriver, c *Client, regID int64, ch Channel, streamID, sessionID int32) *publication {
	return &publication{
		md:        md,
		client:    c,
		regID:     regID,
		channel:   ch,
		streamID:  streamID,
		sessionID: sessionID,
	}
}

// advance reserves room for a fragment of n bytes. Callers hold offerMu.
func (p *publication) advance(n int) (int64, bool) {
	next := p.position + alignedFrame(n)
	if next > maxPosition || next < p.position {
		return 0, false
	}
	p.position = next
	return next, true
}

func (p *publication) Offer(buf []byte) int64 {
	if p.closed.Load() {
		return api.PublicationClosed
	}
	switch p.channel.Media {
	case MediaIPC:
		return p.stream.offer(p, buf)
	case MediaUDP:
		return p.offerUDP(buf)
	}
	return api.NotConnected
}

func (p *publication) offerUDP(buf []byte) int64 {
	if p.conn == nil {
		return api.NotConnected
	}
	p.offerMu.Lock()
	defer p.offerMu.Unlock()

	prev := p.position
	pos, ok := p.advance(len(buf))
	if !ok {
		return api.MaxPositionExceeded
	}
	frame, err := encodeFrame(&dataFrame{
		SessionID: p.sessionID,
		StreamID:  p.streamID,
		Position:  pos,
		Payload:   buf,
	})
	if err == nil {
		_, err = p.conn.Write(frame)
	}
	if err != nil {
		p.position = prev
		if errors.Is(err, net.ErrClosed) {
			return api.PublicationClosed
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			p.client.notifyError(fmt.Errorf("publication %d send: %w", p.regID, err))
		}
		return api.NotConnected
	}
	return pos
}

func (p *publication) IsConnected() bool {
	if p.closed.Load() {
		return false
	}
	switch p.channel.Media {
	case MediaIPC:
		return p.stream.connected(p)
	case MediaUDP:
		return p.conn != nil
	}
	return false
}

// Close releases the publication in the driver. Safe to call twice.
func (p *publication) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.md.submitWait(&command{kind: cmdRemovePublication, client: p.client, pub: p})
}

func (p *publication) IsClosed() bool        { return p.closed.Load() }
func (p *publication) Channel() string       { return p.channel.Raw }
func (p *publication) StreamID() int32       { return p.streamID }
func (p *publication) SessionID() int32      { return p.sessionID }
func (p *publication) RegistrationID() int64 { return p.regID }

// Position returns the stream position after the last accepted offer.
func (p *publication) Position() int64 {
	p.offerMu.Lock()
	defer p.offerMu.Unlock()
	return p.position
}
