// File: driver/udp.go
// Author: momentics <momentics@gmail.com>
//
// UDP endpoints. One socket is bound per endpoint and shared by every
// subscription on it; frames are dispatched by stream id and each
// (subscription, session) pair gets its own image.

package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
)

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 65507

type udpImageKey struct {
	subID     int64
	sessionID int32
}

type udpEndpoint struct {
	md   *MediaDriver
	addr string
	conn *net.UDPConn
	done chan struct{}

	mu     sync.Mutex
	subs   []*subscription
	images map[udpImageKey]*udpImage
}

func bindEndpoint(md *MediaDriver, addr string) (*udpEndpoint, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	ep := &udpEndpoint{
		md:     md,
		addr:   addr,
		conn:   pc.(*net.UDPConn),
		done:   make(chan struct{}),
		images: make(map[udpImageKey]*udpImage),
	}
	go ep.receive()
	return ep, nil
}

func dialEndpoint(addr string) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, raddr)
}

func (ep *udpEndpoint) add(sub *subscription) {
	ep.mu.Lock()
	ep.subs = append(ep.subs, sub)
	ep.mu.Unlock()
}

// remove detaches sub and reports whether the endpoint is now unused.
func (ep *udpEndpoint) remove(sub *subscription) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subs = removeItem(ep.subs, sub)
	for key := range ep.images {
		if key.subID == sub.regID {
			delete(ep.images, key)
		}
	}
	sub.clearImages()
	return len(ep.subs) == 0
}

func (ep *udpEndpoint) close() {
	_ = ep.conn.Close()
	<-ep.done
}

func (ep *udpEndpoint) receive() {
	defer close(ep.done)
	log := ep.md.log.With(zap.String("endpoint", ep.addr))
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := ep.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("udp receive failed", zap.Error(err))
			continue
		}
		f, err := decodeFrame(buf[:n])
		if err != nil {
			log.Debug("dropping malformed frame", zap.Stringer("source", src), zap.Error(err))
			continue
		}
		ep.dispatch(f, src.String())
	}
}

func (ep *udpEndpoint) dispatch(f dataFrame, source string) {
	now := time.Now().UnixNano()
	var fresh []imageEvent

	ep.mu.Lock()
	for _, sub := range ep.subs {
		if sub.streamID != f.StreamID || sub.closed.Load() {
			continue
		}
		key := udpImageKey{subID: sub.regID, sessionID: f.SessionID}
		img, ok := ep.images[key]
		if !ok {
			info := api.ImageInfo{
				CorrelationID:  ep.md.nextID.Add(1),
				SubscriptionID: sub.regID,
				SessionID:      f.SessionID,
				StreamID:       f.StreamID,
				Channel:        sub.channel.Raw,
				SourceIdentity: source,
			}
			capacity := ep.md.cfg.TermLength
			if tl := sub.channel.TermLength; tl > 0 {
				capacity = tl
			}
			img = newUDPImage(info, capacity)
			ep.images[key] = img
			sub.addImage(img)
			fresh = append(fresh, imageEvent{sub: sub, info: info})
		}
		img.lastSeen.Store(now)
		img.offer(fragment{payload: f.Payload, position: f.Position})
	}
	ep.mu.Unlock()

	for _, ev := range fresh {
		ev.sub.client.notifyAvailable(ev.info)
	}
}

// expire drops images that have not received a frame since deadline.
func (ep *udpEndpoint) expire(deadline int64) []imageEvent {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	var gone []imageEvent
	for key, img := range ep.images {
		if img.lastSeen.Load() >= deadline {
			continue
		}
		delete(ep.images, key)
		for _, sub := range ep.subs {
			if sub.regID == key.subID && sub.removeImage(img) {
				gone = append(gone, imageEvent{sub: sub, info: img.info})
			}
		}
	}
	return gone
}
