// File: driver/ipc.go
// Author: momentics <momentics@gmail.com>
//
// In-process streams. Every publication on a channel/stream gets one image
// per subscription on the same channel/stream.

package driver

import (
	"sync"

	"github.com/momentics/hioload-bus/api"
)

type streamKey struct {
	channel  string
	streamID int32
}

type imageEvent struct {
	sub  *subscription
	info api.ImageInfo
}

type ipcStream struct {
	key        streamKey
	termLength int

	// Write-locked by the conductor while relinking; offers TryRLock and
	// report AdminAction instead of waiting.
	mu   sync.RWMutex
	pubs []*publication
	subs []*subscription
}

func newIPCStream(key streamKey, termLength int) *ipcStream {
	return &ipcStream{key: key, termLength: termLength}
}

func (s *ipcStream) empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pubs) == 0 && len(s.subs) == 0
}

func (s *ipcStream) link(md *MediaDriver, pub *publication, sub *subscription) (*ipcImage, imageEvent) {
	info := api.ImageInfo{
		CorrelationID:  md.nextID.Add(1),
		SubscriptionID: sub.regID,
		SessionID:      pub.sessionID,
		StreamID:       s.key.streamID,
		Channel:        sub.channel.Raw,
		SourceIdentity: "aeron:ipc",
	}
	capacity := s.termLength
	if tl := sub.channel.TermLength; tl > 0 {
		capacity = tl
	}
	img := newIPCImage(info, capacity)
	pub.ipcImages = append(pub.ipcImages, img)
	sub.addImage(img)
	return img, imageEvent{sub: sub, info: info}
}

// addPublication returns one event per image created.
func (s *ipcStream) addPublication(md *MediaDriver, pub *publication) []imageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub.stream = s
	s.pubs = append(s.pubs, pub)
	events := make([]imageEvent, 0, len(s.subs))
	for _, sub := range s.subs {
		_, ev := s.link(md, pub, sub)
		events = append(events, ev)
	}
	return events
}

func (s *ipcStream) addSubscription(md *MediaDriver, sub *subscription) []imageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	events := make([]imageEvent, 0, len(s.pubs))
	for _, pub := range s.pubs {
		if pub.closed.Load() {
			continue
		}
		_, ev := s.link(md, pub, sub)
		events = append(events, ev)
	}
	return events
}

// removePublication drops the publication's images; undelivered fragments
// are discarded with them.
func (s *ipcStream) removePublication(pub *publication) []imageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubs = removeItem(s.pubs, pub)
	events := make([]imageEvent, 0, len(pub.ipcImages))
	for _, img := range pub.ipcImages {
		for _, sub := range s.subs {
			if sub.removeImage(img) {
				events = append(events, imageEvent{sub: sub, info: img.info})
			}
		}
	}
	pub.ipcImages = nil
	return events
}

func (s *ipcStream) removeSubscription(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = removeItem(s.subs, sub)
	for _, pub := range s.pubs {
		kept := pub.ipcImages[:0]
		for _, img := range pub.ipcImages {
			if img.info.SubscriptionID != sub.regID {
				kept = append(kept, img)
			}
		}
		pub.ipcImages = kept
	}
	sub.clearImages()
}

func (s *ipcStream) connected(pub *publication) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(pub.ipcImages) > 0
}

func (s *ipcStream) offer(pub *publication, buf []byte) int64 {
	if !s.mu.TryRLock() {
		return api.AdminAction
	}
	defer s.mu.RUnlock()
	if len(pub.ipcImages) == 0 {
		return api.NotConnected
	}

	pub.offerMu.Lock()
	defer pub.offerMu.Unlock()
	for _, img := range pub.ipcImages {
		if img.full() {
			return api.BackPressured
		}
	}
	pos, ok := pub.advance(len(buf))
	if !ok {
		return api.MaxPositionExceeded
	}
	payload := append([]byte(nil), buf...)
	for _, img := range pub.ipcImages {
		img.append(fragment{payload: payload, position: pos})
	}
	return pos
}

func removeItem[T comparable](items []T, item T) []T {
	for i, v := range items {
		if v == item {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}
