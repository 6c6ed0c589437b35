// File: driver/subscription.go
// Author: momentics <momentics@gmail.com>

package driver

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bus/api"
)

var _ api.Subscription = (*subscription)(nil)

// subscription polls its images round-robin. The image list is replaced
// copy-on-write so Poll never takes a lock. Poll must not be called from
// more than one goroutine at a time.
type subscription struct {
	md       *MediaDriver
	client   *Client
	regID    int64
	channel  Channel
	streamID int32

	imgMu  sync.Mutex
	images atomic.Pointer[[]image]
	rr     atomic.Uint32
	closed atomic.Bool
}

func newSubscription(md *MediaDriver, c *Client, regID int64, ch Channel, streamID int32) *subscription {
	s := &subscription{md: md, client: c, regID: regID, channel: ch, streamID: streamID}
	empty := []image{}
	s.images.Store(&empty)
	return s
}

func (s *subscription) Poll(handler api.FragmentHandler, fragmentLimit int) int {
	if s.closed.Load() || fragmentLimit <= 0 {
		return 0
	}
	imgs := *s.images.Load()
	n := len(imgs)
	if n == 0 {
		return 0
	}
	start := int(s.rr.Add(1)) % n
	total := 0
	for i := 0; i < n && total < fragmentLimit; i++ {
		total += imgs[(start+i)%n].poll(handler, fragmentLimit-total)
	}
	return total
}

func (s *subscription) addImage(img image) {
	s.imgMu.Lock()
	defer s.imgMu.Unlock()
	old := *s.images.Load()
	next := make([]image, len(old), len(old)+1)
	copy(next, old)
	next = append(next, img)
	s.images.Store(&next)
}

func (s *subscription) removeImage(img image) bool {
	s.imgMu.Lock()
	defer s.imgMu.Unlock()
	old := *s.images.Load()
	next := make([]image, 0, len(old))
	found := false
	for _, i := range old {
		if i == img {
			found = true
			continue
		}
		next = append(next, i)
	}
	s.images.Store(&next)
	return found
}

func (s *subscription) clearImages() []image {
	s.imgMu.Lock()
	defer s.imgMu.Unlock()
	old := *s.images.Load()
	empty := []image{}
	s.images.Store(&empty)
	return old
}

// Close releases the subscription in the driver. Safe to call twice.
func (s *subscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.md.submitWait(&command{kind: cmdRemoveSubscription, client: s.client, sub: s})
}

func (s *subscription) IsClosed() bool        { return s.closed.Load() }
func (s *subscription) Channel() string       { return s.channel.Raw }
func (s *subscription) StreamID() int32       { return s.streamID }
func (s *subscription) RegistrationID() int64 { return s.regID }
func (s *subscription) ImageCount() int       { return len(*s.images.Load()) }
