// File: driver/image.go
// Author: momentics <momentics@gmail.com>
//
// Images: one publisher session as seen by one subscription.

package driver

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/internal/concurrency"
)

type fragment struct {
	payload  []byte
	position int64
}

type image interface {
	Info() api.ImageInfo
	poll(h api.FragmentHandler, limit int) int
	pending() int
}

// ipcImage is fed by an in-process publication. The queue is bounded by
// the publication checking full() before appending.
type ipcImage struct {
	info     api.ImageInfo
	capacity int

	mu sync.Mutex
	q  *queue.Queue
}

func newIPCImage(info api.ImageInfo, capacity int) *ipcImage {
	return &ipcImage{info: info, capacity: capacity, q: queue.New()}
}

func (i *ipcImage) Info() api.ImageInfo { return i.info }

func (i *ipcImage) full() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.q.Length() >= i.capacity
}

func (i *ipcImage) append(f fragment) {
	i.mu.Lock()
	i.q.Add(f)
	i.mu.Unlock()
}

func (i *ipcImage) pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.q.Length()
}

func (i *ipcImage) poll(h api.FragmentHandler, limit int) int {
	delivered := 0
	for delivered < limit {
		i.mu.Lock()
		if i.q.Length() == 0 {
			i.mu.Unlock()
			break
		}
		f := i.q.Remove().(fragment)
		i.mu.Unlock()

		h(f.payload, api.Header{
			StreamID:  i.info.StreamID,
			SessionID: i.info.SessionID,
			Position:  f.position,
		})
		delivered++
	}
	return delivered
}

// udpImage is fed by the endpoint receiver goroutine and drained by the
// subscription's poller: a single producer and a single consumer.
type udpImage struct {
	info     api.ImageInfo
	ring     *concurrency.RingBuffer[fragment]
	lastSeen atomic.Int64
	dropped  atomic.Int64
}

func newUDPImage(info api.ImageInfo, capacity int) *udpImage {
	return &udpImage{info: info, ring: concurrency.NewRingBuffer[fragment](capacity)}
}

func (i *udpImage) Info() api.ImageInfo { return i.info }

func (i *udpImage) pending() int { return i.ring.Len() }

func (i *udpImage) offer(f fragment) bool {
	if i.ring.Enqueue(f) {
		return true
	}
	i.dropped.Add(1)
	return false
}

func (i *udpImage) poll(h api.FragmentHandler, limit int) int {
	delivered := 0
	for delivered < limit {
		f, ok := i.ring.Dequeue()
		if !ok {
			break
		}
		h(f.payload, api.Header{
			StreamID:  i.info.StreamID,
			SessionID: i.info.SessionID,
			Position:  f.position,
		})
		delivered++
	}
	return delivered
}
