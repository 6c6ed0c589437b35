// File: internal/handles/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handles

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/momentics/hioload-bus/api"
)

// Handle is an index into a Table.
type Handle int32

// Invalid is returned alongside errors from Insert.
const Invalid Handle = -1

type slot[T api.Closer] struct {
	mu  sync.RWMutex
	val T
	set bool
}

// Table is a fixed-capacity arena of owned endpoints.
type Table[T api.Closer] struct {
	mu    sync.Mutex
	used  []uint64
	count int
	slots []slot[T]
}

// NewTable creates a table holding at most capacity endpoints.
func NewTable[T api.Closer](capacity int) *Table[T] {
	if capacity <= 0 {
		panic("handles: capacity must be positive")
	}
	return &Table[T]{
		used:  make([]uint64, (capacity+63)/64),
		slots: make([]slot[T], capacity),
	}
}

// Cap returns the table capacity.
func (t *Table[T]) Cap() int { return len(t.slots) }

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Insert stores v in the lowest free slot. On a full table it returns
// Invalid and api.ErrTableFull and leaves every slot untouched.
func (t *Table[T]) Insert(v T) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.lowestFree()
	if idx < 0 {
		return Invalid, api.ErrTableFull
	}
	t.used[idx/64] |= 1 << uint(idx%64)
	t.count++

	s := &t.slots[idx]
	s.mu.Lock()
	s.val = v
	s.set = true
	s.mu.Unlock()
	return Handle(idx), nil
}

// lowestFree scans the bitmap; caller holds t.mu.
func (t *Table[T]) lowestFree() int {
	for w, word := range t.used {
		if word == ^uint64(0) {
			continue
		}
		idx := w*64 + bits.TrailingZeros64(^word)
		if idx >= len(t.slots) {
			return -1
		}
		return idx
	}
	return -1
}

func (t *Table[T]) slot(h Handle) (*slot[T], error) {
	if h < 0 || int(h) >= len(t.slots) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", api.ErrInvalidHandle, h, len(t.slots))
	}
	return &t.slots[h], nil
}

// With runs fn with the endpoint at h while holding the slot's read lock.
// Removal of h waits for fn to return.
func (t *Table[T]) With(h Handle, fn func(T) error) error {
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return fmt.Errorf("%w: %d", api.ErrSlotEmpty, h)
	}
	return fn(s.val)
}

// Get returns the endpoint at h without holding a reference. Callers that
// may race with Remove use With instead.
func (t *Table[T]) Get(h Handle) (T, error) {
	var out T
	err := t.With(h, func(v T) error {
		out = v
		return nil
	})
	return out, err
}

// Remove detaches the endpoint at h, frees the slot and closes the
// endpoint outside every lock.
func (t *Table[T]) Remove(h Handle) error {
	v, err := t.Take(h)
	if err != nil {
		return err
	}
	return v.Close()
}

// Take detaches the endpoint at h and frees the slot without closing it.
func (t *Table[T]) Take(h Handle) (T, error) {
	var zero T
	s, err := t.slot(h)
	if err != nil {
		return zero, err
	}
	s.mu.Lock()
	if !s.set {
		s.mu.Unlock()
		return zero, fmt.Errorf("%w: %d", api.ErrSlotEmpty, h)
	}
	v := s.val
	s.val = zero
	s.set = false
	s.mu.Unlock()

	t.mu.Lock()
	t.used[int(h)/64] &^= 1 << uint(int(h)%64)
	t.count--
	t.mu.Unlock()
	return v, nil
}

// Handles returns the occupied handles in ascending order.
func (t *Table[T]) Handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, t.count)
	for w, word := range t.used {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, Handle(w*64+b))
			word &^= 1 << uint(b)
		}
	}
	return out
}

// Range calls fn for every occupied slot under that slot's read lock.
func (t *Table[T]) Range(fn func(Handle, T)) {
	for _, h := range t.Handles() {
		_ = t.With(h, func(v T) error {
			fn(h, v)
			return nil
		})
	}
}
