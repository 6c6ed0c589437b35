// File: pool/staging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Aligned scratch buffers for the publish path. A stack array would escape
// to the heap once handed to a Publication interface, so fixed-size scratch
// regions are recycled through a SyncPool instead.

package pool

import (
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-bus/api"
)

// StagingAlignment is the byte alignment of every scratch buffer.
const StagingAlignment = 16

// Scratch is one aligned region of api.MaxPayload bytes.
type Scratch struct {
	buf []byte
}

// Bytes returns the full aligned region.
func (s *Scratch) Bytes() []byte { return s.buf }

// Stage copies msg into the scratch region and returns the filled prefix.
// Callers check len(msg) <= api.MaxPayload first.
func (s *Scratch) Stage(msg []byte) []byte {
	n := copy(s.buf, msg)
	return s.buf[:n]
}

// StagingPool recycles aligned scratch regions.
type StagingPool struct {
	pool     *SyncPool[*Scratch]
	acquired atomic.Int64
	released atomic.Int64
	allocs   atomic.Int64
}

// NewStagingPool creates an empty pool; regions are allocated on demand.
func NewStagingPool() *StagingPool {
	sp := &StagingPool{}
	sp.pool = NewSyncPool(func() *Scratch {
		sp.allocs.Add(1)
		return &Scratch{buf: alignedRegion(api.MaxPayload, StagingAlignment)}
	})
	return sp
}

// Acquire returns a scratch region.
func (sp *StagingPool) Acquire() *Scratch {
	sp.acquired.Add(1)
	return sp.pool.Get()
}

// Release returns s to the pool. s must not be used afterwards.
func (sp *StagingPool) Release(s *Scratch) {
	if s == nil {
		return
	}
	sp.released.Add(1)
	sp.pool.Put(s)
}

// Stats exposes pool accounting for the control plane.
func (sp *StagingPool) Stats() map[string]int64 {
	acquired := sp.acquired.Load()
	released := sp.released.Load()
	return map[string]int64{
		"acquired": acquired,
		"released": released,
		"in_use":   acquired - released,
		"allocs":   sp.allocs.Load(),
	}
}

// alignedRegion over-allocates and slices so the first byte sits on an
// align boundary. The slice keeps the whole backing array alive.
func alignedRegion(size, align int) []byte {
	raw := make([]byte, size+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) & uintptr(align-1)); rem != 0 {
		off = align - rem
	}
	return raw[off : off+size : off+size]
}
