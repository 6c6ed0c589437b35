// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Pending registrations keyed by registration id.

package session

import (
	"sync"

	"github.com/momentics/hioload-bus/api"
)

type result struct {
	endpoint api.Closer
	err      error
}

type future struct {
	done      chan struct{}
	res       result
	abandoned bool
}

// pendingStore matches driver ready callbacks to waiting registrations.
// Either side may arrive first: the callback can fire before the caller
// starts waiting.
type pendingStore struct {
	mu      sync.Mutex
	futures map[int64]*future
}

func newPendingStore() *pendingStore {
	return &pendingStore{futures: make(map[int64]*future)}
}

func (p *pendingStore) getOrCreate(id int64) *future {
	f, ok := p.futures[id]
	if !ok {
		f = &future{done: make(chan struct{})}
		p.futures[id] = f
	}
	return f
}

// watch returns the completion channel for id.
func (p *pendingStore) watch(id int64) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getOrCreate(id).done
}

// take removes a completed future and returns its result.
func (p *pendingStore) take(id int64) result {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.futures[id]
	delete(p.futures, id)
	return f.res
}

// abandon gives up on id. If the result already arrived it is returned
// with true so the caller can release the endpoint.
func (p *pendingStore) abandon(id int64) (result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.getOrCreate(id)
	select {
	case <-f.done:
		delete(p.futures, id)
		return f.res, true
	default:
		f.abandoned = true
		return result{}, false
	}
}

// complete resolves id. A late result for an abandoned registration is
// returned to the caller for release.
func (p *pendingStore) complete(id int64, res result) (late bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.getOrCreate(id)
	if f.abandoned {
		delete(p.futures, id)
		return true
	}
	select {
	case <-f.done:
		return false
	default:
	}
	f.res = res
	close(f.done)
	return false
}

// cancelAll fails every waiter with err.
func (p *pendingStore) cancelAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.futures {
		select {
		case <-f.done:
		default:
			if !f.abandoned {
				f.res = result{err: err}
				close(f.done)
			}
		}
		if f.abandoned {
			delete(p.futures, id)
		}
	}
}

func (p *pendingStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.futures)
}
