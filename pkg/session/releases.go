package session

import (
	"sync"

	"github.com/aretw0/tether/pkg/invoke"
)

// releaseSet tracks scoped invocations whose release has not run yet, so
// teardown can force them.
type releaseSet struct {
	mu     sync.Mutex
	next   uint64
	order  []uint64
	items  map[uint64]invoke.Release
	closed bool
}

func newReleaseSet() *releaseSet {
	return &releaseSet{items: make(map[uint64]invoke.Release)}
}

// add tracks rel. It returns false once the set has been drained; the caller
// still owns rel and must call it.
func (r *releaseSet) add(rel invoke.Release) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.next++
	r.items[r.next] = rel
	r.order = append(r.order, r.next)
	return r.next, true
}

func (r *releaseSet) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)

	// Compact so long-lived sessions do not accumulate finished ids.
	if len(r.order) > 2*len(r.items)+32 {
		kept := r.order[:0]
		for _, k := range r.order {
			if _, ok := r.items[k]; ok {
				kept = append(kept, k)
			}
		}
		r.order = kept
	}
}

func (r *releaseSet) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// drain closes the set and returns the pending releases, newest first.
func (r *releaseSet) drain() []invoke.Release {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	out := make([]invoke.Release, 0, len(r.items))
	for i := len(r.order) - 1; i >= 0; i-- {
		if rel, ok := r.items[r.order[i]]; ok {
			out = append(out, rel)
		}
	}
	r.items = nil
	r.order = nil
	return out
}
