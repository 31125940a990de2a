// Package registry implements the interceptor registry and its
// per-event chain-of-responsibility dispatch.
package registry

import (
	"sort"
	"sync"

	"github.com/kelindar/bitmap"
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/samber/lo"
)

// Registry holds subscribers and builds a Chain for each delivery.
// Removed slots are tombstoned in a bitmap rather than spliced
// immediately, so a hot RemoveStreamScoped/Reset pass during dispatch
// doesn't shift live indices out from under a concurrent scan; the
// slice is compacted once at the end of the batch.
type Registry struct {
	mu   sync.Mutex
	subs []sse.Subscriber
	dead bitmap.Bitmap
}

func New() *Registry {
	return &Registry{}
}

// Add appends sub. If isOnly and a live subscriber with the same name
// already exists, it refuses and returns false.
func (r *Registry) Add(sub sse.Subscriber, isOnly bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if isOnly {
		for i, s := range r.subs {
			if r.dead.Contains(uint32(i)) {
				continue
			}
			if s.Name() == sub.Name() {
				return false
			}
		}
	}

	r.subs = append(r.subs, sub)
	sub.OnCreate()
	return true
}

func (r *Registry) removeAtLocked(i int) {
	if r.dead.Contains(uint32(i)) {
		return
	}
	r.dead.Set(uint32(i))
	s := r.subs[i]
	if !s.Destroyed() {
		s.SetDestroyed(true)
		s.OnDestroy()
	}
}

// Remove drops sub exactly, firing OnDestroy once (idempotent).
func (r *Registry) Remove(sub sse.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s == sub {
			r.removeAtLocked(i)
			r.compactLocked()
			return
		}
	}
}

// RemoveStreamScoped drops every subscriber with AutoClearStrategy ==
// ClearOnStream.
func (r *Registry) RemoveStreamScoped() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.AutoClearStrategy() == sse.ClearOnStream {
			r.removeAtLocked(i)
		}
	}
	r.compactLocked()
}

// Reset drops every subscriber whose AutoClearStrategy != ClearOnRound.
// ClearOnRound is deprecated but preserved: it survives Reset.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.AutoClearStrategy() != sse.ClearOnRound {
			r.removeAtLocked(i)
		}
	}
	r.compactLocked()
}

// Destroy fires OnDestroy on every non-destroyed subscriber, then clears
// the registry.
func (r *Registry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.subs {
		r.removeAtLocked(i)
	}
	r.subs = nil
	r.dead = bitmap.Bitmap{}
}

func (r *Registry) compactLocked() {
	live := r.subs[:0]
	for i, s := range r.subs {
		if !r.dead.Contains(uint32(i)) {
			live = append(live, s)
		}
	}
	r.subs = live
	r.dead = bitmap.Bitmap{}
}

func (r *Registry) snapshot() []sse.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.Subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

// Deliver matches, sorts and filters subscribers for entry, builds a
// Chain and runs it to completion, returning the final Response and the
// keys of every subscriber invoked this round (for the caller to fold
// into entry.notifiedSubscribers).
func (r *Registry) Deliver(entry *sse.CachedEvent, isPeek bool) (sse.Response, []uint64) {
	type matched struct {
		sub   sse.Subscriber
		watch sse.WatchSpec
	}

	var candidates []matched
	for _, sub := range r.snapshot() {
		for _, w := range sub.Watches() {
			if !w.Matches(entry.Event) {
				continue
			}
			if sub.IsPeek() == isPeek {
				sub.SetCurrentWatch(w)
				candidates = append(candidates, matched{sub: sub, watch: w})
			} else {
				sub.SetCurrentWatch(sse.WatchSpec{})
			}
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].watch.Priority > candidates[j].watch.Priority
	})

	subs := lo.FilterMap(candidates, func(m matched, _ int) (sse.Subscriber, bool) {
		return m.sub, !entry.Notified(sse.SubscriberKey(m.sub))
	})

	c := newChain(subs, entry.ElementType)
	resp0 := sse.Response{Event: entry.Event, ReqURL: entry.ReqURL, RemoveCache: false, AutoRemove: true}
	resp := c.Proceed(resp0)

	return resp, c.Notified()
}
