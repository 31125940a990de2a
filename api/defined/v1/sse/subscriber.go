package sse

import "github.com/cespare/xxhash/v2"

// AutoClearStrategy governs when the registry drops a subscriber on its
// own, outside of an explicit Remove call.
type AutoClearStrategy string

const (
	// ClearOnStream removes the subscriber when the stream completes
	// (registry.RemoveStreamScoped / Reset).
	ClearOnStream AutoClearStrategy = "stream"
	// ClearOnRound is documented as deprecated: it survives Reset but is
	// cleared by Destroy. No further semantics are attached to it.
	ClearOnRound AutoClearStrategy = "round"
	// ClearNever survives RemoveStreamScoped; an explicit Remove, Reset
	// or Destroy drops it.
	ClearNever AutoClearStrategy = ""
)

// WatchSpec is one interest a Subscriber registers.
type WatchSpec struct {
	EventType    string
	MatchContent string
	Priority     int
}

// Matches reports whether ev satisfies this WatchSpec.
func (w WatchSpec) Matches(ev Event) bool {
	if w.EventType != ev.ElementType {
		return false
	}
	return w.MatchContent == "" || w.MatchContent == ev.Result
}

// Response is what a Subscriber callback, and the chain overall, returns.
type Response struct {
	Event      Event
	ReqURL     string
	RemoveCache bool
	// AutoRemove is meaningful only when RemoveCache is false.
	AutoRemove bool
}

// Subscriber is a named handler dispatched through the Chain.
type Subscriber interface {
	Name() string
	Watches() []WatchSpec

	// CurrentWatch is the WatchSpec the registry matched this dispatch
	// round; set by the registry before the chain runs, read by
	// subscribers that need their own matched priority/content.
	CurrentWatch() WatchSpec
	SetCurrentWatch(WatchSpec)

	AutoClearStrategy() AutoClearStrategy
	GoThrough() bool
	IsPeek() bool

	Callback(chain Chain, resp Response) Response

	OnCreate()
	OnMatch(elementType string)
	OnDestroy()

	Destroyed() bool
	SetDestroyed(bool)
}

// SubscriberKey is the stable identity used for dedup (isOnly) and for
// CachedEvent's notified-set membership. It survives across process
// boundaries, unlike reference identity.
func SubscriberKey(s Subscriber) uint64 {
	return xxhash.Sum64String(s.Name())
}

// Chain is the per-dispatch responsibility chain passed to a Subscriber's
// Callback so it may continue (or not) the fan-out.
type Chain interface {
	Proceed(resp Response) Response
	// Notified is the set of subscriber keys invoked so far this round.
	Notified() []uint64
}
