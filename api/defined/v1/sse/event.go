// Package sse defines the wire and in-process data model for the SSE
// delivery engine: events, cached entries, subscriber contracts and
// connection states shared across internal/adapter, internal/filter,
// internal/cache, internal/registry, internal/connect and engine.
package sse

import (
	"time"

	"github.com/google/uuid"
)

// Event is one decoded SSE payload.
type Event struct {
	SessionLogID string `json:"sessionLogId"`
	ElementType  string `json:"elementType"`
	Result       string `json:"result"`
	Extra        string `json:"extra"`
	IsHistory    bool   `json:"isHistory"`
}

// Legal reports whether the event carries the two required identity
// fields. Illegal events are dropped before cache admission.
func (e Event) Legal() bool {
	return e.SessionLogID != "" && e.ElementType != ""
}

// CachedEvent wraps an Event with cache-pool bookkeeping. It is owned
// exclusively by the CacheDeliverer that admitted it.
type CachedEvent struct {
	Event

	DeliveryID uuid.UUID

	// AdmittedAt is microsecond-precision; it seeds the auto-remove
	// watermark sweep.
	AdmittedAt time.Time

	IsDirty    bool
	AutoRemove bool
	ReqURL     string

	notifiedSubscribers map[uint64]struct{}
}

// NewCachedEvent wraps ev with admission bookkeeping. autoRemove defaults
// to true per the data model.
func NewCachedEvent(ev Event, reqURL string) *CachedEvent {
	return &CachedEvent{
		Event:               ev,
		DeliveryID:          uuid.New(),
		AdmittedAt:          time.Now(),
		AutoRemove:          true,
		ReqURL:              reqURL,
		notifiedSubscribers: make(map[uint64]struct{}),
	}
}

// Notified reports whether subscriberKey already received this entry.
func (c *CachedEvent) Notified(subscriberKey uint64) bool {
	_, ok := c.notifiedSubscribers[subscriberKey]
	return ok
}

// MarkNotified records subscriberKey so it is never redelivered this entry.
func (c *CachedEvent) MarkNotified(subscriberKey uint64) {
	c.notifiedSubscribers[subscriberKey] = struct{}{}
}

// MergeNotified unions keys into the notified set, used after a dispatch
// round to fold the chain's notified list back into the cache entry.
func (c *CachedEvent) MergeNotified(keys []uint64) {
	for _, k := range keys {
		c.notifiedSubscribers[k] = struct{}{}
	}
}
