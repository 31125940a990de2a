// Package filter implements the asynchronous one-to-many event
// expansion stage between the StreamAdapter and the CacheDeliverer.
package filter

import (
	"context"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
)

// Func expands one Event into zero-or-more Events.
type Func func(ctx context.Context, ev sse.Event) []sse.Event

// Service holds a permanent filter (set at init) and a transitory
// filter (set per request). Resolution prefers transitory over
// permanent over identity.
type Service struct {
	permanent  Func
	transitory Func
}

// New returns a Service with permanent installed, if non-nil.
func New(permanent Func) *Service {
	return &Service{permanent: permanent}
}

// SetTransitory installs a per-request filter, replacing any previous one.
func (s *Service) SetTransitory(fn Func) {
	s.transitory = fn
}

// Resolve expands ev using the transitory filter if present, else the
// permanent filter, else the identity singleton.
func (s *Service) Resolve(ctx context.Context, ev sse.Event) []sse.Event {
	switch {
	case s.transitory != nil:
		return s.transitory(ctx, ev)
	case s.permanent != nil:
		return s.permanent(ctx, ev)
	default:
		return []sse.Event{ev}
	}
}

// Reset clears only the transitory slot.
func (s *Service) Reset() {
	s.transitory = nil
}

// Destroy clears both slots.
func (s *Service) Destroy() {
	s.permanent = nil
	s.transitory = nil
}
