package engine

import (
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/internal/constants"
)

// AgentStream is a named side-channel of events that bypasses the HTTP
// RoundTripper path entirely (e.g. a locally-generated agent narration
// the host wants delivered through the same InterceptorRegistry). Events
// are always admitted against reqURL == key, so Subscribers can Watch
// them the same way they watch any upstream delivery.
type AgentStream struct {
	key      string
	engine   *Engine
	useCache bool
}

// OpenAgentStream registers key as an active agent stream. useCache
// picks between the paced CacheDeliverer path (useCache true, same
// admission/pop pipeline as the HTTP path) and direct synchronous
// dispatch through the registry (useCache false).
func (e *Engine) OpenAgentStream(key string, useCache bool) *AgentStream {
	e.mu.Lock()
	e.agents[key] = struct{}{}
	e.mu.Unlock()
	return &AgentStream{key: key, engine: e, useCache: useCache}
}

// Admit delivers events under this agent stream's key.
func (a *AgentStream) Admit(events []sse.Event) {
	for _, ev := range events {
		if a.useCache {
			a.engine.admit(ev, a.key)
			continue
		}
		if !ev.Legal() {
			continue
		}
		entry := sse.NewCachedEvent(ev, a.key)
		a.engine.registry.Deliver(entry, false)
	}
}

// End synthesizes the reserved auto-remove marker for this stream
// (dispatched directly, bypassing the cache) and, if remove is true,
// drops the stream from the engine's active-agent set.
func (a *AgentStream) End(remove bool) {
	marker := sse.NewCachedEvent(sse.Event{SessionLogID: constants.AutoRemoveLogID, ElementType: constants.EventTypeAutoRemove}, a.key)
	a.engine.registry.Deliver(marker, true)

	if remove {
		a.engine.mu.Lock()
		delete(a.engine.agents, a.key)
		a.engine.mu.Unlock()
	}
}
