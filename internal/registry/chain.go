package registry

import "github.com/omalloc/ssedeliver/api/defined/v1/sse"

// chain implements sse.Chain. index and goThroughMode are shared,
// mutable state across the whole recursive Proceed call tree, matching
// the single-index chain-of-responsibility contract: a subscriber
// "terminates" the normal phase by not calling Proceed itself, but
// goThrough subscribers still fire in the pass that follows.
type chain struct {
	subs          []sse.Subscriber
	elementType   string
	index         int
	goThroughMode bool
	notified      []uint64
}

func newChain(subs []sse.Subscriber, elementType string) *chain {
	return &chain{subs: subs, elementType: elementType, index: -1}
}

func (c *chain) Notified() []uint64 {
	return c.notified
}

func (c *chain) Proceed(resp sse.Response) sse.Response {
	c.index++
	if c.index >= len(c.subs) {
		return resp
	}
	s := c.subs[c.index]

	if !c.goThroughMode {
		s.OnMatch(c.elementType)
		c.notified = append(c.notified, sse.SubscriberKey(s))
		r := s.Callback(c, resp)
		c.goThroughMode = true
		return c.Proceed(r)
	}

	if !s.GoThrough() {
		return c.Proceed(resp)
	}

	s.OnMatch(c.elementType)
	c.notified = append(c.notified, sse.SubscriberKey(s))
	r := s.Callback(c, resp)
	return c.Proceed(r)
}
