package engine

import (
	"sort"

	"github.com/omalloc/ssedeliver/pkg/algorithm/heavykeeper"
)

// maxTrackedElementTypes bounds the set of distinct elementType values
// the engine will ever use as a Prometheus label. elementType comes
// from the upstream SSE frame, not from our own code, so without a
// cap a misbehaving or evolving upstream can blow up label cardinality
// one new string at a time. Anything past the cap is folded into the
// "other" bucket; HeavyKeeper still counts every value, but
// HotElementTypes only ranks the values that got their own label.
const maxTrackedElementTypes = 128

// elementTypeOther is the label value admitted/delivered counters use
// for any elementType beyond maxTrackedElementTypes.
const elementTypeOther = "other"

// trackedLabel records elementType in the HeavyKeeper sketch and
// returns the label value a Prometheus counter should use for it:
// elementType itself while the known set has room, otherwise
// elementTypeOther. Call it once per admitted event, at admission.
func (e *Engine) trackedLabel(elementType string) string {
	e.hot.Add([]byte(elementType))
	return e.labelFor(elementType)
}

// labelFor maps elementType to the label value a Prometheus counter
// should use, without feeding the HeavyKeeper sketch. Call it at
// delivery time, once the event's label was already decided at
// admission.
func (e *Engine) labelFor(elementType string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.knownTypes[elementType]; ok {
		return elementType
	}
	if len(e.knownTypes) >= maxTrackedElementTypes {
		return elementTypeOther
	}
	e.knownTypes[elementType] = struct{}{}
	return elementType
}

// HotElementTypes returns up to k elementType values the engine has
// admitted, ranked by HeavyKeeper's decaying frequency estimate,
// heaviest first. Only the elementType values that have their own
// label (the first maxTrackedElementTypes distinct values) are
// candidates; values folded into elementTypeOther are never returned.
func (e *Engine) HotElementTypes(k int) []string {
	e.mu.Lock()
	types := make([]string, 0, len(e.knownTypes))
	for t := range e.knownTypes {
		types = append(types, t)
	}
	e.mu.Unlock()

	sort.Slice(types, func(i, j int) bool {
		return e.hot.Query([]byte(types[i])) > e.hot.Query([]byte(types[j]))
	})
	if len(types) > k {
		types = types[:k]
	}
	return types
}

func newHotTracker() *heavykeeper.HeavyKeeper {
	return heavykeeper.New(4, 2048, 0.9)
}
