package engine

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	x "github.com/omalloc/ssedeliver/pkg/x/runtime"
)

// panicRecovery guards the admission pipeline against a panicking
// SSEFilter — host-supplied code running inside teeSSEBody.Read, so an
// uncaught panic there would otherwise surface on whatever goroutine is
// draining the response body. Subscriber callbacks are not covered:
// they run from the CacheDeliverer's pacing loop (or FlushPeek), outside
// admit, and a panic there is not recovered. Repeated panics within
// window force the connection to
// connectException, the same "healthy fail" escalation idea as the
// teacher's recovery middleware, applied to admission instead of the
// whole RoundTrip.
type panicRecovery struct {
	threshold int32
	window    time.Duration

	mu          sync.Mutex
	count       int32
	windowStart time.Time
}

func newPanicRecovery(threshold int32, window time.Duration) *panicRecovery {
	return &panicRecovery{threshold: threshold, window: window, windowStart: time.Now()}
}

// tripped records one panic and reports whether the count has reached
// threshold within the current window (true for every further panic in
// that window, too).
func (p *panicRecovery) tripped() bool {
	if p.threshold <= 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window > 0 && time.Since(p.windowStart) > p.window {
		p.count = 0
		p.windowStart = time.Now()
	}
	p.count++
	return p.count >= p.threshold
}

// recoverAdmit is deferred around one admit() call. It swallows a
// panic, logs it with a stack trace, and escalates the connection
// state once the panic rate crosses the configured threshold.
func (e *Engine) recoverAdmit(reqURL string) {
	r := recover()
	if r == nil {
		return
	}

	e.log.Errorf("engine: recovered panic in admission pipeline (url=%s, build=%s): %v\n%s",
		reqURL, x.BuildInfo.VcsRevision, r, debug.Stack())

	if e.panics.tripped() {
		e.log.Errorf("engine: reached panic threshold (%d) within %s, forcing connectException", e.panics.threshold, e.panics.window)
		e.connect.Transition(sse.ConnectException, true)
	}
}
