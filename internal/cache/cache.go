// Package cache implements the CacheDeliverer: the paced main/peek
// cache pool sitting between the FilterService and the
// InterceptorRegistry.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/paulbellamy/ratecounter"
)

// PopResult is what the caller-supplied pop callback reports back for
// one popped entry.
type PopResult struct {
	IsConsumed           bool
	AutoRemove           bool
	NotifiedInterceptors []uint64
}

// PopFunc delivers one cached entry to the registry and reports the
// outcome that governs dirty-marking and removal.
type PopFunc func(entry *sse.CachedEvent) PopResult

// Deliverer is the CacheDeliverer: two independent ordered buffers
// ("main", "peek"), each behind its own FIFO mutual-exclusion region,
// with a paced extraction loop over main.
type Deliverer struct {
	mainMu sync.Mutex
	main   []*sse.CachedEvent

	peekMu sync.Mutex
	peek   []*sse.CachedEvent

	canRunLockedTask bool
	breakLoop        bool
	lastPop          PopFunc

	loopMu      sync.Mutex
	loopRunning bool
	loopDone    chan struct{}

	paused     atomic.Bool
	stateMu    sync.Mutex
	pauseCount int

	eleTypesInInterval map[string]struct{}
	interval           time.Duration

	idleMu       sync.Mutex
	idleObserver func()
	idleStop     chan struct{}
	idleLength   int

	rate          *ratecounter.RateCounter
	evictionCh    chan *sse.CachedEvent
}

// New returns an active Deliverer with the given default pacing
// interval (applied only to element types passed to SetIntervalTypes).
func New(interval time.Duration) *Deliverer {
	return &Deliverer{
		canRunLockedTask:   true,
		eleTypesInInterval: make(map[string]struct{}),
		interval:           interval,
		rate:               ratecounter.NewRateCounter(time.Second),
	}
}

// SetIntervalTypes replaces the set of element types the pacing loop
// delays between. An empty set means pacing never delays (§8).
func (d *Deliverer) SetIntervalTypes(types []string) {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	d.mainMu.Lock()
	d.eleTypesInInterval = set
	d.mainMu.Unlock()
}

// Interval returns the current pacing delay.
func (d *Deliverer) Interval() time.Duration {
	d.mainMu.Lock()
	defer d.mainMu.Unlock()
	return d.interval
}

// SetInterval replaces the pacing delay and returns the previous value,
// so the engine's fast-deliver toggle can save/restore it.
func (d *Deliverer) SetInterval(next time.Duration) time.Duration {
	d.mainMu.Lock()
	defer d.mainMu.Unlock()
	prev := d.interval
	d.interval = next
	return prev
}

// SetEvictionChannel installs an optional channel that receives every
// entry the auto-remove sweep drops, for audit/metrics. Sends are
// non-blocking: a full or nil channel silently drops the notification.
func (d *Deliverer) SetEvictionChannel(ch chan *sse.CachedEvent) {
	d.evictionCh = ch
}

// SetIdleObserver installs the callback invoked when main-cache length
// hasn't changed across one idle tick.
func (d *Deliverer) SetIdleObserver(fn func()) {
	d.idleMu.Lock()
	d.idleObserver = fn
	d.idleMu.Unlock()
}

// Throughput reports a decaying events/sec rate over consumed entries.
func (d *Deliverer) Throughput() float64 {
	return float64(d.rate.Rate())
}

// Put appends events to the main cache and (re)enters the pacing loop.
func (d *Deliverer) Put(events []sse.Event, reqURL string, pop PopFunc) {
	d.mainMu.Lock()
	if !d.canRunLockedTask {
		d.mainMu.Unlock()
		return
	}
	for _, ev := range events {
		d.main = append(d.main, sse.NewCachedEvent(ev, reqURL))
	}
	d.mainMu.Unlock()

	d.enterLoop(pop)
}

// PutPeek appends to the peek cache; peek never paces or drains on its
// own, it only accumulates until FlushPeek is called.
func (d *Deliverer) PutPeek(events []sse.Event, reqURL string) {
	d.peekMu.Lock()
	defer d.peekMu.Unlock()
	if !d.canRunLockedTask {
		return
	}
	for _, ev := range events {
		d.peek = append(d.peek, sse.NewCachedEvent(ev, reqURL))
	}
}

// FlushPeek synchronously pops every peek entry through pop, in order,
// with no pacing and no removal.
func (d *Deliverer) FlushPeek(pop PopFunc) {
	d.peekMu.Lock()
	snapshot := append([]*sse.CachedEvent(nil), d.peek...)
	d.peekMu.Unlock()

	for _, entry := range snapshot {
		rep := pop(entry)
		entry.IsDirty = rep.IsConsumed
		entry.AutoRemove = rep.AutoRemove
		entry.MergeNotified(rep.NotifiedInterceptors)
	}
}

// Flush re-enters the pacing loop over the current main content. If
// breakLoop is true and a loop is currently running, it is signaled to
// stop first so this flush's own iteration runs next.
func (d *Deliverer) Flush(pop PopFunc, breakLoop bool) {
	if breakLoop {
		d.stopLoopAndWait()
	}
	d.enterLoop(pop)
}

// Replace breaks the current loop, removes every main entry matching
// predicate, and inserts newEvent at the head.
func (d *Deliverer) Replace(predicate func(*sse.CachedEvent) bool, newEvent sse.Event, reqURL string) {
	d.stopLoopAndWait()

	d.mainMu.Lock()
	kept := d.main[:0]
	for _, e := range d.main {
		if !predicate(e) {
			kept = append(kept, e)
		}
	}
	d.main = append([]*sse.CachedEvent{sse.NewCachedEvent(newEvent, reqURL)}, kept...)
	d.mainMu.Unlock()
}

// ClearCache breaks the loop, refuses further locked work, and empties
// both caches.
func (d *Deliverer) ClearCache() {
	d.mainMu.Lock()
	d.canRunLockedTask = false
	d.mainMu.Unlock()

	d.stopLoopAndWait()

	d.mainMu.Lock()
	d.main = nil
	d.canRunLockedTask = true
	d.mainMu.Unlock()

	d.peekMu.Lock()
	d.peek = nil
	d.peekMu.Unlock()
}

// SweepAutoRemove drops main-cache entries admitted strictly before
// watermark whose AutoRemove flag is true — the timestamp-watermark
// auto-removal pass, separate from dirty-removal, run by the engine
// whenever a consumed pop reports removeCache=true (§4.3, §9).
func (d *Deliverer) SweepAutoRemove(watermark time.Time) {
	d.mainMu.Lock()
	defer d.mainMu.Unlock()

	kept := d.main[:0]
	for _, e := range d.main {
		if e.AutoRemove && e.AdmittedAt.Before(watermark) {
			if d.evictionCh != nil {
				select {
				case d.evictionCh <- e:
				default:
				}
			}
			continue
		}
		kept = append(kept, e)
	}
	d.main = kept
}

// SetState is the reference-counted pause/resume gate. While paused, the
// pacing loop admits no further pops: Put/PutPeek still accumulate, they
// just don't drain until pauseCount returns to zero (§8 scenario 6).
// force zeroes the counter and applies the target state directly,
// bypassing the reference count.
func (d *Deliverer) SetState(pause bool, force bool) {
	d.stateMu.Lock()
	var becameActive bool

	if force {
		d.pauseCount = 0
		if pause {
			d.pauseCount = 1
		}
		becameActive = !pause
	} else if pause {
		d.pauseCount++
	} else {
		if d.pauseCount > 0 {
			d.pauseCount--
		}
		becameActive = d.pauseCount == 0
	}

	active := d.pauseCount == 0
	d.stateMu.Unlock()

	d.paused.Store(!active)
	d.applyIdleSideEffect(active)

	if becameActive {
		d.mainMu.Lock()
		pop := d.lastPop
		d.mainMu.Unlock()
		if pop != nil {
			d.enterLoop(pop)
		}
	}
}

// PauseCount exposes the reference count for the §8 invariant tests.
func (d *Deliverer) PauseCount() int {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.pauseCount
}

// IsActive reports pauseCount == 0.
func (d *Deliverer) IsActive() bool {
	return d.PauseCount() == 0
}

func (d *Deliverer) applyIdleSideEffect(active bool) {
	if active {
		d.startIdleChecker()
	} else {
		d.stopIdleChecker()
	}
}

func (d *Deliverer) startIdleChecker() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	if d.idleStop != nil {
		return
	}
	stop := make(chan struct{})
	d.idleStop = stop

	interval := d.Interval()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.checkIdle()
			}
		}
	}()
}

func (d *Deliverer) stopIdleChecker() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	if d.idleStop != nil {
		close(d.idleStop)
		d.idleStop = nil
	}
}

func (d *Deliverer) checkIdle() {
	d.mainMu.Lock()
	length := len(d.main)
	d.mainMu.Unlock()

	d.idleMu.Lock()
	unchanged := length == d.idleLength && length > 0
	d.idleLength = length
	observer := d.idleObserver
	d.idleMu.Unlock()

	if unchanged && observer != nil {
		observer()
	}
}

func (d *Deliverer) enterLoop(pop PopFunc) {
	d.mainMu.Lock()
	d.lastPop = pop
	d.mainMu.Unlock()

	if d.paused.Load() {
		return
	}

	d.loopMu.Lock()
	if d.loopRunning {
		d.loopMu.Unlock()
		return
	}
	d.loopRunning = true
	done := make(chan struct{})
	d.loopDone = done
	d.loopMu.Unlock()

	go func() {
		defer close(done)
		d.runLoop(pop)
		d.loopMu.Lock()
		d.loopRunning = false
		d.loopMu.Unlock()
	}()
}

func (d *Deliverer) stopLoopAndWait() {
	d.loopMu.Lock()
	running := d.loopRunning
	done := d.loopDone
	d.loopMu.Unlock()

	if !running {
		return
	}

	d.mainMu.Lock()
	d.breakLoop = true
	d.mainMu.Unlock()

	<-done
}

func (d *Deliverer) checkStop() bool {
	d.mainMu.Lock()
	brk := d.breakLoop
	if brk {
		d.breakLoop = false
	}
	running := d.canRunLockedTask
	d.mainMu.Unlock()

	if brk || !running {
		return true
	}
	return d.paused.Load()
}

func (d *Deliverer) inInterval(elementType string) bool {
	d.mainMu.Lock()
	defer d.mainMu.Unlock()
	_, ok := d.eleTypesInInterval[elementType]
	return ok
}

// runLoop makes exactly one pass over a snapshot of the main cache,
// popping every entry once, then removes whatever that pass left dirty
// and returns. It never re-snapshots to retry entries the subscriber
// left clean (e.g. one outside eleTypesInInterval whose callback never
// set RemoveCache) — those are only revisited by the next external
// Put/Flush call into enterLoop, matching the pacing contract.
func (d *Deliverer) runLoop(pop PopFunc) {
	if d.checkStop() {
		return
	}

	d.mainMu.Lock()
	snapshot := append([]*sse.CachedEvent(nil), d.main...)
	d.mainMu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	for _, entry := range snapshot {
		if d.checkStop() {
			return
		}

		rep := pop(entry)
		entry.IsDirty = rep.IsConsumed
		entry.AutoRemove = rep.AutoRemove
		entry.MergeNotified(rep.NotifiedInterceptors)
		if rep.IsConsumed {
			d.rate.Incr(1)
		}

		if d.inInterval(entry.ElementType) {
			time.Sleep(d.Interval())
			if d.checkStop() {
				return
			}
		}
	}

	d.mainMu.Lock()
	kept := d.main[:0]
	for _, e := range d.main {
		if !e.IsDirty {
			kept = append(kept, e)
		}
	}
	d.main = kept
	d.mainMu.Unlock()
}
