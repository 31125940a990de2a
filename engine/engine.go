// Package engine wires the StreamAdapter, FilterService, CacheDeliverer,
// InterceptorRegistry and ConnectManager into the single orchestrator a
// host installs as an http.RoundTripper: the Engine.
package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/event"
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/contrib/log"
	"github.com/omalloc/ssedeliver/internal/adapter"
	"github.com/omalloc/ssedeliver/internal/bridge"
	"github.com/omalloc/ssedeliver/internal/cache"
	"github.com/omalloc/ssedeliver/internal/connect"
	"github.com/omalloc/ssedeliver/internal/constants"
	"github.com/omalloc/ssedeliver/internal/filter"
	"github.com/omalloc/ssedeliver/internal/registry"
	"github.com/omalloc/ssedeliver/metrics"
	"github.com/omalloc/ssedeliver/pkg/algorithm/heavykeeper"
	x "github.com/omalloc/ssedeliver/pkg/x/runtime"
)

// Engine is the client-side SSE delivery orchestrator. It implements
// http.RoundTripper and is meant to be installed as a client's
// Transport, transparently intercepting text/event-stream responses
// while leaving every other request untouched.
type Engine struct {
	cfg Config
	log *log.Helper

	adapter  *adapter.StreamAdapter
	filter   *filter.Service
	cache    *cache.Deliverer
	registry *registry.Registry
	connect  *connect.Manager
	router   *bridge.Router

	origin http.RoundTripper

	mu                 sync.Mutex
	streamTransforming bool
	currentReqURL      string
	streamStart        time.Time
	eventsAdmitted     int
	eventsDelivered    int
	lastActive         time.Time
	savedInterval      *time.Duration
	offlineProviders   map[string]OfflineProvider
	agents             map[string]struct{}

	publishStreamCompleted func(ctx context.Context, payload event.StreamCompleted)

	hot        *heavykeeper.HeavyKeeper
	knownTypes map[string]struct{}

	panics *panicRecovery
}

// New constructs an Engine from cfg. It is inert until Init installs it
// on an *http.Client.
func New(cfg Config) *Engine {
	a := cfg.StreamAdapter
	if a == nil {
		a = adapter.New()
	}

	e := &Engine{
		cfg:                    cfg,
		log:                    log.NewHelper(log.DefaultLogger),
		adapter:                a,
		filter:                 filter.New(cfg.SSEFilter),
		cache:                  cache.New(cfg.SSEBufferExtractInterval),
		registry:               registry.New(),
		connect:                connect.New(),
		offlineProviders:       make(map[string]OfflineProvider),
		agents:                 make(map[string]struct{}),
		lastActive:             time.Now(),
		hot:                    newHotTracker(),
		knownTypes:             make(map[string]struct{}),
		publishStreamCompleted: event.NewPublish[event.StreamCompleted](event.NewTopicKey[event.StreamCompleted](event.StreamCompletedKey)),
		panics:                 newPanicRecovery(cfg.PanicFailThreshold, cfg.PanicFailWindow),
	}
	e.cache.SetIntervalTypes(cfg.EleTypesInInterval)
	return e
}

// Init wires the Engine onto client (replacing and wrapping its current
// Transport) and keeps router, whose entry for a stream is closed when
// that SSE stream ends. router is an explicit dependency: the host owns
// it and may share one Router across several Engines.
func (e *Engine) Init(client *http.Client, router *bridge.Router) {
	e.router = router

	e.log.Infof("engine starting: config.version=%s go=%s commit=%s", e.cfg.Version, x.BuildInfo.GoVersion, x.BuildInfo.VcsRevision)

	e.registry.Add(e.newAutoRemoveInterceptor(), true)
	e.cache.SetIdleObserver(e.checkIdle)

	origin := client.Transport
	if origin == nil {
		origin = http.DefaultTransport
	}
	e.origin = origin
	client.Transport = e
}

// Registry exposes the InterceptorRegistry so a host can Add/Remove its
// own Subscribers (e.g. UI bindings) around the engine's lifecycle.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Connect exposes the ConnectManager so a host can AddObserver or read
// State directly.
func (e *Engine) Connect() *connect.Manager { return e.connect }

// Cache exposes the CacheDeliverer for direct SetState (pause/resume)
// calls and Throughput/PauseCount inspection.
func (e *Engine) Cache() *cache.Deliverer { return e.cache }

// SetTransitoryFilter installs a per-request filter that overrides the
// permanent one until the stream completes, at which point it is reset.
func (e *Engine) SetTransitoryFilter(fn filter.Func) {
	e.filter.SetTransitory(fn)
}

// EnableFastDeliver drops the pacing interval to a near-zero value,
// remembering the previous interval so DisableFastDeliver can restore
// it. Calling it twice without an intervening Disable is a no-op.
func (e *Engine) EnableFastDeliver() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.savedInterval != nil {
		return
	}
	prev := e.cache.SetInterval(time.Millisecond)
	e.savedInterval = &prev
}

// DisableFastDeliver restores the pacing interval EnableFastDeliver
// saved. A call with no matching Enable is a no-op.
func (e *Engine) DisableFastDeliver() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.savedInterval == nil {
		return
	}
	e.cache.SetInterval(*e.savedInterval)
	e.savedInterval = nil
}

// checkIdle is the CacheDeliverer's idle observer: it compares the time
// since the last consumed delivery against the configured thresholds
// and escalates the connection state accordingly. It is never invoked
// while the deliverer is paused (cache.SetState suspends the idle
// checker for the duration of the pause).
func (e *Engine) checkIdle() {
	e.mu.Lock()
	reqURL := e.currentReqURL
	last := e.lastActive
	e.mu.Unlock()

	for _, p := range e.cfg.UnCheckConnectStatePaths {
		if p != "" && containsPath(reqURL, p) {
			return
		}
	}

	idle := time.Since(last)
	switch {
	case e.cfg.ExceptionTimeout > 0 && idle > e.cfg.ExceptionTimeout:
		e.connect.Transition(sse.ConnectException, false)
	case e.cfg.IdleTimeout > 0 && idle > e.cfg.IdleTimeout:
		e.connect.Transition(sse.ConnectIdle, false)
	}
}

func containsPath(reqURL, path string) bool {
	if reqURL == "" || path == "" {
		return false
	}
	return strings.Contains(reqURL, path)
}

// admit runs raw through the FilterService, drops whatever the expansion
// produces that isn't Legal, and puts the remainder into both caches.
func (e *Engine) admit(raw sse.Event, reqURL string) {
	defer e.recoverAdmit(reqURL)

	produced := e.filter.Resolve(context.Background(), raw)
	if len(produced) == 0 {
		return
	}

	legal := make([]sse.Event, 0, len(produced))
	for _, ev := range produced {
		if !ev.Legal() {
			metrics.EventsDroppedTotal.WithLabelValues("illegal").Inc()
			continue
		}
		legal = append(legal, ev)
		metrics.EventsAdmittedTotal.WithLabelValues(e.trackedLabel(ev.ElementType)).Inc()
	}
	if len(legal) == 0 {
		return
	}

	e.mu.Lock()
	e.eventsAdmitted += len(legal)
	e.mu.Unlock()

	e.cache.PutPeek(legal, reqURL)
	e.cache.Put(legal, reqURL, e.pop)
}

// pop is the CacheDeliverer's main-cache PopFunc: it dispatches through
// the registry and, whenever the delivery is consumed, sweeps earlier
// auto-remove entries using the entry's admission time as watermark,
// advances the idle watermark and lifts the connection state back to
// active.
func (e *Engine) pop(entry *sse.CachedEvent) cache.PopResult {
	resp, notified := e.registry.Deliver(entry, false)
	if resp.RemoveCache {
		e.cache.SweepAutoRemove(entry.AdmittedAt)
		metrics.EventsDeliveredTotal.WithLabelValues(e.labelFor(entry.ElementType)).Inc()
		e.mu.Lock()
		e.lastActive = time.Now()
		e.eventsDelivered++
		e.mu.Unlock()
		e.connect.Transition(sse.ConnectActive, false)
	}
	return cache.PopResult{IsConsumed: resp.RemoveCache, AutoRemove: resp.AutoRemove, NotifiedInterceptors: notified}
}

// popPeek is the CacheDeliverer's peek-cache PopFunc, used only by
// FlushPeek at stream completion.
func (e *Engine) popPeek(entry *sse.CachedEvent) cache.PopResult {
	resp, notified := e.registry.Deliver(entry, true)
	return cache.PopResult{IsConsumed: resp.RemoveCache, AutoRemove: resp.AutoRemove, NotifiedInterceptors: notified}
}

// newAutoRemoveInterceptor is the engine's own permanent, peek-only,
// highest-priority subscriber: it is the sole consumer of the reserved
// auto-remove marker and fires the registry's stream-scoped teardown.
func (e *Engine) newAutoRemoveInterceptor() sse.Subscriber {
	watch := sse.WatchSpec{EventType: constants.EventTypeAutoRemove, Priority: 1 << 30}
	return sse.NewFuncSubscriber(
		"engine.auto-remove",
		[]sse.WatchSpec{watch},
		sse.ClearNever,
		false,
		true,
		func(_ sse.Chain, resp sse.Response) sse.Response {
			e.registry.RemoveStreamScoped()
			resp.RemoveCache = true
			return resp
		},
	)
}
