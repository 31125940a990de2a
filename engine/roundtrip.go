package engine

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/event"
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/internal/constants"
	"github.com/omalloc/ssedeliver/metrics"
	"github.com/omalloc/ssedeliver/pkg/iobuf"
)

// RoundTrip is the Engine's http.RoundTripper implementation: every
// request passes through unchanged except an SSE request (identified by
// its Accept header), which it intercepts to drive the delivery
// pipeline off the response body as the caller reads it.
func (e *Engine) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(constants.HeaderAccept) != constants.AcceptEventStream {
		return e.origin.RoundTrip(req)
	}

	e.mu.Lock()
	if e.streamTransforming {
		e.mu.Unlock()
		return nil, ErrStreamInProgress
	}
	e.streamTransforming = true
	e.currentReqURL = req.URL.String()
	e.streamStart = time.Now()
	e.eventsAdmitted = 0
	e.eventsDelivered = 0
	e.lastActive = time.Now()
	e.mu.Unlock()

	req, _ = metrics.WithRequestMetric(req)
	e.log.WithContext(req.Context()).Infof("sse stream opening: %s", req.URL.String())

	e.connect.Transition(sse.DisconnectNormal, true)

	resp, err := e.roundTripBody(req)
	if err != nil {
		e.onStreamError(req.URL.String(), err)
		return nil, err
	}

	e.cache.ClearCache()
	e.admitStreamOpen(req.URL.String())
	resp.Body = &teeSSEBody{rc: e.wrapIngest(resp.Body), engine: e, reqURL: req.URL.String()}
	return resp, nil
}

// wrapIngest applies the configured body-size cap and ingest rate limit
// to rc, in that order, so a bandwidth-limited stream still hits EOF
// once MaxBodyBytes is exhausted rather than limiting forever.
func (e *Engine) wrapIngest(rc io.ReadCloser) io.ReadCloser {
	if e.cfg.MaxBodyBytes > 0 {
		rc = iobuf.LimitReadCloser(rc, e.cfg.MaxBodyBytes)
	}
	if e.cfg.MaxIngestKbps > 0 {
		rc = iobuf.NewRateLimitReader(rc, e.cfg.MaxIngestKbps)
	}
	return rc
}

// roundTripBody dispatches either to an offline provider (if the
// request names one) or to the wrapped origin transport.
func (e *Engine) roundTripBody(req *http.Request) (*http.Response, error) {
	if name, ok := offlineProviderName(req); ok {
		e.mu.Lock()
		provider, known := e.offlineProviders[name]
		e.mu.Unlock()
		if !known {
			return nil, ErrUnknownOfflineProvider
		}
		rc, err := provider.Open(req.Context(), req.URL.String())
		if err != nil {
			return nil, err
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Proto:      req.Proto,
			ProtoMajor: req.ProtoMajor,
			ProtoMinor: req.ProtoMinor,
			Header:     make(http.Header),
			Body:       rc,
			Request:    req,
		}, nil
	}

	return e.origin.RoundTrip(req)
}

// admitStreamOpen synthesizes the reserved stream-open marker and runs
// it through the normal admission pipeline (filtered, admitted to both
// caches), per the on-response hook's first step.
func (e *Engine) admitStreamOpen(reqURL string) {
	e.admit(sse.Event{SessionLogID: constants.StreamOpenLogID, ElementType: constants.EventTypeStreamOpen}, reqURL)
}

// teeSSEBody wraps the real response body: every Read both returns
// bytes to the caller unchanged and feeds the same bytes into the
// engine's StreamAdapter, so the delivery pipeline advances exactly in
// step with the caller's own consumption (the engine never spawns a
// reader goroutine of its own).
type teeSSEBody struct {
	rc     io.ReadCloser
	engine *Engine
	reqURL string
}

func (t *teeSSEBody) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 {
		for _, ev := range t.engine.adapter.Feed(string(p[:n])) {
			t.engine.admit(ev, t.reqURL)
		}
	}
	if err != nil {
		if err == io.EOF {
			t.engine.onStreamDone(t.reqURL)
		} else {
			t.engine.onStreamError(t.reqURL, err)
		}
	}
	return n, err
}

func (t *teeSSEBody) Close() error {
	return t.rc.Close()
}

// onStreamDone runs the on-response "done" branch: synthesize the
// auto-remove marker into peek only, end the stream bookkeeping, drop
// to connectSuspend, flush peek through the registry, reset the
// transitory filter and tell the bridge to stop.
func (e *Engine) onStreamDone(reqURL string) {
	e.endStream(reqURL, sse.ConnectSuspend)
}

// onStreamError runs the on-error branch: identical to onStreamDone but
// the terminal connection state is disconnectError instead of
// connectSuspend.
func (e *Engine) onStreamError(reqURL string, err error) {
	e.log.Errorf("sse stream error on %s: %v", reqURL, err)
	e.endStream(reqURL, sse.DisconnectError)
}

func (e *Engine) endStream(reqURL string, state sse.ConnectionState) {
	marker := sse.Event{SessionLogID: constants.AutoRemoveLogID, ElementType: constants.EventTypeAutoRemove}
	e.cache.PutPeek([]sse.Event{marker}, reqURL)

	e.mu.Lock()
	e.streamTransforming = false
	streamID := e.currentReqURL
	e.currentReqURL = ""
	summary := &streamSummary{
		requestURL: reqURL,
		finalState: state.String(),
		admitted:   e.eventsAdmitted,
		delivered:  e.eventsDelivered,
		duration:   time.Since(e.streamStart),
	}
	e.mu.Unlock()

	e.connect.Transition(state, false)
	e.cache.FlushPeek(e.popPeek)
	e.filter.Reset()
	e.adapter.Reset()
	e.publishStreamCompleted(context.Background(), summary)

	if e.router != nil && streamID != "" {
		e.router.Close(streamID)
	}
}

// streamSummary is the concrete event.StreamCompleted published on
// api/defined/v1/event's StreamCompletedKey topic when a stream ends.
type streamSummary struct {
	requestURL string
	finalState string
	admitted   int
	delivered  int
	duration   time.Duration
}

func (s *streamSummary) Kind() event.Kind        { return event.StreamCompletedKey }
func (s *streamSummary) RequestURL() string      { return s.requestURL }
func (s *streamSummary) FinalState() string      { return s.finalState }
func (s *streamSummary) EventsAdmitted() int     { return s.admitted }
func (s *streamSummary) EventsDelivered() int    { return s.delivered }
func (s *streamSummary) Duration() time.Duration { return s.duration }
