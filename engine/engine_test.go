package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/event"
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/internal/bridge"
	"github.com/stretchr/testify/require"
)

func frame(elementType, sessionLogID, result string) string {
	return `data:{"elementType":"` + elementType + `","sessionLogId":"` + sessionLogID + `","result":"` + result + `"}>s`
}

func newTestEngine(t *testing.T, body string) (*Engine, *http.Client, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	e := New(DefaultConfig())
	client := &http.Client{}
	e.Init(client, bridge.NewRouter())
	return e, client, srv.URL
}

type collector struct {
	mu     sync.Mutex
	events []sse.Event
}

func (c *collector) subscriber(elementType string, strategy sse.AutoClearStrategy) sse.Subscriber {
	return sse.NewFuncSubscriber(
		"test."+elementType,
		[]sse.WatchSpec{{EventType: elementType}},
		strategy,
		false,
		false,
		func(_ sse.Chain, resp sse.Response) sse.Response {
			c.mu.Lock()
			c.events = append(c.events, resp.Event)
			c.mu.Unlock()
			resp.RemoveCache = true
			return resp
		},
	)
}

func (c *collector) snapshot() []sse.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sse.Event(nil), c.events...)
}

func TestEngine_InterceptsSSEStreamAndDeliversEvents(t *testing.T) {
	body := frame("text", "s1", "hello") + frame("text", "s1", "world")
	e, client, url := newTestEngine(t, body)

	c := &collector{}
	e.Registry().Add(c.subscriber("text", sse.ClearOnStream), true)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	events := c.snapshot()
	require.Equal(t, "hello", events[0].Result)
	require.Equal(t, "world", events[1].Result)

	require.Eventually(t, func() bool {
		return e.Connect().State() == sse.ConnectSuspend
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_RoundTripClearsStaleCacheFromPriorStream(t *testing.T) {
	e, client, url1 := newTestEngine(t, frame("orphan", "s1", "stale"))

	req1, err := http.NewRequest(http.MethodGet, url1, nil)
	require.NoError(t, err)
	req1.Header.Set("Accept", "text/event-stream")
	resp1, err := client.Do(req1)
	require.NoError(t, err)
	_, err = io.ReadAll(resp1.Body)
	require.NoError(t, err)
	require.NoError(t, resp1.Body.Close())

	require.Eventually(t, func() bool {
		return e.Connect().State() == sse.ConnectSuspend
	}, time.Second, 5*time.Millisecond)

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, frame("orphan", "s2", "fresh"))
	}))
	t.Cleanup(srv2.Close)

	c := &collector{}
	e.Registry().Add(c.subscriber("orphan", sse.ClearOnStream), true)

	req2, err := http.NewRequest(http.MethodGet, srv2.URL, nil)
	require.NoError(t, err)
	req2.Header.Set("Accept", "text/event-stream")
	resp2, err := client.Do(req2)
	require.NoError(t, err)
	_, err = io.ReadAll(resp2.Body)
	require.NoError(t, err)
	require.NoError(t, resp2.Body.Close())

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	events := c.snapshot()
	require.Equal(t, "fresh", events[0].Result, "the stale orphan event from the prior stream must not resurface")
}

func TestEngine_RejectsConcurrentSSERequest(t *testing.T) {
	e, client, url := newTestEngine(t, frame("text", "s1", "hi"))

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	req2, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req2.Header.Set("Accept", "text/event-stream")

	_, err = e.RoundTrip(req2)
	require.ErrorIs(t, err, ErrStreamInProgress)
}

func TestEngine_NonSSERequestPassesThroughUnintercepted(t *testing.T) {
	e, client, url := newTestEngine(t, "plain body")

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "plain body", string(out))

	require.False(t, e.streamTransforming)
}

func TestEngine_AutoRemoveMarkerClearsStreamScopedSubscribers(t *testing.T) {
	body := frame("text", "s1", "only")
	e, client, url := newTestEngine(t, body)

	c := &collector{}
	e.Registry().Add(c.subscriber("text", sse.ClearOnStream), true)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	req2, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req2.Header.Set("Accept", "text/event-stream")
	resp2, err := client.Do(req2)
	require.NoError(t, err)
	_, err = io.ReadAll(resp2.Body)
	require.NoError(t, err)
	resp2.Body.Close()

	time.Sleep(50 * time.Millisecond)
	require.Len(t, c.snapshot(), 1, "stream-scoped subscriber must not survive past the first stream")
}

func TestEngine_PublishesStreamCompletedSummary(t *testing.T) {
	body := frame("text", "s1", "hello") + frame("text", "s1", "world")
	_, client, url := newTestEngine(t, body)

	summaries := make(chan event.StreamCompleted, 1)
	err := event.Subscribe(
		event.NewTopicKey[event.StreamCompleted](event.StreamCompletedKey),
		func(_ context.Context, payload event.StreamCompleted) {
			summaries <- payload
		},
	)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	select {
	case summary := <-summaries:
		require.Equal(t, url, summary.RequestURL())
		require.Equal(t, sse.ConnectSuspend.String(), summary.FinalState())
		require.Equal(t, 3, summary.EventsAdmitted(), "stream-open marker plus the two frames")
	case <-time.After(time.Second):
		t.Fatal("stream.completed was not published")
	}
}

func TestEngine_FastDeliverToggleIsIdempotentAndRestores(t *testing.T) {
	e := New(DefaultConfig())
	original := e.Cache().Interval()

	e.EnableFastDeliver()
	e.EnableFastDeliver()
	require.Equal(t, time.Millisecond, e.Cache().Interval())

	e.DisableFastDeliver()
	require.Equal(t, original, e.Cache().Interval())

	e.DisableFastDeliver()
	require.Equal(t, original, e.Cache().Interval())
}
