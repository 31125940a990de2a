package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		if cond() {
			return
		}
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("condition never became true")
		}
	}
}

func TestDeliverer_PutDeliversInFIFOOrder(t *testing.T) {
	d := New(0)
	var mu sync.Mutex
	var got []string

	pop := func(entry *sse.CachedEvent) PopResult {
		mu.Lock()
		got = append(got, entry.Result)
		mu.Unlock()
		return PopResult{IsConsumed: true}
	}

	d.Put([]sse.Event{{ElementType: "text", Result: "1"}, {ElementType: "text", Result: "2"}}, "", pop)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"1", "2"}, got)
}

func TestDeliverer_PauseThenResumeDrainsInFIFOOrderWithInterval(t *testing.T) {
	d := New(10 * time.Millisecond)
	d.SetIntervalTypes([]string{"text"})

	var mu sync.Mutex
	var got []string

	pop := func(entry *sse.CachedEvent) PopResult {
		mu.Lock()
		got = append(got, entry.Result)
		mu.Unlock()
		return PopResult{IsConsumed: true}
	}

	d.SetState(true, false)
	require.Equal(t, 1, d.PauseCount())
	require.False(t, d.IsActive())

	d.Put([]sse.Event{
		{ElementType: "text", Result: "a"},
		{ElementType: "text", Result: "b"},
		{ElementType: "text", Result: "c"},
	}, "", pop)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	n := len(got)
	mu.Unlock()
	require.Zero(t, n, "no event is popped while paused")

	d.SetState(false, false)
	require.True(t, d.IsActive())

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDeliverer_IntervalTypesDelayBetweenEntries(t *testing.T) {
	d := New(15 * time.Millisecond)
	d.SetIntervalTypes([]string{"typed"})

	var mu sync.Mutex
	var timestamps []time.Time
	pop := func(entry *sse.CachedEvent) PopResult {
		mu.Lock()
		timestamps = append(timestamps, time.Now())
		mu.Unlock()
		return PopResult{IsConsumed: true}
	}

	d.Put([]sse.Event{{ElementType: "typed", Result: "1"}, {ElementType: "typed", Result: "2"}}, "", pop)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(timestamps) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.WithinDuration(t, timestamps[1], timestamps[0].Add(15*time.Millisecond), 30*time.Millisecond)
}

func TestDeliverer_FlushPeekDoesNotRemoveOrPace(t *testing.T) {
	d := New(0)
	d.PutPeek([]sse.Event{{ElementType: "text", Result: "p1"}}, "")

	var calls int
	pop := func(entry *sse.CachedEvent) PopResult {
		calls++
		return PopResult{IsConsumed: true}
	}

	d.FlushPeek(pop)
	d.FlushPeek(pop)

	require.Equal(t, 2, calls, "peek is never removed by FlushPeek")
}

func TestDeliverer_SweepAutoRemoveDropsOnlyStaleAutoRemoveEntries(t *testing.T) {
	d := New(0)
	old := sse.NewCachedEvent(sse.Event{ElementType: "text"}, "")
	old.AutoRemove = true
	old.AdmittedAt = time.Now().Add(-time.Hour)

	fresh := sse.NewCachedEvent(sse.Event{ElementType: "text"}, "")
	fresh.AutoRemove = true
	fresh.AdmittedAt = time.Now()

	kept := sse.NewCachedEvent(sse.Event{ElementType: "text"}, "")
	kept.AutoRemove = false
	kept.AdmittedAt = time.Now().Add(-time.Hour)

	d.main = []*sse.CachedEvent{old, fresh, kept}

	d.SweepAutoRemove(time.Now().Add(-time.Minute))

	require.Len(t, d.main, 2)
	require.NotContains(t, d.main, old)
}

func TestDeliverer_ClearCacheEmptiesBothBuffers(t *testing.T) {
	d := New(0)
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	pop := func(entry *sse.CachedEvent) PopResult {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
		return PopResult{IsConsumed: true}
	}
	d.Put([]sse.Event{{ElementType: "text", Result: "x"}}, "", pop)
	d.PutPeek([]sse.Event{{ElementType: "text", Result: "y"}}, "")

	<-entered
	done := make(chan struct{})
	go func() {
		d.ClearCache()
		close(done)
	}()
	close(block)
	<-done

	require.Empty(t, d.main)
	require.Empty(t, d.peek)
}

func TestDeliverer_RunLoopStopsAfterOnePassWhenEntryNeverConsumed(t *testing.T) {
	d := New(0)
	var mu sync.Mutex
	var calls int

	pop := func(entry *sse.CachedEvent) PopResult {
		mu.Lock()
		calls++
		mu.Unlock()
		return PopResult{IsConsumed: false}
	}

	d.Put([]sse.Event{{ElementType: "text", Result: "x"}}, "", pop)

	waitFor(t, time.Second, func() bool {
		d.loopMu.Lock()
		defer d.loopMu.Unlock()
		return !d.loopRunning
	})

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls, "an entry the subscriber never consumes must be popped once per pass, not spun on")
	require.Len(t, d.main, 1, "the un-consumed entry stays in the main cache for the next Put/Flush to revisit")
}

func TestDeliverer_ForceStateBypassesRefCount(t *testing.T) {
	d := New(0)
	d.SetState(true, false)
	d.SetState(true, false)
	require.Equal(t, 2, d.PauseCount())

	d.SetState(false, true)
	require.Equal(t, 0, d.PauseCount())
	require.True(t, d.IsActive())
}
