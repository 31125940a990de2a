// Package bridge implements the native bridge: a process-wide fan-in
// point that receives byte bundles keyed by streamId and exposes each
// stream as a resumable, pull-based byte sequence.
//
// The router is an explicit value owned by the host process (injected
// into the engine at Init), never a package-level singleton.
package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrStreamAbnormalEnd is returned by Reader.Next (and Reader.Read)
// once the underlying stream has been marked StreamError and its
// backlog is drained.
var ErrStreamAbnormalEnd = errors.New("bridge: stream ended abnormally")

const (
	StateStreamEnd   = "StreamEnd"
	StateStreamError = "StreamError"
)

type stream struct {
	mu      sync.Mutex
	chunks  [][]byte
	isEnd   bool
	isError bool
	notify  chan struct{}
}

func newStream() *stream {
	return &stream{notify: make(chan struct{})}
}

// wake closes the current one-shot completion primitive and installs a
// fresh one, releasing every Reader currently blocked in Next.
func (s *stream) wake() {
	old := s.notify
	s.notify = make(chan struct{})
	close(old)
}

// Router fans byte bundles in by streamId and lets any number of
// Readers pull the accumulated bytes back out, resuming across chunk
// boundaries.
type Router struct {
	mu      sync.Mutex
	streams map[string]*stream
}

// NewRouter returns an empty Router. Construct one per host process and
// pass it into Engine.Init explicitly.
func NewRouter() *Router {
	return &Router{streams: make(map[string]*stream)}
}

func (r *Router) streamFor(streamID string) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[streamID]
	if !ok {
		s = newStream()
		r.streams[streamID] = s
	}
	return s
}

// Feed buffers data (may be nil/empty for a pure state signal) for
// streamID and applies state, one of StateStreamEnd, StateStreamError,
// or any other value (a no-op state transition, data only).
func (r *Router) Feed(streamID string, data []byte, state string) {
	s := r.streamFor(streamID)

	s.mu.Lock()
	switch state {
	case StateStreamEnd:
		s.isEnd = true
	case StateStreamError:
		s.isError = true
	}
	if len(data) > 0 {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.chunks = append(s.chunks, buf)
	}
	s.wake()
	s.mu.Unlock()
}

// Close releases streamID's buffered state from the router. It does not
// mark the stream ended: a Reader that calls Next afterwards gets a
// fresh, empty stream under the same ID and blocks until more data or a
// terminal state is fed, or its context ends.
func (r *Router) Close(streamID string) {
	r.mu.Lock()
	delete(r.streams, streamID)
	r.mu.Unlock()
}

// Open returns a fresh resumable reader over streamID, starting from
// whatever has already been fed.
func (r *Router) Open(streamID string) *Reader {
	return &Reader{router: r, streamID: streamID}
}

// Reader pulls the byte sequence fed into one stream, one chunk at a
// time, blocking on the stream's one-shot completion primitive between
// chunks.
type Reader struct {
	router   *Router
	streamID string
	pos      int
	leftover []byte
}

// Next returns the next fed chunk, io.EOF once the stream is marked
// StreamEnd and fully drained, or ErrStreamAbnormalEnd once it is
// marked StreamError and fully drained.
func (rd *Reader) Next(ctx context.Context) ([]byte, error) {
	for {
		s := rd.router.streamFor(rd.streamID)

		s.mu.Lock()
		if rd.pos < len(s.chunks) {
			chunk := s.chunks[rd.pos]
			rd.pos++
			s.mu.Unlock()
			return chunk, nil
		}
		if s.isError {
			s.mu.Unlock()
			return nil, ErrStreamAbnormalEnd
		}
		if s.isEnd {
			s.mu.Unlock()
			return nil, io.EOF
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Read adapts the chunk sequence to io.Reader, splitting/joining chunk
// boundaries as needed. It blocks on context.Background(); callers
// needing cancellation should use Next directly.
func (rd *Reader) Read(p []byte) (int, error) {
	for len(rd.leftover) == 0 {
		chunk, err := rd.Next(context.Background())
		if err != nil {
			return 0, err
		}
		rd.leftover = chunk
	}
	n := copy(p, rd.leftover)
	rd.leftover = rd.leftover[n:]
	return n, nil
}
