package metrics

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/omalloc/ssedeliver/contrib/log"
	"github.com/omalloc/ssedeliver/internal/constants"
)

type requestMetricKey struct{}

// RequestMetric holds per-request fields for one upstream SSE request:
// admission and delivery counts, first-byte time, and the terminal
// connection state. The engine attaches one to every SSE request's
// context but does not update its counts, FirstResponseTime or
// FinalState.
type RequestMetric struct {
	StartAt           time.Time
	RequestID         string
	Admitted          uint64
	Delivered         uint64
	Dropped           uint64
	FirstResponseTime time.Time
	FinalState        string
}

func (r *RequestMetric) Clone() *RequestMetric {
	out := *r
	return &out
}

func (r *RequestMetric) IncrAdmitted() { atomic.AddUint64(&r.Admitted, 1) }
func (r *RequestMetric) IncrDelivered() { atomic.AddUint64(&r.Delivered, 1) }
func (r *RequestMetric) IncrDropped() { atomic.AddUint64(&r.Dropped, 1) }

// WithRequestMetric attaches a fresh RequestMetric to req's context,
// generating a request ID if the upstream didn't supply one.
func WithRequestMetric(req *http.Request) (*http.Request, *RequestMetric) {
	metric := &RequestMetric{
		StartAt:   time.Now(),
		RequestID: MustParseRequestID(req.Header),
	}
	return req.WithContext(newContext(req.Context(), metric)), metric
}

func FromContext(ctx context.Context) *RequestMetric {
	if v, ok := ctx.Value(requestMetricKey{}).(*RequestMetric); ok {
		return v
	}
	return &RequestMetric{}
}

func NewContext(ctx context.Context, metric *RequestMetric) context.Context {
	return newContext(ctx, metric)
}

func newContext(ctx context.Context, metric *RequestMetric) context.Context {
	return context.WithValue(ctx, requestMetricKey{}, metric)
}

func MustParseRequestID(h http.Header) string {
	id := h.Get(constants.HeaderRequestID)
	if id == "" {
		return generateRequestID()
	}
	return id
}

// RequestID is a log.Valuer resolving the request ID from a context's
// RequestMetric; installed on a Logger via log.With, it adds the ID to
// every line logged through a Helper bound to that request's context.
func RequestID() log.Valuer {
	return func(ctx context.Context) interface{} {
		if ctx == nil {
			return ""
		}
		if info := FromContext(ctx); info != nil {
			return info.RequestID
		}
		return ""
	}
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
