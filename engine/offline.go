package engine

import (
	"context"
	"io"
	"net/http"

	"github.com/omalloc/ssedeliver/internal/constants"
)

// OfflineProvider replays a previously captured stream instead of
// issuing a real request. The engine looks a provider up by the name in
// the request's offline-provider header and calls Open with the
// request URL as streamID. Used by tests that need deterministic input.
type OfflineProvider interface {
	Open(ctx context.Context, streamID string) (io.ReadCloser, error)
}

type offlineProviderFunc func(ctx context.Context, streamID string) (io.ReadCloser, error)

func (f offlineProviderFunc) Open(ctx context.Context, streamID string) (io.ReadCloser, error) {
	return f(ctx, streamID)
}

// OfflineProviderFunc adapts a plain function to OfflineProvider.
func OfflineProviderFunc(fn func(ctx context.Context, streamID string) (io.ReadCloser, error)) OfflineProvider {
	return offlineProviderFunc(fn)
}

// RegisterOfflineProvider makes name available to requests carrying the
// engine's offline-provider extra (constants.ExtraOfflineProviderKey
// header) with that value.
func (e *Engine) RegisterOfflineProvider(name string, p OfflineProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offlineProviders[name] = p
}

func offlineProviderName(req *http.Request) (string, bool) {
	name := req.Header.Get(constants.ExtraOfflineProviderKey)
	if name == "" {
		return "", false
	}
	return name, true
}
