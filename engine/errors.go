package engine

import "errors"

// ErrStreamInProgress is returned when a second SSE request arrives
// while streamTransforming is already true (§7 error kind: concurrent
// stream rejection).
var ErrStreamInProgress = errors.New("engine: sse stream already in progress")

// ErrUnknownOfflineProvider is returned when a request names an offline
// provider that was never registered.
var ErrUnknownOfflineProvider = errors.New("engine: unknown offline provider")
