package event

import "time"

// StreamCompletedKey marks the async signal topic emitted after an SSE
// stream ends (normally or on error) so out-of-band consumers — audit
// logs, a monitoring dashboard, a retry policy — can react without
// going through the per-event InterceptorRegistry.
const StreamCompletedKey Kind = "stream.completed"

// StreamCompleted describes the payload carried with StreamCompletedKey
// events: a summary of one finished stream, not its individual events.
type StreamCompleted interface {
	// Kind returns the topic identifier so the payload can be routed on
	// the event bus without additional type assertions.
	Kind() Kind
	// RequestURL is the SSE request's URL.
	RequestURL() string
	// FinalState is the sse.ConnectionState name the stream ended in
	// ("connectSuspend" on a clean EOF, "disconnectError" otherwise).
	FinalState() string
	// EventsAdmitted is the count of events admitted during the stream.
	EventsAdmitted() int
	// EventsDelivered is the count of those events actually consumed by
	// a registry subscriber before the stream ended.
	EventsDelivered() int
	// Duration is the wall-clock time between stream open and close.
	Duration() time.Duration
}
