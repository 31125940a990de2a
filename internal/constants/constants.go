package constants

const AppName = "ssedeliver"

// reserved event types, never produced by real upstream frames
const (
	EventTypeStreamOpen = "697"
	StreamOpenLogID     = "69602"

	EventTypeAutoRemove = "sse.auto-remove"
	AutoRemoveLogID     = "sse.auto-remove.marker"
)

const (
	HeaderAccept      = "Accept"
	AcceptEventStream = "text/event-stream"
	HeaderRequestID   = "X-Request-ID"

	ExtraOfflineProviderKey = "offlineProvider"
)

// FrameSentinel terminates one JSON frame in the default stream framing.
const FrameSentinel = ">s"

const (
	LinePrefixData      = "data:"
	LineTokenEventStop  = "event:stop"
)
