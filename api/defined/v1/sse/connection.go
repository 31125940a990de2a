package sse

// ConnectionState is the logical state of the underlying stream, distinct
// from the transport-level connection.
type ConnectionState int

const (
	ConnectActive ConnectionState = iota
	ConnectIdle
	ConnectException
	ConnectSuspend
	DisconnectRepairing
	DisconnectError
	DisconnectNormal
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectActive:
		return "connectActive"
	case ConnectIdle:
		return "connectIdle"
	case ConnectException:
		return "connectException"
	case ConnectSuspend:
		return "connectSuspend"
	case DisconnectRepairing:
		return "disconnectRepairing"
	case DisconnectError:
		return "disconnectError"
	case DisconnectNormal:
		return "disconnectNormal"
	default:
		return "unknown"
	}
}

// IsAbnormal reports whether s is one of the error states.
func (s ConnectionState) IsAbnormal() bool {
	return s == ConnectException || s == DisconnectError
}

// IsConnected reports whether s counts as "the stream exists", per
// ConnectManager.isConnected.
func (s ConnectionState) IsConnected() bool {
	switch s {
	case ConnectActive, ConnectIdle, ConnectException, ConnectSuspend:
		return true
	default:
		return false
	}
}

// ConnectionObserver is notified of connection-state transitions in
// priority-descending order; returning true halts the fan-out.
type ConnectionObserver interface {
	Name() string
	Priority() int
	OnChange(state ConnectionState) bool
}
