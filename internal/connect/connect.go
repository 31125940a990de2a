// Package connect implements the connection-state machine and its
// synchronous, priority-ordered observer fan-out.
package connect

import (
	"context"
	"sort"
	"sync"

	"github.com/maniartech/signals"
	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
)

// gatedTransition denies from -> to unless the caller forces it.
var gatedTransition = map[sse.ConnectionState]map[sse.ConnectionState]bool{
	sse.ConnectSuspend: {
		sse.ConnectException: true,
		sse.ConnectIdle:      true,
		sse.ConnectActive:    true,
	},
	sse.DisconnectNormal: {
		sse.ConnectException: true,
	},
	sse.ConnectException: {
		sse.ConnectIdle: true,
	},
	sse.DisconnectError: {
		sse.ConnectIdle: true,
	},
}

// Manager owns the connection state and its observer fan-out. The
// synchronous, short-circuiting ConnectionObserver list is the required
// contract (§4.5/§8); Signal is an additional best-effort async
// broadcast for out-of-band consumers such as a metrics dashboard.
type Manager struct {
	mu        sync.Mutex
	state     sse.ConnectionState
	observers []sse.ConnectionObserver

	signal *signals.AsyncSignal[sse.ConnectionState]
}

func New() *Manager {
	return &Manager{
		state:  sse.DisconnectNormal,
		signal: signals.New[sse.ConnectionState](),
	}
}

func (m *Manager) State() sse.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsConnected() bool {
	return m.State().IsConnected()
}

// AddObserver replaces any existing observer with the same name.
func (m *Manager) AddObserver(obs sse.ConnectionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.observers {
		if o.Name() == obs.Name() {
			m.observers[i] = obs
			return
		}
	}
	m.observers = append(m.observers, obs)
}

// RemoveObserver removes by identity.
func (m *Manager) RemoveObserver(obs sse.ConnectionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.observers {
		if o == obs {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

// Signal subscribes fn to the best-effort async state-change broadcast.
func (m *Manager) Signal(fn func(ctx context.Context, state sse.ConnectionState)) {
	m.signal.AddListener(fn)
}

// Transition attempts to move to next. Gated transitions are rejected
// unless force is true. A transition that changes the state fires
// observers in priority-descending order (stable for ties); an observer
// returning true halts the fan-out. Returns whether the state actually
// changed.
func (m *Manager) Transition(next sse.ConnectionState, force bool) bool {
	m.mu.Lock()
	current := m.state
	if !force && gatedTransition[current][next] {
		m.mu.Unlock()
		return false
	}
	if current == next {
		m.mu.Unlock()
		return false
	}
	m.state = next
	observers := append([]sse.ConnectionObserver(nil), m.observers...)
	m.mu.Unlock()

	sort.SliceStable(observers, func(i, j int) bool {
		return observers[i].Priority() > observers[j].Priority()
	})
	for _, o := range observers {
		if o.OnChange(next) {
			break
		}
	}

	m.signal.Emit(context.Background(), next)
	return true
}
