package client

import (
	"sync"
	"time"
)

// Status is the connection link health.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// ConnectionState is an immutable snapshot of the link health. Only the
// owning client mutates it; callers read copies.
type ConnectionState struct {
	// Status is the current link status.
	Status Status
	// Retries counts reconnect attempts since the last clean connect.
	Retries int
	// ConnectedAt is when the current connection was established; zero while
	// not connected.
	ConnectedAt time.Time
	// LastError is the most recent connect/reconnect failure, nil after a
	// deliberate disconnect or a successful connect.
	LastError *Error
}

// stateListener pairs a subscription id with its callback so unsubscribe can
// remove exactly one entry while preserving registration order.
type stateListener struct {
	id int
	fn func(ConnectionState)
}

// connTracker owns a client's ConnectionState and fans out transitions to
// subscribers.
//
// Listeners are invoked synchronously, in registration order, with a fresh
// snapshot per transition. Callbacks must not block.
type connTracker struct {
	mu        sync.Mutex
	state     ConnectionState
	nextID    int
	listeners []stateListener
}

func newConnTracker() *connTracker {
	return &connTracker{state: ConnectionState{Status: StatusDisconnected}}
}

// snapshot returns a copy of the current state.
func (t *connTracker) snapshot() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// subscribe registers fn and returns its unsubscribe func. Unsubscribe is
// idempotent.
func (t *connTracker) subscribe(fn func(ConnectionState)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners = append(t.listeners, stateListener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// set applies mutate under the lock and notifies every listener with the
// resulting snapshot. Notification happens outside the lock so listeners can
// call back into the tracker.
func (t *connTracker) set(mutate func(*ConnectionState)) ConnectionState {
	t.mu.Lock()
	mutate(&t.state)
	snap := t.state
	listeners := make([]stateListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l.fn(snap)
	}
	return snap
}

// toConnecting enters the connecting status.
func (t *connTracker) toConnecting() {
	t.set(func(s *ConnectionState) {
		s.Status = StatusConnecting
	})
}

// toReconnecting enters the reconnecting status and bumps the retry counter.
func (t *connTracker) toReconnecting() {
	t.set(func(s *ConnectionState) {
		s.Status = StatusReconnecting
		s.Retries++
	})
}

// toConnected records a successful connect or reconnect.
func (t *connTracker) toConnected(at time.Time) {
	t.set(func(s *ConnectionState) {
		s.Status = StatusConnected
		s.ConnectedAt = at
		s.LastError = nil
	})
}

// toDisconnected records a failed connect/reconnect (err != nil) or a
// deliberate disconnect (err == nil).
func (t *connTracker) toDisconnected(err *Error) {
	t.set(func(s *ConnectionState) {
		s.Status = StatusDisconnected
		s.ConnectedAt = time.Time{}
		s.LastError = err
	})
}
