package chatclient

import (
	"sync"
	"time"
)

// ConnState is the live-channel connection state.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateBackingOff   ConnState = "backing-off"
)

// Reconnector is the reconnection state machine: a single place that owns
// backoff timing, decoupled from UI and transport code. The live channel is
// best-effort, so every successful reconnect demands a history refetch.
type Reconnector struct {
	mu      sync.Mutex
	state   ConnState
	attempt int
	dirty   bool

	base time.Duration
	max  time.Duration
}

// NewReconnector builds the machine with bounded exponential backoff.
func NewReconnector(base, max time.Duration) *Reconnector {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = 30 * time.Second
	}
	return &Reconnector{state: StateDisconnected, base: base, max: max}
}

// State reports the current connection state.
func (r *Reconnector) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnDisconnect records a dropped connection and returns how long to wait
// before the next dial. The delay doubles per consecutive attempt, capped at
// the configured maximum.
func (r *Reconnector) OnDisconnect() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = StateBackingOff
	r.dirty = true

	delay := r.base << r.attempt
	if delay > r.max || delay <= 0 {
		delay = r.max
	}
	r.attempt++
	return delay
}

// OnConnected resets the backoff. NeedsResync stays true until the caller
// refetches history; queued delivery does not resume where it left off.
func (r *Reconnector) OnConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateConnected
	r.attempt = 0
}

// NeedsResync reports whether a history refetch is owed after a disconnect.
func (r *Reconnector) NeedsResync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Resynced acknowledges that history was refetched.
func (r *Reconnector) Resynced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = false
}
