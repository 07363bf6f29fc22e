// Package connfsm implements the Connection State Machine of
// SPEC_FULL.md §4.7: the transport's connect/retry/give-up lifecycle,
// decoupled from the transport itself so internal/engine can drive it from
// real gRPC stream events or, in tests, from plain function calls.
package connfsm

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind is one of the five states a connection can be in.
type Kind int

const (
	Connecting Kind = iota
	Subscribed
	Disconnected
	Reconnecting
	Failed
)

func (k Kind) String() string {
	switch k {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the machine's current state plus whichever associated data that
// state carries (retry_after for Disconnected, reason for Failed).
type State struct {
	Kind       Kind
	RetryAfter time.Duration
	Reason     string
}

// DefaultMaxFailures is the consecutive-failure count (§4.7) after which
// the machine gives up and transitions to Failed.
const DefaultMaxFailures = 10

// Config carries the backoff schedule and give-up threshold of §4.7,
// sourced from internal/config.Config so an operator can tune reconnect
// behavior without a rebuild.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxFailures    int
}

// DefaultConfig matches §4.7's stated parameters (250ms/5s/2x/10 failures).
func DefaultConfig() Config {
	return Config{
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		MaxFailures:    DefaultMaxFailures,
	}
}

// Machine is the Connection State Machine. It holds no transport
// reference; internal/engine calls its methods in response to real stream
// events and acts on the resulting State.
type Machine struct {
	mu sync.Mutex

	state     State
	failures  int
	maxFail   int
	backoff   *backoff.ExponentialBackOff
	paused    bool
	resendDue bool

	onTransportError func()
}

// New creates a machine starting in Connecting, configured by cfg.
// onTransportError is called synchronously every time the machine enters
// Disconnected, matching §4.7's "reset the state store on entering
// Disconnected" — callers wire store.Store.Reset directly.
func New(cfg Config, onTransportError func()) *Machine {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // retried forever until maxFail is hit, not on a wall-clock budget

	maxFail := cfg.MaxFailures
	if maxFail <= 0 {
		maxFail = DefaultMaxFailures
	}

	return &Machine{
		state:            State{Kind: Connecting},
		maxFail:          maxFail,
		backoff:          b,
		onTransportError: onTransportError,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected records a successful stream message: Connecting or
// Reconnecting moves to Subscribed, failures and backoff reset, and a
// pending pause is flagged for resend.
func (m *Machine) Connected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: Subscribed}
	m.failures = 0
	m.backoff.Reset()
	if m.paused {
		m.resendDue = true
	}
}

// TransportError records a transport failure from any state. If the
// consecutive-failure count has reached the limit, the machine gives up
// and transitions to Failed; otherwise it moves to Disconnected carrying
// the next backoff interval to wait before reconnecting.
func (m *Machine) TransportError(reason string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.failures >= m.maxFail {
		m.state = State{Kind: Failed, Reason: reason}
		return m.state
	}

	m.state = State{Kind: Disconnected, RetryAfter: m.backoff.NextBackOff()}
	if m.onTransportError != nil {
		m.onTransportError()
	}
	return m.state
}

// BeginReconnect moves Disconnected to Reconnecting once the backoff
// interval has elapsed and a new connection attempt is starting.
func (m *Machine) BeginReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind == Disconnected {
		m.state = State{Kind: Reconnecting}
	}
}

// SetPaused records the foreground thread's pause/resume intent so a
// reconnect knows whether to re-issue Pause.
func (m *Machine) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
}

// TakePendingResend reports whether a Pause needs to be re-sent after a
// reconnect, clearing the flag. Call once per successful reconnect.
func (m *Machine) TakePendingResend() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := m.resendDue
	m.resendDue = false
	return due
}
