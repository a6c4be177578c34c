// Package notify delivers execution lifecycle notifications to external
// collaborators (UI, logs).
//
// The core publishes a Notification on every run state transition and on
// device-level incidents. Subscribers receive notifications in subscription
// order; a panicking subscriber is isolated and never disturbs delivery to
// the others.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies a notification.
type Kind uint8

const (
	// KindRun reports an execution run state transition.
	KindRun Kind = iota
	// KindDeviceLost reports a mid-session device disconnection.
	KindDeviceLost
	// KindDeviceUnavailable reports a failed device registration.
	KindDeviceUnavailable
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindDeviceLost:
		return "device_lost"
	case KindDeviceUnavailable:
		return "device_unavailable"
	default:
		return "unknown"
	}
}

// Notification is a single lifecycle event.
type Notification struct {
	// Kind classifies the notification.
	Kind Kind

	// RunID and MacroID identify the execution run for KindRun.
	RunID   string
	MacroID string

	// State is the run state name ("queued", "running", ...) for KindRun.
	State string

	// ActionIndex is the current action position for KindRun.
	ActionIndex int

	// DeviceID identifies the device for device-level kinds.
	DeviceID string

	// Err carries the failure, if any.
	Err error

	// Time is when the transition occurred.
	Time time.Time
}

// Sink receives notifications.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n Notification)

// Notify calls the function.
func (f SinkFunc) Notify(n Notification) { f(n) }

// Nop returns a sink that discards everything.
func Nop() Sink { return SinkFunc(func(Notification) {}) }

// Bus fans notifications out to multiple sinks.
type Bus struct {
	mu    sync.RWMutex
	subs  []subscription
	next  atomic.Uint64
	sent  atomic.Uint64
	fails atomic.Uint64
}

type subscription struct {
	id   uint64
	sink Sink
}

// NewBus creates an empty notification bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a sink and returns its subscription id.
func (b *Bus) Subscribe(s Sink) uint64 {
	id := b.next.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, sink: s})
	b.mu.Unlock()
	return id
}

// SubscribeFunc is a convenience wrapper for function sinks.
func (b *Bus) SubscribeFunc(fn func(Notification)) uint64 {
	return b.Subscribe(SinkFunc(fn))
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Notify delivers the notification to every subscriber in subscription
// order. Panics in a subscriber are recovered and counted.
func (b *Bus) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub.sink, n)
	}
}

func (b *Bus) deliver(s Sink, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.fails.Add(1)
		}
	}()
	s.Notify(n)
	b.sent.Add(1)
}

// Stats reports delivery counters.
func (b *Bus) Stats() (delivered, panicked uint64) {
	return b.sent.Load(), b.fails.Load()
}
