package notify

import (
	"errors"
	"testing"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeFunc(func(Notification) { order = append(order, "first") })
	bus.SubscribeFunc(func(Notification) { order = append(order, "second") })

	bus.Notify(Notification{Kind: KindRun, RunID: "r1"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v, want [first second]", order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	var got int
	id := bus.SubscribeFunc(func(Notification) { got++ })
	bus.Notify(Notification{})
	bus.Unsubscribe(id)
	bus.Notify(Notification{})

	if got != 1 {
		t.Errorf("notifications after unsubscribe = %d, want 1", got)
	}

	// Unknown ids are ignored.
	bus.Unsubscribe(9999)
}

func TestBusIsolatesPanickingSubscriber(t *testing.T) {
	bus := NewBus()

	bus.SubscribeFunc(func(Notification) { panic("boom") })
	var reached bool
	bus.SubscribeFunc(func(Notification) { reached = true })

	bus.Notify(Notification{Kind: KindDeviceLost, DeviceID: "d1", Err: errors.New("unplugged")})

	if !reached {
		t.Error("second subscriber not reached after panic in first")
	}
	delivered, panicked := bus.Stats()
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if panicked != 1 {
		t.Errorf("panicked = %d, want 1", panicked)
	}
}

func TestNotifySetsTime(t *testing.T) {
	bus := NewBus()

	var n Notification
	bus.SubscribeFunc(func(got Notification) { n = got })
	bus.Notify(Notification{Kind: KindRun})

	if n.Time.IsZero() {
		t.Error("Notify should stamp a zero Time")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindRun, "run"},
		{KindDeviceLost, "device_lost"},
		{KindDeviceUnavailable, "device_unavailable"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
