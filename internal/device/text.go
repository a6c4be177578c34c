package device

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rionhunter/macrokit/internal/input"
)

// TextDevice accepts programmatic text commands and emits them as
// TextSubmitted events. It holds no OS resource.
type TextDevice struct {
	id    string
	cmds  chan string
	state stateVal

	closed atomic.Bool
}

// NewText creates a text command device.
func NewText(id string) *TextDevice {
	return &TextDevice{
		id:   id,
		cmds: make(chan string, 16),
	}
}

// ID returns the device identifier.
func (t *TextDevice) ID() string { return t.id }

// Kind returns TextCommand.
func (t *TextDevice) Kind() Kind { return TextCommand }

// State returns the current connection state.
func (t *TextDevice) State() State { return t.state.get() }

// Submit queues a text command for dispatch. It never blocks: when the
// pending queue is full the command is rejected with ErrQueueFull.
func (t *TextDevice) Submit(text string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	select {
	case t.cmds <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// Listen forwards submitted commands until the context is cancelled.
func (t *TextDevice) Listen(ctx context.Context, emit EmitFunc) error {
	t.state.set(StateListening)
	defer t.state.set(StateDisconnected)

	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-t.cmds:
			emit(input.Event{
				DeviceID: t.id,
				Kind:     input.TextSubmitted,
				Text:     text,
				Time:     time.Now(),
			})
		}
	}
}

// Close marks the device closed. Idempotent.
func (t *TextDevice) Close() error {
	t.closed.Store(true)
	return nil
}
