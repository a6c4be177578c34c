package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rionhunter/macrokit/internal/input"
)

// jsEvent mirrors the Linux joydev js_event record.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// ControllerDevice reads game controller events from a joydev stream
// (/dev/input/jsN on Linux).
//
// The record decoding is independent of the source, so tests feed the
// device from an in-memory stream.
type ControllerDevice struct {
	id    string
	src   io.ReadCloser
	state stateVal

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewController opens the joystick device node at path.
func NewController(id, path string) (*ControllerDevice, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: controller %q: no device path", ErrUnavailable, id)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: controller %q: %v", ErrUnavailable, id, err)
	}
	return &ControllerDevice{id: id, src: f}, nil
}

// NewControllerFromReader wraps an arbitrary joydev-format stream.
func NewControllerFromReader(id string, src io.ReadCloser) *ControllerDevice {
	return &ControllerDevice{id: id, src: src}
}

// ID returns the device identifier.
func (c *ControllerDevice) ID() string { return c.id }

// Kind returns Controller.
func (c *ControllerDevice) Kind() Kind { return Controller }

// State returns the current connection state.
func (c *ControllerDevice) State() State { return c.state.get() }

// Listen decodes js_event records until the stream ends. Button presses
// (value 1) become ButtonPress events; axis movements become AxisChange.
// Synthetic init records are skipped. A read failure while the context is
// still live reports the device as lost.
func (c *ControllerDevice) Listen(ctx context.Context, emit EmitFunc) error {
	c.state.set(StateListening)

	// Reads block on the device node; closing the source unblocks them
	// when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		var ev jsEvent
		if err := binary.Read(c.src, binary.LittleEndian, &ev); err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				c.state.set(StateDisconnected)
				return nil
			}
			c.state.set(StateError)
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("device: controller %q: %w", c.id, err)
		}

		switch ev.Type &^ jsEventInit {
		case jsEventButton:
			if ev.Type&jsEventInit != 0 || ev.Value != 1 {
				continue
			}
			emit(input.Event{
				DeviceID: c.id,
				Kind:     input.ButtonPress,
				Code:     int(ev.Number),
				Value:    int(ev.Value),
				Time:     time.Now(),
			})
		case jsEventAxis:
			if ev.Type&jsEventInit != 0 {
				continue
			}
			emit(input.Event{
				DeviceID: c.id,
				Kind:     input.AxisChange,
				Code:     int(ev.Number),
				Value:    int(ev.Value),
				Time:     time.Now(),
			})
		}
	}
}

// Close releases the stream. Idempotent.
func (c *ControllerDevice) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.src.Close()
	})
	return c.closeErr
}
