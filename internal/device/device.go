// Package device implements the input device variants and the manager that
// merges their events into one ordered dispatch stream.
//
// Each device kind owns its OS resource exclusively: a terminal screen for
// keyboards, a joydev node for controllers, a raw MIDI stream, or a
// websocket connection to an external transcriber for voice. Devices are
// created on registration and destroyed on unregistration or shutdown.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rionhunter/macrokit/internal/input"
)

// Errors returned by device operations.
var (
	// ErrUnavailable indicates the device resource could not be opened:
	// missing, in use, or permission denied. Registration may be retried.
	ErrUnavailable = errors.New("device: unavailable")

	// ErrClosed indicates an operation on a closed device.
	ErrClosed = errors.New("device: closed")

	// ErrQueueFull indicates a text command was dropped because the
	// device's pending queue is full.
	ErrQueueFull = errors.New("device: command queue full")
)

// Kind identifies a device variant.
type Kind uint8

const (
	// Keyboard is a terminal keyboard device.
	Keyboard Kind = iota
	// Controller is a game controller (joystick/gamepad).
	Controller
	// MIDI is a MIDI instrument or pad controller.
	MIDI
	// TextCommand is a programmatic text command source.
	TextCommand
	// Voice is an external speech transcriber.
	Voice
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Keyboard:
		return "keyboard"
	case Controller:
		return "controller"
	case MIDI:
		return "midi"
	case TextCommand:
		return "text"
	case Voice:
		return "voice"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "keyboard":
		return Keyboard, nil
	case "controller":
		return Controller, nil
	case "midi":
		return MIDI, nil
	case "text":
		return TextCommand, nil
	case "voice":
		return Voice, nil
	default:
		return 0, fmt.Errorf("device: unknown kind %q", s)
	}
}

// State is a device connection state.
type State int32

const (
	// StateDisconnected is the initial state before listening starts.
	StateDisconnected State = iota
	// StateConnecting means the resource is being opened.
	StateConnecting
	// StateListening means events are being produced.
	StateListening
	// StateError means the device was lost mid-session.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config describes one device registration.
type Config struct {
	// ID is the stable identifier used by trigger mappings.
	ID string

	// Kind selects the device variant.
	Kind Kind

	// Path is the OS resource path for Controller and MIDI devices.
	Path string

	// Addr is the websocket address for Voice devices.
	Addr string
}

// EmitFunc delivers a normalized event into the manager's stream.
type EmitFunc func(ev input.Event)

// Listenable is the capability shared by all device variants.
type Listenable interface {
	// ID returns the device identifier.
	ID() string

	// Kind returns the device variant.
	Kind() Kind

	// State returns the current connection state.
	State() State

	// Listen blocks, producing events through emit until the context is
	// cancelled or the device is lost. A nil return means a deliberate
	// stop; a non-nil return means the device was lost mid-session.
	Listen(ctx context.Context, emit EmitFunc) error

	// Close releases the OS resource. Idempotent.
	Close() error
}

// Open creates a device from its configuration. It is the default Factory
// used by the Manager. Open fails with a wrapped ErrUnavailable when the
// underlying resource cannot be acquired.
func Open(cfg Config) (Listenable, error) {
	switch cfg.Kind {
	case Keyboard:
		return NewKeyboard(cfg.ID)
	case Controller:
		return NewController(cfg.ID, cfg.Path)
	case MIDI:
		return NewMIDI(cfg.ID, cfg.Path)
	case TextCommand:
		return NewText(cfg.ID), nil
	case Voice:
		return NewVoice(cfg.ID, cfg.Addr)
	default:
		return nil, fmt.Errorf("device: unknown kind %d", cfg.Kind)
	}
}

// stateVal holds a device state with atomic access.
type stateVal struct {
	v atomic.Int32
}

func (s *stateVal) get() State   { return State(s.v.Load()) }
func (s *stateVal) set(st State) { s.v.Store(int32(st)) }
