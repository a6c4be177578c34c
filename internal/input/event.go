// Package input defines the uniform event model produced by all input
// devices.
//
// Raw device events are normalized into Event values before they enter the
// dispatch stream. Events are immutable: created once by a device listener,
// stamped with an arrival sequence number by the manager, and dispatched
// exactly once.
package input

import (
	"fmt"
	"time"
)

// EventKind identifies the kind of input event.
type EventKind uint8

const (
	// KeyDown is a key press from a keyboard device.
	KeyDown EventKind = iota
	// ButtonPress is a button press from a game controller.
	ButtonPress
	// AxisChange is an axis movement from a game controller.
	AxisChange
	// NoteOn is a MIDI note-on message.
	NoteOn
	// ControlChange is a MIDI control-change message.
	ControlChange
	// TextSubmitted is a free-form text command.
	TextSubmitted
	// SpeechTranscribed is a finalized voice transcription.
	SpeechTranscribed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case KeyDown:
		return "key_down"
	case ButtonPress:
		return "button_press"
	case AxisChange:
		return "axis_change"
	case NoteOn:
		return "note_on"
	case ControlChange:
		return "control_change"
	case TextSubmitted:
		return "text_submitted"
	case SpeechTranscribed:
		return "speech_transcribed"
	default:
		return "unknown"
	}
}

// Event is a normalized input event from any device.
type Event struct {
	// DeviceID identifies the originating device.
	DeviceID string

	// Kind identifies the event kind.
	Kind EventKind

	// Key is the canonical key name for KeyDown events ("a", "C-s", "F13").
	Key string

	// Code is the button number, axis number, note number, or controller
	// number, depending on Kind.
	Code int

	// Value is the axis position, note velocity, or control value.
	Value int

	// Text is the payload for TextSubmitted and SpeechTranscribed events.
	Text string

	// Seq is the arrival sequence number assigned by the manager.
	// It is strictly increasing across all devices.
	Seq uint64

	// Time is when the event was observed.
	Time time.Time
}

// Signature returns the canonical trigger signature for the event.
// Trigger mappings are keyed on (device id, signature).
func (e Event) Signature() string {
	switch e.Kind {
	case KeyDown:
		return "key:" + e.Key
	case ButtonPress:
		return fmt.Sprintf("button:%d", e.Code)
	case AxisChange:
		return fmt.Sprintf("axis:%d", e.Code)
	case NoteOn:
		return fmt.Sprintf("note:%d", e.Code)
	case ControlChange:
		return fmt.Sprintf("cc:%d", e.Code)
	case TextSubmitted:
		return "text"
	case SpeechTranscribed:
		return "speech"
	default:
		return ""
	}
}

// HasText reports whether the event carries a free-form text payload.
func (e Event) HasText() bool {
	return e.Kind == TextSubmitted || e.Kind == SpeechTranscribed
}

// String returns a debug representation.
func (e Event) String() string {
	if e.HasText() {
		return fmt.Sprintf("%s[%s %q]", e.Kind, e.DeviceID, e.Text)
	}
	return fmt.Sprintf("%s[%s %s]", e.Kind, e.DeviceID, e.Signature())
}
