// Package platform provides the OS capability layer macros execute
// against: key and pointer injection, text pasting, opening files and
// URLs, launching and focusing applications, and running scripts.
//
// The engine core never touches OS primitives directly; it calls a
// Binding. Every operation returns nil or a *Failure carrying the
// operation name and cause.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported marks operations the current binding cannot perform,
// e.g. injection with no injector configured.
var ErrUnsupported = errors.New("platform: operation unsupported")

// Failure is a typed action failure.
type Failure struct {
	// Op is the failing operation, e.g. "press_key".
	Op string

	// Cause is the underlying error.
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("platform: %s: %v", f.Op, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

// fail wraps an error as a Failure unless it already is one.
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Op: op, Cause: err}
}

// Button identifies a pointer button.
type Button int

const (
	ButtonLeft Button = iota + 1
	ButtonMiddle
	ButtonRight
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return fmt.Sprintf("button%d", int(b))
	}
}

// ParseButton maps the names macro authors write to a Button.
func ParseButton(s string) (Button, error) {
	switch s {
	case "", "left", "1":
		return ButtonLeft, nil
	case "middle", "2":
		return ButtonMiddle, nil
	case "right", "3":
		return ButtonRight, nil
	default:
		return 0, fmt.Errorf("platform: unknown button %q", s)
	}
}

// Binding is the set of primitive operations macros compose.
type Binding interface {
	// PressKey taps a key or chord, e.g. "ctrl+shift+left".
	PressKey(ctx context.Context, key string) error

	// ReleaseKey releases a held key.
	ReleaseKey(ctx context.Context, key string) error

	// MoveCursor moves the pointer to absolute screen coordinates.
	MoveCursor(ctx context.Context, x, y int) error

	// Click presses a pointer button at the current position.
	Click(ctx context.Context, button Button, double bool) error

	// PasteText inserts text at the current focus.
	PasteText(ctx context.Context, text string) error

	// OpenPath opens a file or directory with its default handler.
	OpenPath(ctx context.Context, path string) error

	// OpenURL opens a URL in the default browser.
	OpenURL(ctx context.Context, url string) error

	// LaunchApplication starts an application process.
	LaunchApplication(ctx context.Context, path string, args []string) error

	// FocusApplication brings a running application's window forward.
	FocusApplication(ctx context.Context, match string) error

	// RunScript executes a user script to completion.
	RunScript(ctx context.Context, path string, args []string) error

	// Sleep pauses for the duration, returning early on cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}
