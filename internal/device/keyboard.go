package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/rionhunter/macrokit/internal/input"
)

// KeyboardDevice captures key events from a terminal screen via tcell.
//
// The device owns the screen exclusively: it is initialized when the
// device is created and finalized on Close.
type KeyboardDevice struct {
	id     string
	screen tcell.Screen
	state  stateVal

	closeOnce sync.Once
	closeErr  error
}

// NewKeyboard opens the process terminal as a keyboard device.
func NewKeyboard(id string) (*KeyboardDevice, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("%w: keyboard %q: %v", ErrUnavailable, id, err)
	}
	return newKeyboard(id, screen)
}

// NewKeyboardWithScreen wraps an existing screen, typically a tcell
// simulation screen in tests.
func NewKeyboardWithScreen(id string, screen tcell.Screen) (*KeyboardDevice, error) {
	return newKeyboard(id, screen)
}

func newKeyboard(id string, screen tcell.Screen) (*KeyboardDevice, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("%w: keyboard %q: %v", ErrUnavailable, id, err)
	}
	return &KeyboardDevice{id: id, screen: screen}, nil
}

// ID returns the device identifier.
func (k *KeyboardDevice) ID() string { return k.id }

// Kind returns Keyboard.
func (k *KeyboardDevice) Kind() Kind { return Keyboard }

// State returns the current connection state.
func (k *KeyboardDevice) State() State { return k.state.get() }

// Listen polls the screen for key events until the context is cancelled.
func (k *KeyboardDevice) Listen(ctx context.Context, emit EmitFunc) error {
	k.state.set(StateListening)
	defer k.state.set(StateDisconnected)

	// Wake the poll loop when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = k.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-stop:
		}
	}()

	for {
		ev := k.screen.PollEvent()
		if ev == nil {
			// Screen finalized under us: deliberate stop via Close.
			return nil
		}

		switch ev := ev.(type) {
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
		case *tcell.EventKey:
			emit(input.Event{
				DeviceID: k.id,
				Kind:     input.KeyDown,
				Key:      formatKey(ev),
				Time:     time.Now(),
			})
		}
	}
}

// Close finalizes the screen. Idempotent.
func (k *KeyboardDevice) Close() error {
	k.closeOnce.Do(func() {
		k.screen.Fini()
	})
	return k.closeErr
}

// formatKey produces the canonical key name used in trigger signatures:
// "a", "Space", "F13", "Enter", "C-s", "A-Enter", "C-A-x".
func formatKey(ev *tcell.EventKey) string {
	var parts []string

	mods := ev.Modifiers()
	if mods&tcell.ModCtrl != 0 {
		parts = append(parts, "C")
	}
	if mods&tcell.ModAlt != 0 {
		parts = append(parts, "A")
	}
	if mods&tcell.ModMeta != 0 {
		parts = append(parts, "M")
	}

	var name string
	switch {
	case ev.Key() == tcell.KeyRune:
		r := ev.Rune()
		if r == ' ' {
			name = "Space"
		} else {
			name = string(r)
		}
	case ev.Key() >= tcell.KeyCtrlA && ev.Key() <= tcell.KeyCtrlZ &&
		ev.Key() != tcell.KeyTab && ev.Key() != tcell.KeyEnter:
		// Control characters arrive as distinct keys; normalize to the
		// modifier-prefixed letter form ("C-s").
		name = string(rune('a' + ev.Key() - tcell.KeyCtrlA))
		if len(parts) == 0 || parts[0] != "C" {
			parts = append([]string{"C"}, parts...)
		}
	default:
		if n, ok := tcell.KeyNames[ev.Key()]; ok {
			name = n
		} else {
			name = fmt.Sprintf("Key(%d)", ev.Key())
		}
	}

	if len(parts) == 0 {
		return name
	}
	return strings.Join(parts, "-") + "-" + name
}
