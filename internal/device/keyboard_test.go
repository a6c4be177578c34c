package device

import (
	"context"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/rionhunter/macrokit/internal/input"
)

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name string
		ev   *tcell.EventKey
		want string
	}{
		{"rune", tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone), "a"},
		{"upper rune", tcell.NewEventKey(tcell.KeyRune, 'A', tcell.ModNone), "A"},
		{"space", tcell.NewEventKey(tcell.KeyRune, ' ', tcell.ModNone), "Space"},
		{"alt rune", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModAlt), "A-x"},
		{"ctrl letter", tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModCtrl), "C-s"},
		{"ctrl letter no mod flag", tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModNone), "C-s"},
		{"function key", tcell.NewEventKey(tcell.KeyF13, 0, tcell.ModNone), "F13"},
		{"enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), "Enter"},
		{"alt enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModAlt), "A-Enter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatKey(tt.ev); got != tt.want {
				t.Errorf("formatKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyboardEmitsKeyEvents(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	dev, err := NewKeyboardWithScreen("kb-1", screen)
	if err != nil {
		t.Fatalf("NewKeyboardWithScreen() error = %v", err)
	}
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan input.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- dev.Listen(ctx, func(ev input.Event) { events <- ev })
	}()

	// Give the poll loop a moment to come up, then inject.
	time.Sleep(10 * time.Millisecond)
	screen.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)
	screen.InjectKey(tcell.KeyF13, 0, tcell.ModNone)

	for _, want := range []string{"key:a", "key:F13"} {
		select {
		case ev := <-events:
			if ev.Kind != input.KeyDown {
				t.Errorf("Kind = %v, want KeyDown", ev.Kind)
			}
			if got := ev.Signature(); got != want {
				t.Errorf("Signature() = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing event %q", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancelled Listen() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}
}
