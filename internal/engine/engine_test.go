package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rionhunter/macrokit/internal/executor"
	"github.com/rionhunter/macrokit/internal/input"
	"github.com/rionhunter/macrokit/internal/logging"
	"github.com/rionhunter/macrokit/internal/macro"
	"github.com/rionhunter/macrokit/internal/notify"
	"github.com/rionhunter/macrokit/internal/platform"
	"github.com/rionhunter/macrokit/internal/trigger"
)

// countingBinding records key presses and pastes; everything else is a
// no-op.
type countingBinding struct {
	mu      sync.Mutex
	presses []string
	pastes  []string
}

func (c *countingBinding) PressKey(_ context.Context, key string) error {
	c.mu.Lock()
	c.presses = append(c.presses, key)
	c.mu.Unlock()
	return nil
}

func (c *countingBinding) PasteText(_ context.Context, text string) error {
	c.mu.Lock()
	c.pastes = append(c.pastes, text)
	c.mu.Unlock()
	return nil
}

func (c *countingBinding) ReleaseKey(context.Context, string) error           { return nil }
func (c *countingBinding) MoveCursor(context.Context, int, int) error         { return nil }
func (c *countingBinding) Click(context.Context, platform.Button, bool) error { return nil }
func (c *countingBinding) OpenPath(context.Context, string) error             { return nil }
func (c *countingBinding) OpenURL(context.Context, string) error              { return nil }
func (c *countingBinding) LaunchApplication(context.Context, string, []string) error {
	return nil
}
func (c *countingBinding) FocusApplication(context.Context, string) error { return nil }
func (c *countingBinding) RunScript(context.Context, string, []string) error {
	return nil
}
func (c *countingBinding) Sleep(context.Context, time.Duration) error { return nil }

type fixture struct {
	engine  *Engine
	binding *countingBinding
	done    chan notify.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	lib := macro.Library{
		"screenshot": {
			ID: "screenshot",
			Actions: []macro.Action{
				{Type: macro.KeyPress, Params: map[string]string{"key": "print"}},
			},
		},
		"delete_words": {
			ID:        "delete_words",
			Dynamic:   true,
			Variables: []string{"n"},
			Actions: []macro.Action{
				{Type: macro.KeyPress, Params: map[string]string{"key": "ctrl+backspace", "repeat": "{n}"}},
			},
		},
	}

	resolver := trigger.NewResolver([]trigger.Mapping{
		{DeviceID: "kb", Signature: "key:F13", MacroID: "screenshot"},
		{Signature: "speech", MacroID: "delete_words"},
		{Signature: "text", MacroID: "delete_words"},
		{DeviceID: "kb", Signature: "key:F14", MacroID: "missing"},
	})

	done := make(chan notify.Notification, 64)
	sink := notify.SinkFunc(func(n notify.Notification) {
		if n.Kind == notify.KindRun && (n.State == "completed" || n.State == "failed") {
			done <- n
		}
	})

	binding := &countingBinding{}
	exec := executor.New(executor.DefaultConfig(), binding,
		executor.WithSink(sink), executor.WithLogger(logging.Discard()))
	t.Cleanup(exec.Close)

	eng := New(resolver, macro.NewStore(lib), exec, WithLogger(logging.Discard()))
	return &fixture{engine: eng, binding: binding, done: done}
}

func (f *fixture) waitRun(t *testing.T) notify.Notification {
	t.Helper()
	select {
	case n := <-f.done:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no run settled")
		return notify.Notification{}
	}
}

func TestHandleEventStaticMacro(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEvent(input.Event{DeviceID: "kb", Kind: input.KeyDown, Key: "F13"})

	n := f.waitRun(t)
	if n.MacroID != "screenshot" || n.State != "completed" {
		t.Fatalf("run = %+v", n)
	}
	f.binding.mu.Lock()
	defer f.binding.mu.Unlock()
	if len(f.binding.presses) != 1 || f.binding.presses[0] != "print" {
		t.Errorf("presses = %v", f.binding.presses)
	}
}

func TestHandleEventDynamicMacro(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEvent(input.Event{
		DeviceID: "voice",
		Kind:     input.SpeechTranscribed,
		Text:     "delete last 3 words",
	})

	n := f.waitRun(t)
	if n.MacroID != "delete_words" || n.State != "completed" {
		t.Fatalf("run = %+v", n)
	}
	f.binding.mu.Lock()
	defer f.binding.mu.Unlock()
	if len(f.binding.presses) != 3 {
		t.Errorf("presses = %v, want 3 backspace-word chords", f.binding.presses)
	}
}

func TestHandleEventUnmatchedIsSilent(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEvent(input.Event{DeviceID: "kb", Kind: input.KeyDown, Key: "F1"})

	select {
	case n := <-f.done:
		t.Fatalf("unexpected run %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleEventUnparseableTextIsDropped(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEvent(input.Event{
		DeviceID: "cli",
		Kind:     input.TextSubmitted,
		Text:     "do something impossible",
	})

	select {
	case n := <-f.done:
		t.Fatalf("unexpected run %+v", n)
	case <-time.After(100 * time.Millisecond):
	}

	// The pipeline is still live afterwards.
	f.engine.HandleEvent(input.Event{DeviceID: "kb", Kind: input.KeyDown, Key: "F13"})
	if n := f.waitRun(t); n.State != "completed" {
		t.Fatalf("followup run = %+v", n)
	}
}

func TestHandleEventUnknownMacro(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEvent(input.Event{DeviceID: "kb", Kind: input.KeyDown, Key: "F14"})

	select {
	case n := <-f.done:
		t.Fatalf("unexpected run %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}
