package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rionhunter/macrokit/internal/macro"
	"github.com/rionhunter/macrokit/internal/platform"
)

// perform executes one rendered action against the platform binding.
// Parameters are typed here, after template substitution.
func (e *Executor) perform(ctx context.Context, a macro.Action) error {
	switch a.Type {
	case macro.KeyPress:
		key := a.Params["key"]
		if key == "" {
			return fmt.Errorf("key_press: missing key")
		}
		n, err := intParam(a, "repeat", 1)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := e.binding.PressKey(ctx, key); err != nil {
				return err
			}
		}
		return nil

	case macro.TextPaste:
		return e.binding.PasteText(ctx, a.Params["text"])

	case macro.MouseClick:
		button, err := platform.ParseButton(a.Params["button"])
		if err != nil {
			return err
		}
		if a.Params["x"] != "" || a.Params["y"] != "" {
			x, err := intParam(a, "x", 0)
			if err != nil {
				return err
			}
			y, err := intParam(a, "y", 0)
			if err != nil {
				return err
			}
			if err := e.binding.MoveCursor(ctx, x, y); err != nil {
				return err
			}
		}
		return e.binding.Click(ctx, button, a.Params["double"] == "true")

	case macro.MouseMove:
		x, err := intParam(a, "x", 0)
		if err != nil {
			return err
		}
		y, err := intParam(a, "y", 0)
		if err != nil {
			return err
		}
		return e.binding.MoveCursor(ctx, x, y)

	case macro.Wait:
		ms, err := intParam(a, "duration", 0)
		if err != nil {
			return err
		}
		return e.binding.Sleep(ctx, time.Duration(ms)*time.Millisecond)

	case macro.OpenFile:
		return e.binding.OpenPath(ctx, a.Params["path"])

	case macro.OpenURL:
		return e.binding.OpenURL(ctx, a.Params["url"])

	case macro.OpenApplication:
		return e.binding.LaunchApplication(ctx, a.Params["path"], splitArgs(a.Params["args"]))

	case macro.SwitchApplication:
		return e.binding.FocusApplication(ctx, a.Params["name"])

	case macro.RunScript:
		return e.binding.RunScript(ctx, a.Params["path"], splitArgs(a.Params["args"]))

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// intParam parses an integer parameter, falling back to a default when
// the parameter is absent.
func intParam(a macro.Action, name string, def int) (int, error) {
	v, ok := a.Params[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: parameter %s: %w", a.Type, name, err)
	}
	return n, nil
}

// splitArgs splits a whitespace-separated argument string.
func splitArgs(s string) []string {
	return strings.Fields(s)
}
