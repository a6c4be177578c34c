package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rionhunter/macrokit/internal/script"
)

// Desktop is the Binding for desktop sessions. Key and pointer injection
// go through an external injector command (xdotool-compatible verbs);
// files and URLs open through the OS opener; Lua scripts run in-process
// and other scripts through their interpreter.
type Desktop struct {
	injector string
	engine   *script.Engine
	log      *slog.Logger
	goos     string
}

// DesktopOption configures a Desktop binding.
type DesktopOption func(*Desktop)

// WithInjector sets the external injection command. Empty leaves key and
// pointer operations unsupported.
func WithInjector(cmd string) DesktopOption {
	return func(d *Desktop) { d.injector = cmd }
}

// WithScriptEngine sets the Lua engine used for .lua scripts.
func WithScriptEngine(e *script.Engine) DesktopOption {
	return func(d *Desktop) { d.engine = e }
}

// WithDesktopLogger sets the logger.
func WithDesktopLogger(log *slog.Logger) DesktopOption {
	return func(d *Desktop) { d.log = log }
}

// NewDesktop creates a desktop binding.
func NewDesktop(opts ...DesktopOption) *Desktop {
	d := &Desktop{
		log:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
		goos: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// inject runs one injector verb, e.g. inject(ctx, "key", "ctrl+s").
func (d *Desktop) inject(ctx context.Context, op string, args ...string) error {
	if d.injector == "" {
		return fail(op, fmt.Errorf("%w: no injector configured", ErrUnsupported))
	}
	cmd := exec.CommandContext(ctx, d.injector, append([]string{op}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail(op, fmt.Errorf("%s: %w (%s)", d.injector, err, string(out)))
	}
	return nil
}

func (d *Desktop) PressKey(ctx context.Context, key string) error {
	return d.inject(ctx, "key", key)
}

func (d *Desktop) ReleaseKey(ctx context.Context, key string) error {
	return d.inject(ctx, "keyup", key)
}

func (d *Desktop) MoveCursor(ctx context.Context, x, y int) error {
	return d.inject(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y))
}

func (d *Desktop) Click(ctx context.Context, button Button, double bool) error {
	args := []string{strconv.Itoa(int(button))}
	if double {
		args = append([]string{"--repeat", "2"}, args...)
	}
	return d.inject(ctx, "click", args...)
}

func (d *Desktop) PasteText(ctx context.Context, text string) error {
	return d.inject(ctx, "type", text)
}

// opener returns the OS file/URL opener command.
func (d *Desktop) opener() (string, error) {
	switch d.goos {
	case "darwin":
		return "open", nil
	case "linux":
		return "xdg-open", nil
	case "windows":
		return "", fmt.Errorf("%w: no opener on windows, use start via cmd", ErrUnsupported)
	default:
		return "", fmt.Errorf("%w: no opener for %s", ErrUnsupported, d.goos)
	}
}

func (d *Desktop) openWith(ctx context.Context, op, target string) error {
	opener, err := d.opener()
	if err != nil {
		return fail(op, err)
	}
	cmd := exec.CommandContext(ctx, opener, target)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail(op, fmt.Errorf("%s %s: %w (%s)", opener, target, err, string(out)))
	}
	return nil
}

func (d *Desktop) OpenPath(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fail("open_path", err)
	}
	return d.openWith(ctx, "open_path", path)
}

func (d *Desktop) OpenURL(ctx context.Context, url string) error {
	return d.openWith(ctx, "open_url", url)
}

func (d *Desktop) LaunchApplication(ctx context.Context, path string, args []string) error {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return fail("open_application", err)
	}
	d.log.Debug("launched application", "path", path, "pid", cmd.Process.Pid)
	// The application outlives the macro; reap it in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}

func (d *Desktop) FocusApplication(ctx context.Context, match string) error {
	switch d.goos {
	case "linux":
		cmd := exec.CommandContext(ctx, "wmctrl", "-a", match)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fail("switch_application", fmt.Errorf("wmctrl: %w (%s)", err, string(out)))
		}
		return nil
	case "darwin":
		cmd := exec.CommandContext(ctx, "osascript", "-e",
			fmt.Sprintf("tell application %q to activate", match))
		if out, err := cmd.CombinedOutput(); err != nil {
			return fail("switch_application", fmt.Errorf("osascript: %w (%s)", err, string(out)))
		}
		return nil
	default:
		return fail("switch_application", fmt.Errorf("%w: focus on %s", ErrUnsupported, d.goos))
	}
}

// interpreterFor picks an interpreter by script extension. Lua scripts
// never reach this; they run in-process.
func interpreterFor(path string) (string, error) {
	switch filepath.Ext(path) {
	case ".sh":
		return "bash", nil
	case ".py":
		return "python3", nil
	default:
		return "", fmt.Errorf("%w: script type %q", ErrUnsupported, filepath.Ext(path))
	}
}

func (d *Desktop) RunScript(ctx context.Context, path string, args []string) error {
	if filepath.Ext(path) == ".lua" {
		if d.engine == nil {
			return fail("run_script", fmt.Errorf("%w: no script engine", ErrUnsupported))
		}
		return fail("run_script", d.engine.RunFile(ctx, path, args))
	}

	interp, err := interpreterFor(path)
	if err != nil {
		return fail("run_script", err)
	}
	cmd := exec.CommandContext(ctx, interp, append([]string{path}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail("run_script", fmt.Errorf("%s %s: %w (%s)", interp, path, err, string(out)))
	}
	return nil
}

func (d *Desktop) Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fail("wait", ctx.Err())
	case <-t.C:
		return nil
	}
}

var _ Binding = (*Desktop)(nil)
