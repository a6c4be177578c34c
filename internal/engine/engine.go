// Package engine connects the input dispatch path to macro execution:
// resolve the event to a macro, extract bindings for dynamic macros, and
// submit the run.
package engine

import (
	"log/slog"
	"os"

	"github.com/rionhunter/macrokit/internal/executor"
	"github.com/rionhunter/macrokit/internal/input"
	"github.com/rionhunter/macrokit/internal/macro"
	"github.com/rionhunter/macrokit/internal/phrase"
	"github.com/rionhunter/macrokit/internal/trigger"
)

// Engine is the event-to-execution pipeline. It is driven by the device
// manager's dispatch loop, one event at a time.
type Engine struct {
	resolver *trigger.Resolver
	parser   *phrase.Table
	macros   *macro.Store
	exec     *executor.Executor
	log      *slog.Logger
}

// Option configures an engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithParser overrides the phrase table.
func WithParser(p *phrase.Table) Option {
	return func(e *Engine) { e.parser = p }
}

// New creates an engine.
func New(resolver *trigger.Resolver, macros *macro.Store, exec *executor.Executor, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		parser:   phrase.DefaultTable(),
		macros:   macros,
		exec:     exec,
		log:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent processes one input event. Unmatched events are silent;
// every other drop is logged. Problems here are local to the event, the
// pipeline always stays up.
func (e *Engine) HandleEvent(ev input.Event) {
	match, ok := e.resolver.Resolve(ev)
	if !ok {
		return
	}

	m, ok := e.macros.Get(match.MacroID)
	if !ok {
		e.log.Warn("trigger references unknown macro",
			"macro", match.MacroID, "device", ev.DeviceID, "event", ev.Signature())
		return
	}

	var bindings macro.Bindings
	if m.Dynamic {
		b, err := e.parser.Parse(match.Text, m.Variables)
		if err != nil {
			e.log.Warn("dropping unparseable command",
				"macro", m.ID, "text", match.Text, "error", err)
			return
		}
		bindings = macro.Bindings(b)
	}

	runID, err := e.exec.Submit(m, bindings)
	if err != nil {
		e.log.Error("submit failed", "macro", m.ID, "error", err)
		return
	}
	e.log.Debug("run submitted", "run", runID, "macro", m.ID, "seq", ev.Seq)
}
