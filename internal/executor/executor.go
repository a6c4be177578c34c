// Package executor runs macros as tracked, cancellable executions.
//
// Each submitted run moves through Queued, Running, and one of the
// terminal states Completed, Failed, or Cancelled. Runs of different
// macros may overlap up to a concurrency limit; runs of the same macro
// never overlap, the later one waits its turn. Cancellation is
// cooperative: the flag is checked between actions, an in-flight action
// always finishes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rionhunter/macrokit/internal/macro"
	"github.com/rionhunter/macrokit/internal/notify"
	"github.com/rionhunter/macrokit/internal/platform"
)

// ErrClosed is returned when submitting to a closed executor.
var ErrClosed = errors.New("executor: closed")

// ErrQueueFull is returned when the pending queue is at capacity.
var ErrQueueFull = errors.New("executor: queue full")

// ErrUnknownRun is returned for run ids the executor does not track.
var ErrUnknownRun = errors.New("executor: unknown run")

// State is an execution run's lifecycle state.
type State uint8

const (
	// Queued means the run is accepted but not started.
	Queued State = iota
	// Running means actions are executing.
	Running
	// Completed means every action succeeded.
	Completed
	// Failed means an action failed and the run stopped.
	Failed
	// Cancelled means the run was stopped by request.
	Cancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	ID          string
	MacroID     string
	State       State
	ActionIndex int
	Err         error
	Submitted   time.Time
	Finished    time.Time
}

// run is the executor's internal run record.
type run struct {
	mu          sync.Mutex
	id          string
	m           macro.Macro
	bindings    macro.Bindings
	state       State
	actionIndex int
	err         error
	submitted   time.Time
	finished    time.Time
	cancelled   atomic.Bool
}

func (r *run) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:          r.id,
		MacroID:     r.m.ID,
		State:       r.state,
		ActionIndex: r.actionIndex,
		Err:         r.err,
		Submitted:   r.submitted,
		Finished:    r.finished,
	}
}

// Config tunes the executor.
type Config struct {
	// MaxConcurrent is how many runs may execute at once.
	MaxConcurrent int

	// QueueSize bounds pending runs.
	QueueSize int

	// ActionTimeout bounds a single action. Zero means unbounded.
	ActionTimeout time.Duration
}

// DefaultConfig returns the default tuning: strictly serial execution.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 1, QueueSize: 64}
}

// Executor schedules and runs macro executions.
type Executor struct {
	cfg     Config
	binding platform.Binding
	sink    notify.Sink
	log     *slog.Logger

	mu           sync.Mutex
	queue        []*run
	runs         map[string]*run
	activeMacros map[string]bool
	activeCount  int
	closed       bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an executor.
type Option func(*Executor)

// WithSink sets the notification sink.
func WithSink(s notify.Sink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// New creates and starts an executor against a platform binding.
func New(cfg Config, binding platform.Binding, opts ...Option) *Executor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		cfg:          cfg,
		binding:      binding,
		sink:         notify.Nop(),
		log:          slog.New(slog.NewTextHandler(os.Stderr, nil)),
		runs:         make(map[string]*run),
		activeMacros: make(map[string]bool),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(1)
	go e.schedule()
	return e
}

// Submit queues a macro for execution with the given bindings and
// returns the run id. Dynamic macros must have every declared variable
// bound; the mismatch surfaces when the run executes, not here, so a bad
// submission still produces a tracked Failed run.
func (e *Executor) Submit(m macro.Macro, bindings macro.Bindings) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	r := &run{
		id:        uuid.NewString(),
		m:         m,
		bindings:  bindings,
		state:     Queued,
		submitted: time.Now(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	if len(e.queue) >= e.cfg.QueueSize {
		e.mu.Unlock()
		return "", fmt.Errorf("%w (%d pending)", ErrQueueFull, e.cfg.QueueSize)
	}
	e.queue = append(e.queue, r)
	e.runs[r.id] = r
	e.mu.Unlock()

	e.notifyRun(r, 0)
	e.poke()
	return r.id, nil
}

// poke wakes the scheduler.
func (e *Executor) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// schedule starts eligible queued runs. A run is eligible when a slot is
// free and no other run of the same macro is active. Queue order is
// preserved per macro; an ineligible run blocks only itself.
func (e *Executor) schedule() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
		}

		for {
			r := e.nextEligible()
			if r == nil {
				break
			}
			e.wg.Add(1)
			go e.execRun(r)
		}
	}
}

// nextEligible pops the first startable run, marking its macro active.
func (e *Executor) nextEligible() *run {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeCount >= e.cfg.MaxConcurrent {
		return nil
	}
	for i, r := range e.queue {
		if e.activeMacros[r.m.ID] {
			continue
		}
		e.queue = append(e.queue[:i], e.queue[i+1:]...)
		e.activeMacros[r.m.ID] = true
		e.activeCount++
		return r
	}
	return nil
}

// execRun drives one run to a terminal state.
func (e *Executor) execRun(r *run) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.activeMacros, r.m.ID)
		e.activeCount--
		e.mu.Unlock()
		e.poke()
	}()

	if r.cancelled.Load() {
		e.finish(r, Cancelled, nil)
		return
	}

	r.mu.Lock()
	r.state = Running
	r.mu.Unlock()
	e.notifyRun(r, 0)
	e.log.Debug("run started", "run", r.id, "macro", r.m.ID)

	for i, a := range r.m.Actions {
		if r.cancelled.Load() || e.ctx.Err() != nil {
			r.mu.Lock()
			r.actionIndex = i
			r.mu.Unlock()
			e.finish(r, Cancelled, nil)
			return
		}

		r.mu.Lock()
		r.actionIndex = i
		r.mu.Unlock()

		rendered, err := a.Render(r.bindings)
		if err != nil {
			e.finish(r, Failed, fmt.Errorf("action %d: %w", i, err))
			return
		}

		if err := e.performWithTimeout(rendered); err != nil {
			if e.ctx.Err() != nil {
				e.finish(r, Cancelled, nil)
				return
			}
			if tolerant(rendered) {
				e.log.Warn("action failed, continuing",
					"run", r.id, "macro", r.m.ID, "action", i, "error", err)
				continue
			}
			e.finish(r, Failed, fmt.Errorf("action %d: %w", i, err))
			return
		}
		e.notifyRun(r, i+1)
	}

	e.finish(r, Completed, nil)
	e.log.Debug("run completed", "run", r.id, "macro", r.m.ID)
}

// tolerant reports whether a failed action lets the run continue.
func tolerant(a macro.Action) bool {
	return a.Params["on_error"] == "continue"
}

func (e *Executor) performWithTimeout(a macro.Action) error {
	ctx := e.ctx
	if e.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ActionTimeout)
		defer cancel()
	}
	return e.perform(ctx, a)
}

// finish moves a run to a terminal state and notifies.
func (e *Executor) finish(r *run, s State, err error) {
	r.mu.Lock()
	r.state = s
	r.err = err
	r.finished = time.Now()
	idx := r.actionIndex
	r.mu.Unlock()

	if err != nil {
		e.log.Error("run failed", "run", r.id, "macro", r.m.ID, "error", err)
	}
	e.notifyRun(r, idx)
}

func (e *Executor) notifyRun(r *run, actionIndex int) {
	r.mu.Lock()
	state := r.state
	err := r.err
	r.mu.Unlock()

	e.sink.Notify(notify.Notification{
		Kind:        notify.KindRun,
		RunID:       r.id,
		MacroID:     r.m.ID,
		State:       state.String(),
		ActionIndex: actionIndex,
		Err:         err,
	})
}

// Cancel requests cancellation of a run. A queued run is cancelled
// immediately; a running run stops before its next action. Cancelling a
// terminal run is a no-op.
func (e *Executor) Cancel(id string) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownRun
	}

	for i, q := range e.queue {
		if q.id == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.mu.Unlock()
			e.finish(r, Cancelled, nil)
			return nil
		}
	}
	e.mu.Unlock()

	r.cancelled.Store(true)
	return nil
}

// Run returns a snapshot of the run with the given id.
func (e *Executor) Run(id string) (Snapshot, error) {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrUnknownRun
	}
	return r.snapshot(), nil
}

// Runs returns snapshots of every tracked run.
func (e *Executor) Runs() []Snapshot {
	e.mu.Lock()
	out := make([]Snapshot, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, r.snapshot())
	}
	e.mu.Unlock()
	return out
}

// Close stops the executor. Queued runs are cancelled; running runs stop
// at their next action boundary. Close blocks until all runs settle.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, r := range pending {
		e.finish(r, Cancelled, nil)
	}
	e.cancel()
	e.wg.Wait()
}
