package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rionhunter/macrokit/internal/input"
	"github.com/rionhunter/macrokit/internal/logging"
	"github.com/rionhunter/macrokit/internal/notify"
)

// Factory creates a device from its configuration.
type Factory func(cfg Config) (Listenable, error)

// DispatchFunc consumes one event from the merged stream. The manager calls
// it from a single goroutine and waits for it to return before pulling the
// next event, so the trigger sequence is deterministic across devices.
type DispatchFunc func(ev input.Event)

// Info is a snapshot of one registered device.
type Info struct {
	ID    string
	Kind  Kind
	State State
}

// Manager owns the registered devices and merges their events into one
// strictly ordered stream.
//
// Each device listens on its own goroutine; a blocking device never delays
// delivery for another. Events are ordered by arrival at the manager's
// queue, not by source timestamp.
type Manager struct {
	log      *slog.Logger
	sink     notify.Sink
	factory  Factory
	dispatch DispatchFunc

	queue chan input.Event

	mu      sync.Mutex
	devices map[string]*registration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	loopEnd chan struct{}
}

type registration struct {
	dev    Listenable
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithFactory overrides the device factory. Tests use this to register
// fake devices.
func WithFactory(f Factory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithSink sets the notification sink for device incidents.
func WithSink(sink notify.Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithQueueSize sets the merged stream buffer size.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queue = make(chan input.Event, n)
		}
	}
}

// NewManager creates a manager that delivers merged events to dispatch.
func NewManager(dispatch DispatchFunc, opts ...Option) *Manager {
	m := &Manager{
		log:      logging.Discard(),
		sink:     notify.Nop(),
		factory:  Open,
		dispatch: dispatch,
		queue:    make(chan input.Event, 256),
		devices:  make(map[string]*registration),
		loopEnd:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins dispatching. It must be called before Register.
func (m *Manager) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.started.Swap(true) {
		return fmt.Errorf("device: manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	go m.dispatchLoop()
	return nil
}

// dispatchLoop is the single consumer of the merged stream. It assigns
// arrival sequence numbers and fully processes one event before pulling
// the next.
func (m *Manager) dispatchLoop() {
	defer close(m.loopEnd)

	var seq uint64
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.queue:
			seq++
			ev.Seq = seq
			m.dispatch(ev)
		}
	}
}

// Register opens the device described by cfg and starts its listener.
// It fails with a wrapped ErrUnavailable when the resource cannot be
// opened, and with a plain error when the id is already live.
func (m *Manager) Register(cfg Config) (string, error) {
	if m.closed.Load() || !m.started.Load() {
		return "", ErrClosed
	}
	if cfg.ID == "" {
		return "", fmt.Errorf("device: empty device id")
	}

	m.mu.Lock()
	if _, exists := m.devices[cfg.ID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("device: %q already registered", cfg.ID)
	}
	m.mu.Unlock()

	dev, err := m.factory(cfg)
	if err != nil {
		m.sink.Notify(notify.Notification{
			Kind:     notify.KindDeviceUnavailable,
			DeviceID: cfg.ID,
			Err:      err,
		})
		return "", err
	}

	devCtx, devCancel := context.WithCancel(m.ctx)
	reg := &registration{dev: dev, cancel: devCancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.devices[cfg.ID]; exists {
		m.mu.Unlock()
		devCancel()
		dev.Close()
		return "", fmt.Errorf("device: %q already registered", cfg.ID)
	}
	m.devices[cfg.ID] = reg
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runDevice(devCtx, reg)

	m.log.Info("device registered", "device", cfg.ID, "kind", cfg.Kind.String())
	return cfg.ID, nil
}

// runDevice pumps one device until it stops or is lost. A lost device is
// reported and left in the registry in its error state; other devices are
// unaffected.
func (m *Manager) runDevice(ctx context.Context, reg *registration) {
	defer m.wg.Done()
	defer close(reg.done)

	err := reg.dev.Listen(ctx, m.emit)
	reg.dev.Close()

	if err != nil && ctx.Err() == nil {
		m.log.Warn("device lost", "device", reg.dev.ID(), "error", err)
		m.sink.Notify(notify.Notification{
			Kind:     notify.KindDeviceLost,
			DeviceID: reg.dev.ID(),
			Err:      err,
		})
	}
}

// emit pushes one event into the merged stream. Called from device
// listener goroutines.
func (m *Manager) emit(ev input.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case m.queue <- ev:
	case <-m.ctx.Done():
	}
}

// Unregister stops a device and releases its resource. It waits for the
// listener to exit and is idempotent: unknown ids are ignored.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	reg, ok := m.devices[id]
	if ok {
		delete(m.devices, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	reg.cancel()
	<-reg.done
	m.log.Info("device unregistered", "device", id)
}

// Device returns the registered device with the given id.
func (m *Manager) Device(id string) (Listenable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.devices[id]
	if !ok {
		return nil, false
	}
	return reg.dev, true
}

// Devices returns a snapshot of all registered devices.
func (m *Manager) Devices() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.devices))
	for id, reg := range m.devices {
		infos = append(infos, Info{ID: id, Kind: reg.dev.Kind(), State: reg.dev.State()})
	}
	return infos
}

// Close stops all devices and the dispatch loop. Events still queued when
// Close is called are discarded.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	if !m.started.Load() {
		return
	}

	m.mu.Lock()
	regs := make([]*registration, 0, len(m.devices))
	for _, reg := range m.devices {
		regs = append(regs, reg)
	}
	m.devices = make(map[string]*registration)
	m.mu.Unlock()

	for _, reg := range regs {
		reg.cancel()
	}
	m.wg.Wait()

	m.cancel()
	<-m.loopEnd
}
