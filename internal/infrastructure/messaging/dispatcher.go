package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrDispatcherStarted is returned when registering handlers after Start.
	ErrDispatcherStarted = errors.New("dispatcher: already started")

	// ErrDispatcherStopped is returned by Start after Stop.
	ErrDispatcherStopped = errors.New("dispatcher: stopped")

	// ErrDuplicateHandler is returned when a handler name is already
	// registered for the event type.
	ErrDuplicateHandler = errors.New("dispatcher: duplicate handler name")
)

// HandlerRegistration describes one named handler for an event type.
type HandlerRegistration struct {
	// Name identifies the handler in logs and dead letters.
	Name string

	// Handler is the function invoked for each event.
	Handler shared.EventHandler

	// Async runs the handler on its own goroutine, so a slow effect
	// (narrative regeneration, notification trigger) cannot delay the
	// other handlers of the same event.
	Async bool
}

// DeadLetter records an event a handler could not process after retries.
// The queue is an in-memory ring for inspection; effects are best-effort,
// so dead letters are diagnostics, not a redelivery source.
type DeadLetter struct {
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	Payload     map[string]interface{} `json:"payload"`
	HandlerName string                 `json:"handler_name"`
	Error       string                 `json:"error"`
	FailedAt    time.Time              `json:"failed_at"`
}

// Dispatcher binds named event handlers to a bus, wrapping each delivery
// with panic recovery, retry with backoff, and structured logging.
// Registration happens before Start; the set is immutable afterwards.
type Dispatcher struct {
	bus     shared.EventSubscriber
	log     *slog.Logger
	retrier *retry.Retrier

	mu            sync.Mutex
	registrations map[shared.EventType][]HandlerRegistration
	started       bool
	stopped       bool

	wg sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64

	dlqMu   sync.Mutex
	dlq     []DeadLetter
	dlqSize int
}

// RegisterHandler adds a named handler for the event type. Names must be
// unique per type so log lines and dead letters stay attributable.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, reg HandlerRegistration) error {
	if reg.Handler == nil {
		return ErrNilHandler
	}
	if reg.Name == "" {
		return fmt.Errorf("dispatcher: handler for %s needs a name", eventType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrDispatcherStarted
	}
	for _, existing := range d.registrations[eventType] {
		if existing.Name == reg.Name {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateHandler, eventType, reg.Name)
		}
	}
	d.registrations[eventType] = append(d.registrations[eventType], reg)
	return nil
}

// Start subscribes all registered handlers to the bus.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	if d.started {
		return nil
	}

	for eventType, regs := range d.registrations {
		for _, reg := range regs {
			if err := d.bus.Subscribe(eventType, d.wrap(eventType, reg)); err != nil {
				return fmt.Errorf("dispatcher: subscribe %s/%s: %w", eventType, reg.Name, err)
			}
		}
	}
	d.started = true

	d.log.Info("event dispatcher started",
		"event_types", len(d.registrations),
	)
	return nil
}

// Stop waits for in-flight async handlers to finish, bounded by a drain
// timeout. Subscriptions stay on the bus; the bus itself is closed by
// its owner.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		d.log.Warn("dispatcher stopped with handlers still running")
	}
	return nil
}

// wrap builds the bus-facing handler: async hop, retry, recovery, logging.
func (d *Dispatcher) wrap(eventType shared.EventType, reg HandlerRegistration) shared.EventHandler {
	run := func(event shared.Event) {
		err := d.invoke(reg, event)
		if err == nil {
			d.processed.Add(1)
			return
		}
		d.failed.Add(1)
		d.log.Error("event handler exhausted retries",
			"event_type", string(eventType),
			"handler", reg.Name,
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
		d.pushDeadLetter(DeadLetter{
			EventType:   eventType,
			AggregateID: event.AggregateID(),
			Payload:     event.Payload(),
			HandlerName: reg.Name,
			Error:       err.Error(),
			FailedAt:    time.Now().UTC(),
		})
	}

	if !reg.Async {
		return func(event shared.Event) error {
			run(event)
			return nil
		}
	}
	return func(event shared.Event) error {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			run(event)
		}()
		return nil
	}
}

// invoke runs the handler through the retrier with panic isolation per
// attempt.
func (d *Dispatcher) invoke(reg HandlerRegistration, event shared.Event) error {
	return d.retrier.Do(context.Background(), func(_ context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				// Паника обработчика ретраится как обычная ошибка.
				err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		return reg.Handler(event)
	})
}

func (d *Dispatcher) pushDeadLetter(dl DeadLetter) {
	d.dlqMu.Lock()
	defer d.dlqMu.Unlock()
	d.dlq = append(d.dlq, dl)
	if len(d.dlq) > d.dlqSize {
		d.dlq = d.dlq[len(d.dlq)-d.dlqSize:]
	}
}

// DeadLetters returns a copy of the retained dead letters, oldest first.
func (d *Dispatcher) DeadLetters() []DeadLetter {
	d.dlqMu.Lock()
	defer d.dlqMu.Unlock()
	out := make([]DeadLetter, len(d.dlq))
	copy(out, d.dlq)
	return out
}

// Stats reports processed and failed delivery counts since start.
func (d *Dispatcher) Stats() (processed, failed int64) {
	return d.processed.Load(), d.failed.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherBuilder assembles a Dispatcher with optional overrides.
type DispatcherBuilder struct {
	bus     shared.EventSubscriber
	log     *slog.Logger
	retrier *retry.Retrier
	dlqSize int
}

// NewDispatcherBuilder starts a builder over the given bus.
func NewDispatcherBuilder(bus shared.EventSubscriber) *DispatcherBuilder {
	return &DispatcherBuilder{
		bus:     bus,
		dlqSize: 100,
	}
}

// WithLogger sets the logger for delivery failures and lifecycle messages.
func (b *DispatcherBuilder) WithLogger(log *slog.Logger) *DispatcherBuilder {
	b.log = log
	return b
}

// WithRetrier overrides the retry policy applied to every handler.
func (b *DispatcherBuilder) WithRetrier(r *retry.Retrier) *DispatcherBuilder {
	b.retrier = r
	return b
}

// WithDeadLetterLimit caps the number of retained dead letters.
func (b *DispatcherBuilder) WithDeadLetterLimit(n int) *DispatcherBuilder {
	if n > 0 {
		b.dlqSize = n
	}
	return b
}

// Build finalizes the dispatcher. Defaults: 3 attempts with short
// exponential backoff (effects are latency-tolerant but not critical),
// 100 retained dead letters, default logger.
func (b *DispatcherBuilder) Build() *Dispatcher {
	log := b.log
	if log == nil {
		log = slog.Default()
	}
	retrier := b.retrier
	if retrier == nil {
		retrier = retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(100*time.Millisecond),
			retry.WithMaxDelay(2*time.Second),
			// Обработчики возвращают обычные ошибки, не RetryableError.
			retry.WithRetryIf(func(error) bool { return true }),
		)
	}
	return &Dispatcher{
		bus:           b.bus,
		log:           log.With("component", "dispatcher"),
		retrier:       retrier,
		registrations: make(map[shared.EventType][]HandlerRegistration),
		dlq:           make([]DeadLetter, 0),
		dlqSize:       b.dlqSize,
	}
}
