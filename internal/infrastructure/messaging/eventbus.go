// Package messaging implements the event buses and the handler dispatcher
// that carry fire-and-forget downstream effects of the progress engine:
// cache invalidation, notification triggers, narrative regeneration.
//
// Two bus implementations share the shared.EventBus contract:
//   - InMemoryEventBus: single-process fan-out, used by cmd/api and cmd/worker
//   - RedisEventBus: cross-process fan-out over Redis pub/sub for multi-instance
//     deployments (worker reacts to events published by the API process)
//
// Scoring, XP and career evaluation never ride the bus - they stay inside
// the submit transaction. Losing an event loses a notification, not data.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when publishing or subscribing on a closed bus.
	ErrEventBusClosed = errors.New("eventbus: bus is closed")

	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("eventbus: handler cannot be nil")

	// ErrHandlerPanic is returned when a handler panics during delivery.
	ErrHandlerPanic = errors.New("eventbus: handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures the in-process bus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers events on worker goroutines instead of the
	// publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent deliveries in async mode.
	// Publish blocks briefly when the pool is saturated.
	WorkerPoolSize int

	// Logger receives delivery failures and panics. Nil disables logging.
	Logger *slog.Logger

	// EnableMetrics turns on the delivery counters exposed via Metrics().
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the configuration used by both
// entry points: synchronous delivery, small worker pool when async is
// switched on, metrics enabled.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 8,
		Logger:         nil,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus fans events out to subscribed handlers within a single
// process. Handlers for a given event type run in subscription order;
// a failing handler does not stop delivery to the rest.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler

	cfg     InMemoryEventBusConfig
	metrics *BusMetrics

	// Семафор ограничивает параллелизм асинхронной доставки.
	sem    chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewInMemoryEventBus creates a bus with the given configuration.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 8
	}
	bus := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.WorkerPoolSize),
	}
	if cfg.EnableMetrics {
		bus.metrics = &BusMetrics{}
	}
	return bus
}

// Subscribe registers a handler for a single event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler that receives every event regardless of type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
	return nil
}

// Publish delivers the event to all matching handlers. In async mode it
// returns immediately; delivery errors are logged, never returned, because
// the publisher (usually a command handler inside a transaction) must not
// fail on a downstream effect.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}

	b.mu.RLock()
	targets := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.wildcard))
	targets = append(targets, b.handlers[event.EventType()]...)
	targets = append(targets, b.wildcard...)
	b.mu.RUnlock()

	b.metrics.recordPublish(event.EventType())

	if len(targets) == 0 {
		return nil
	}

	if !b.cfg.AsyncMode {
		var firstErr error
		for _, h := range targets {
			if err := b.deliver(h, event); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, h := range targets {
		h := h
		b.wg.Add(1)
		b.sem <- struct{}{}
		go func() {
			defer b.wg.Done()
			defer func() { <-b.sem }()
			_ = b.deliver(h, event)
		}()
	}
	return nil
}

// deliver invokes a single handler with panic isolation.
func (b *InMemoryEventBus) deliver(h shared.EventHandler, event shared.Event) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			b.metrics.recordPanic()
			if b.cfg.Logger != nil {
				b.cfg.Logger.Error("event handler panicked",
					"event_type", string(event.EventType()),
					"aggregate_id", event.AggregateID(),
					"panic", r,
				)
			}
		}
	}()

	err = h(event)
	b.metrics.recordDelivery(err, time.Since(start))
	if err != nil && b.cfg.Logger != nil {
		b.cfg.Logger.Warn("event handler failed",
			"event_type", string(event.EventType()),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
	return err
}

// Metrics returns a snapshot of the delivery counters. Zero value when
// metrics are disabled.
func (b *InMemoryEventBus) Metrics() BusMetricsSnapshot {
	return b.metrics.snapshot()
}

// Close rejects further publishes and waits for in-flight async deliveries,
// up to a drain timeout so shutdown cannot hang on a stuck handler.
func (b *InMemoryEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		if b.cfg.Logger != nil {
			b.cfg.Logger.Warn("event bus closed with deliveries still in flight")
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS METRICS
// ══════════════════════════════════════════════════════════════════════════════

// BusMetrics counts publishes and deliveries. All methods are safe on a
// nil receiver so the hot path carries no branches when metrics are off.
type BusMetrics struct {
	published  atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	panicked   atomic.Int64
	busyMicros atomic.Int64

	mu     sync.Mutex
	byType map[shared.EventType]int64
}

// BusMetricsSnapshot is a point-in-time copy of the counters.
type BusMetricsSnapshot struct {
	Published       int64                      `json:"published"`
	Delivered       int64                      `json:"delivered"`
	Failed          int64                      `json:"failed"`
	Panicked        int64                      `json:"panicked"`
	HandlerBusyTime time.Duration              `json:"handler_busy_time"`
	PublishedByType map[shared.EventType]int64 `json:"published_by_type"`
}

func (m *BusMetrics) recordPublish(t shared.EventType) {
	if m == nil {
		return
	}
	m.published.Add(1)
	m.mu.Lock()
	if m.byType == nil {
		m.byType = make(map[shared.EventType]int64)
	}
	m.byType[t]++
	m.mu.Unlock()
}

func (m *BusMetrics) recordDelivery(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.busyMicros.Add(elapsed.Microseconds())
	if err != nil {
		m.failed.Add(1)
		return
	}
	m.delivered.Add(1)
}

func (m *BusMetrics) recordPanic() {
	if m == nil {
		return
	}
	m.panicked.Add(1)
}

func (m *BusMetrics) snapshot() BusMetricsSnapshot {
	if m == nil {
		return BusMetricsSnapshot{}
	}
	snap := BusMetricsSnapshot{
		Published:       m.published.Load(),
		Delivered:       m.delivered.Load(),
		Failed:          m.failed.Load(),
		Panicked:        m.panicked.Load(),
		HandlerBusyTime: time.Duration(m.busyMicros.Load()) * time.Microsecond,
		PublishedByType: make(map[shared.EventType]int64),
	}
	m.mu.Lock()
	for t, n := range m.byType {
		snap.PublishedByType[t] = n
	}
	m.mu.Unlock()
	return snap
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// redisChannelPrefix namespaces the pub/sub channels; one channel per
// event type so subscribers only receive what they registered for.
const redisChannelPrefix = "edugami:events:"

// eventEnvelope is the wire format for cross-process events. Payload is
// the flattened event data; typed event structs are not reconstructed on
// the receiving side.
type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// remoteEvent adapts a received envelope to the shared.Event interface.
type remoteEvent struct {
	env eventEnvelope
}

func (e remoteEvent) EventType() shared.EventType     { return e.env.EventType }
func (e remoteEvent) OccurredAt() time.Time           { return e.env.OccurredAt }
func (e remoteEvent) AggregateID() string             { return e.env.AggregateID }
func (e remoteEvent) Payload() map[string]interface{} { return e.env.Payload }

// RedisEventBusConfig configures the cross-process bus.
type RedisEventBusConfig struct {
	// Logger receives subscription errors and handler failures.
	Logger *slog.Logger

	// DeliverOwn re-delivers events this instance published itself.
	// Off by default: local handlers already saw them via the local leg.
	DeliverOwn bool
}

// RedisEventBus publishes events over Redis pub/sub and delivers received
// ones to locally registered handlers. Each instance tags its envelopes
// with a unique ID so it can skip its own messages.
type RedisEventBus struct {
	client     goredis.UniversalClient
	cfg        RedisEventBusConfig
	instanceID string

	local *InMemoryEventBus

	mu      sync.Mutex
	pubsub  *goredis.PubSub
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	closed  atomic.Bool
}

// NewRedisEventBus creates a bus over the given Redis client. The client's
// lifecycle belongs to the caller; Close only tears down the subscription.
func NewRedisEventBus(client goredis.UniversalClient, cfg RedisEventBusConfig) *RedisEventBus {
	localCfg := DefaultInMemoryEventBusConfig()
	localCfg.Logger = cfg.Logger
	return &RedisEventBus{
		client:     client,
		cfg:        cfg,
		instanceID: uuid.NewString(),
		local:      NewInMemoryEventBus(localCfg),
		done:       make(chan struct{}),
	}
}

// Publish sends the event to Redis. Remote delivery is best-effort: a
// publish failure is returned but callers treat it as a lost notification.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}

	env := eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	ctx, cancelPub := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPub()
	if err := b.client.Publish(ctx, redisChannelPrefix+string(event.EventType()), data).Err(); err != nil {
		return fmt.Errorf("eventbus: redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a local handler for a single event type. The Redis
// side is a single pattern subscription opened by Start; type filtering
// happens on the local leg.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if b.closed.Load() {
		return ErrEventBusClosed
	}
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	if b.closed.Load() {
		return ErrEventBusClosed
	}
	return b.local.SubscribeAll(handler)
}

// Start opens the Redis subscription and begins delivering received events.
func (b *RedisEventBus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.pubsub = b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	b.started = true

	go b.receiveLoop(ctx, b.pubsub.Channel())
	return nil
}

// receiveLoop delivers incoming envelopes to local handlers until the
// subscription closes.
func (b *RedisEventBus) receiveLoop(ctx context.Context, ch <-chan *goredis.Message) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleMessage(msg *goredis.Message) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		if b.cfg.Logger != nil {
			b.cfg.Logger.Warn("dropping malformed event envelope",
				"channel", msg.Channel,
				"error", err,
			)
		}
		return
	}
	if env.InstanceID == b.instanceID && !b.cfg.DeliverOwn {
		return
	}
	// Ошибки обработчиков уже залогированы локальной шиной.
	_ = b.local.Publish(remoteEvent{env: env})
}

// Close stops the subscription, waits for the receive loop, and drains
// local handlers.
func (b *RedisEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	started := b.started
	if b.cancel != nil {
		b.cancel()
	}
	pubsub := b.pubsub
	b.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
	}
	if started {
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
		}
	}
	return b.local.Close()
}
