package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/retry"
)

func newSyncBus() *InMemoryEventBus {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	return NewInMemoryEventBus(cfg)
}

func testEvent(t shared.EventType) shared.Event {
	return shared.AttemptCompletedEvent{
		BaseEvent: shared.BaseEvent{
			Type:        t,
			Timestamp:   time.Now(),
			AggregateId: "attempt-1",
		},
		AttemptID: "attempt-1",
	}
}

func TestInMemoryEventBus_DeliversToSubscribers(t *testing.T) {
	bus := newSyncBus()

	var got []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent(shared.EventAttemptCompleted)))
	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp))) // no subscriber

	assert.Equal(t, []shared.EventType{shared.EventAttemptCompleted}, got)
}

func TestInMemoryEventBus_WildcardSeesEverything(t *testing.T) {
	bus := newSyncBus()

	var count int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent(shared.EventAttemptCompleted)))
	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))

	assert.Equal(t, 2, count)
}

func TestInMemoryEventBus_FailingHandlerDoesNotStopOthers(t *testing.T) {
	bus := newSyncBus()

	var secondCalled bool
	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(shared.Event) error {
		secondCalled = true
		return nil
	}))

	err := bus.Publish(testEvent(shared.EventAttemptCompleted))
	assert.Error(t, err)
	assert.True(t, secondCalled)
}

func TestInMemoryEventBus_PanicIsolated(t *testing.T) {
	bus := newSyncBus()

	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(shared.Event) error {
		panic("handler bug")
	}))

	err := bus.Publish(testEvent(shared.EventAttemptCompleted))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerPanic)

	snap := bus.Metrics()
	assert.Equal(t, int64(1), snap.Panicked)
}

func TestInMemoryEventBus_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()
	assert.ErrorIs(t, bus.Subscribe(shared.EventAttemptCompleted, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(testEvent(shared.EventAttemptCompleted)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Close is idempotent.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_AsyncDeliveryDrainsOnClose(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	var mu sync.Mutex
	var count int
	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(testEvent(shared.EventAttemptCompleted)))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestInMemoryEventBus_MetricsCountByType(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Subscribe(shared.EventAttemptCompleted, func(shared.Event) error { return nil }))

	require.NoError(t, bus.Publish(testEvent(shared.EventAttemptCompleted)))
	require.NoError(t, bus.Publish(testEvent(shared.EventAttemptCompleted)))
	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))

	snap := bus.Metrics()
	assert.Equal(t, int64(3), snap.Published)
	assert.Equal(t, int64(2), snap.Delivered)
	assert.Equal(t, int64(0), snap.Failed)
	assert.Equal(t, int64(2), snap.PublishedByType[shared.EventAttemptCompleted])
	assert.Equal(t, int64(1), snap.PublishedByType[shared.EventLevelUp])
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

func newTestDispatcher(bus shared.EventSubscriber) *Dispatcher {
	// Без задержек между попытками, чтобы тесты не спали.
	return NewDispatcherBuilder(bus).
		WithRetrier(retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithJitter(0),
			retry.WithRetryIf(func(error) bool { return true }),
		)).
		Build()
}

func TestDispatcher_RoutesEventsToNamedHandlers(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	var calls int
	require.NoError(t, d.RegisterHandler(shared.EventCareerUnlocked, HandlerRegistration{
		Name:    "on_career_unlocked",
		Handler: func(shared.Event) error { calls++; return nil },
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(testEvent(shared.EventCareerUnlocked)))

	assert.Equal(t, 1, calls)
	processed, failed := d.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), failed)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	attempts := 0
	require.NoError(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{
		Name: "flaky",
		Handler: func(shared.Event) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))

	assert.Equal(t, 3, attempts)
	processed, failed := d.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), failed)
	assert.Empty(t, d.DeadLetters())
}

func TestDispatcher_ExhaustedRetriesGoToDeadLetters(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	require.NoError(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{
		Name:    "always_fails",
		Handler: func(shared.Event) error { return errors.New("permanent outage") },
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))

	_, failed := d.Stats()
	assert.Equal(t, int64(1), failed)

	letters := d.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, shared.EventLevelUp, letters[0].EventType)
	assert.Equal(t, "always_fails", letters[0].HandlerName)
	assert.Contains(t, letters[0].Error, "permanent outage")
}

func TestDispatcher_HandlerPanicBecomesFailure(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	require.NoError(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{
		Name:    "panics",
		Handler: func(shared.Event) error { panic("nil map write") },
	}))
	require.NoError(t, d.Start())

	// Доставка не возвращает ошибку публикующей стороне.
	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))

	letters := d.DeadLetters()
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Error, "panicked")
}

func TestDispatcher_RegistrationRules(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	handler := func(shared.Event) error { return nil }

	assert.ErrorIs(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{Name: "x"}), ErrNilHandler)
	assert.Error(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{Handler: handler}))

	require.NoError(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{Name: "a", Handler: handler}))
	assert.ErrorIs(t,
		d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{Name: "a", Handler: handler}),
		ErrDuplicateHandler)

	require.NoError(t, d.Start())
	assert.ErrorIs(t,
		d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{Name: "b", Handler: handler}),
		ErrDispatcherStarted)

	require.NoError(t, d.Stop())
	assert.ErrorIs(t, d.Start(), ErrDispatcherStopped)
}

func TestDispatcher_AsyncHandlersDrainOnStop(t *testing.T) {
	bus := newSyncBus()
	d := newTestDispatcher(bus)

	var mu sync.Mutex
	var done bool
	require.NoError(t, d.RegisterHandler(shared.EventLevelUp, HandlerRegistration{
		Name: "slow",
		Handler: func(shared.Event) error {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			done = true
			mu.Unlock()
			return nil
		},
		Async: true,
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(testEvent(shared.EventLevelUp)))
	require.NoError(t, d.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, done)
}
