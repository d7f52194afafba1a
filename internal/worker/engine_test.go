package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"bookingsync/internal/database"
	"bookingsync/internal/events"
	"bookingsync/internal/models"
	"bookingsync/internal/network"
	"bookingsync/internal/queue"
	"bookingsync/internal/remote"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSender answers with the queued results, then with the fallback.
type fakeSender struct {
	mu       sync.Mutex
	results  []error
	fallback error
	requests []remote.CreateBookingRequest
	onSend   func(req remote.CreateBookingRequest)
}

func (s *fakeSender) CreateBooking(_ context.Context, req remote.CreateBookingRequest) (*remote.CreateBookingResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	err := s.fallback
	if len(s.results) > 0 {
		err = s.results[0]
		s.results = s.results[1:]
	}
	onSend := s.onSend
	s.mu.Unlock()

	if onSend != nil {
		onSend(req)
	}
	if err != nil {
		return nil, err
	}
	return &remote.CreateBookingResult{ServerID: "BK-" + req.LocalID[len(req.LocalID)-4:]}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func engineDraft() models.BookingDraft {
	lat, lng := 5.0, 5.0
	return models.BookingDraft{
		ServiceID:   "svc-1",
		ServiceName: "Interior clean",
		VehicleType: "hatchback",
		Price:       decimal.NewFromInt(350),
		Location: models.Location{
			Lat:      &lat,
			Lng:      &lng,
			Address:  "Block C",
			Source:   models.LocationSourceDevice,
			Landmark: "Behind the mall",
		},
		Schedule: models.Schedule{Date: "2026-10-18", TimeSlot: "16:00"},
		Customer: models.Customer{Phone: "9123456789", Verified: true},
	}
}

func newSQLStore(t *testing.T, clock *fakeClock) *queue.SQLStore {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return queue.NewSQLStore(db, &logger, queue.WithClock(clock.Now))
}

func testConfig() Config {
	return Config{
		OnlineSettle:    30 * time.Millisecond,
		StartupSettle:   30 * time.Millisecond,
		Interval:        time.Hour,
		CleanupInterval: time.Hour,
		StaleSyncing:    10 * time.Minute,
		Retry:           DefaultRetryPolicy(),
	}
}

func TestEngine_OfflineThenOnline(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOffline, nil)
	bus := events.NewEventBus()

	var synced []events.BookingEventPayload
	var mu sync.Mutex
	bus.Subscribe(events.EventBookingSynced, func(ev *events.Event) error {
		var p events.BookingEventPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		mu.Lock()
		synced = append(synced, p)
		mu.Unlock()
		return nil
	})

	sender := &fakeSender{}
	ctx := context.Background()
	sender.onSend = func(req remote.CreateBookingRequest) {
		e, err := store.Get(ctx, req.LocalID)
		assert.NoError(t, err)
		assert.Equal(t, models.QueueStatusSyncing, e.Status, "entry is syncing while in flight")
	}

	cfg := testConfig()
	cfg.OnlineSettle = 150 * time.Millisecond
	engine := NewEngine(store, sender, monitor, bus, cfg, nil, WithClock(clock.Now))

	id, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)
	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].AttemptCount)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		engine.Start(runCtx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, sender.count(), "nothing is sent while offline")

	monitor.Set(models.NetworkOnline)
	e, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, e.Status, "settle delay has not elapsed yet")

	require.Eventually(t, func() bool {
		e, err := store.Get(ctx, id)
		return err == nil && e.Status == models.QueueStatusSynced
	}, 2*time.Second, 10*time.Millisecond)

	e, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e.ServerID)
	assert.NotEmpty(t, *e.ServerID)
	assert.Equal(t, 2, e.AttemptCount)
	assert.Equal(t, 1, sender.count())

	sender.mu.Lock()
	req := sender.requests[0]
	sender.mu.Unlock()
	assert.True(t, req.OfflineBooking)
	assert.Equal(t, id, req.LocalID)
	assert.NotEmpty(t, req.CreatedAt)

	mu.Lock()
	require.Len(t, synced, 1)
	assert.Equal(t, id, synced[0].LocalID)
	mu.Unlock()

	cancel()
	<-done
}

func TestEngine_BackoffSchedule(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOnline, nil)
	sender := &fakeSender{fallback: &remote.HTTPError{StatusCode: http.StatusInternalServerError}}
	engine := NewEngine(store, sender, monitor, nil, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	id, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		report, err := engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Retried)

		e, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, e.NextAttemptAt)
		delays = append(delays, e.NextAttemptAt.Sub(clock.Now()))

		// Not due yet: a pass before the delay is a no-op.
		report, err = engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)

		wake, ok := engine.NextWake()
		require.True(t, ok)
		assert.True(t, wake.Equal(*e.NextAttemptAt))

		clock.Advance(e.NextAttemptAt.Sub(clock.Now()))
	}

	assert.Equal(t, []time.Duration{
		60 * time.Second,
		300 * time.Second,
		900 * time.Second,
		1800 * time.Second,
		1800 * time.Second,
	}, delays)
	assert.Equal(t, 5, sender.count())
	engine.stopTimers()
}

func TestEngine_TerminalFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOnline, nil)
	sender := &fakeSender{fallback: errors.New("connection refused")}
	bus := events.NewEventBus()

	failedEvents := 0
	bus.Subscribe(events.EventBookingFailed, func(*events.Event) error {
		failedEvents++
		return nil
	})

	engine := NewEngine(store, sender, monitor, bus, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	id, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := engine.Drain(ctx)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	e, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, e.Status)
	assert.Equal(t, 10, e.Failures)
	assert.Equal(t, 20, e.AttemptCount)
	assert.Nil(t, e.NextAttemptAt)
	require.NotNil(t, e.LastError)
	assert.Equal(t, "connection refused", *e.LastError)
	assert.Equal(t, 1, failedEvents)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, ok := engine.NextWake()
	assert.False(t, ok, "no retry is scheduled for a failed entry")

	report, err := engine.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Pending)
	assert.Equal(t, 10, sender.count())
}

func TestEngine_DrainGuards(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOffline, nil)

	release := make(chan struct{})
	entered := make(chan struct{})
	sender := &fakeSender{onSend: func(remote.CreateBookingRequest) {
		close(entered)
		<-release
	}}
	engine := NewEngine(store, sender, monitor, nil, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	_, err := engine.Drain(ctx)
	assert.ErrorIs(t, err, ErrOffline)

	monitor.Set(models.NetworkOnline)
	_, err = store.Save(ctx, engineDraft())
	require.NoError(t, err)

	done := make(chan Report)
	go func() {
		r, err := engine.Drain(ctx)
		assert.NoError(t, err)
		done <- r
	}()

	<-entered
	_, err = engine.Drain(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	r := <-done
	assert.Equal(t, 1, r.Synced)
	assert.Equal(t, 1, sender.count())
}

func TestEngine_InFlightEntryIsNotSentTwice(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOnline, nil)
	sender := &fakeSender{}
	engine := NewEngine(store, sender, monitor, nil, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	id, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)
	entry, err := store.Get(ctx, id)
	require.NoError(t, err)

	engine.inFlight.Store(id, struct{}{})
	assert.Equal(t, models.QueueStatus(""), engine.syncEntry(ctx, *entry))
	assert.Zero(t, sender.count())

	engine.inFlight.Delete(id)
	assert.Equal(t, models.QueueStatusSynced, engine.syncEntry(ctx, *entry))
}

func TestEngine_RecoverStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	store := newSQLStore(t, clock)
	monitor := network.NewMonitor(models.NetworkOffline, nil)
	engine := NewEngine(store, &fakeSender{}, monitor, nil, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	stale, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, stale, queue.Update{Status: models.QueueStatusSyncing})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	fresh, err := store.Save(ctx, engineDraft())
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, fresh, queue.Update{Status: models.QueueStatusSyncing})
	require.NoError(t, err)

	n, err := engine.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := store.Get(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, e.Status)
	assert.Equal(t, 1, e.Failures)
	require.NotNil(t, e.LastError)
	assert.Equal(t, interruptedError, *e.LastError)

	e, err = store.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSyncing, e.Status)
}

func TestEngine_FailoverStoreRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	durable := newSQLStore(t, clock)
	memory := queue.NewMemoryStore(queue.WithClock(clock.Now))
	store := queue.NewFailoverStore(durable, memory, nil)
	monitor := network.NewMonitor(models.NetworkOnline, nil)
	sender := &fakeSender{}
	engine := NewEngine(store, sender, monitor, nil, testConfig(), nil, WithClock(clock.Now))
	ctx := context.Background()

	id, err := memory.Save(ctx, engineDraft())
	require.NoError(t, err)

	report, err := engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.False(t, memory.Has(id))

	e, err := durable.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSynced, e.Status)
}
