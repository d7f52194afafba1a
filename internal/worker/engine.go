// Package worker drains the offline queue against the booking server.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"
	"bookingsync/internal/events"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/network"
	"bookingsync/internal/queue"
	"bookingsync/internal/remote"

	"github.com/rs/zerolog"
)

var (
	// ErrSyncInProgress is returned when a drain pass is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrOffline is returned when a drain is requested while offline.
	ErrOffline = errors.New("network is offline")
)

const interruptedError = "sync interrupted"

// Connectivity is the platform network signal.
type Connectivity interface {
	Online() bool
	Subscribe(l network.Listener) network.SubscriptionID
	Unsubscribe(id network.SubscriptionID)
}

// Recoverer is implemented by stores that hold entries outside durable
// storage and can move them back.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Config holds the engine timings.
type Config struct {
	OnlineSettle    time.Duration
	StartupSettle   time.Duration
	Interval        time.Duration
	CleanupInterval time.Duration
	StaleSyncing    time.Duration
	Retry           RetryPolicy
}

func ConfigFrom(c config.SyncConfig) Config {
	return Config{
		OnlineSettle:    c.OnlineSettle,
		StartupSettle:   c.StartupSettle,
		Interval:        c.Interval,
		CleanupInterval: c.CleanupInterval,
		StaleSyncing:    c.StaleSyncing,
		Retry:           RetryPolicy{Delays: c.Backoff, MaxAttempts: c.MaxAttempts},
	}
}

// Report summarises one drain pass.
type Report struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Engine is the only writer of queue entries after they are created. Drain
// passes are the only dispatch path: an entry is sent when it is pending and
// its NextAttemptAt has passed, and one wake-up timer is kept for the
// earliest such time.
type Engine struct {
	store  queue.Store
	sender domain.BookingSender
	net    Connectivity
	bus    *events.EventBus
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time

	draining atomic.Bool
	inFlight sync.Map
	trigger  chan struct{}

	timerMu     sync.Mutex
	settleTimer *time.Timer
	wakeTimer   *time.Timer
	wakeAt      time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store queue.Store, sender domain.BookingSender, net Connectivity, bus *events.EventBus, cfg Config, logger *zerolog.Logger, opts ...Option) *Engine {
	if cfg.OnlineSettle <= 0 {
		cfg.OnlineSettle = 2 * time.Second
	}
	if cfg.StartupSettle <= 0 {
		cfg.StartupSettle = 3 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.StaleSyncing <= 0 {
		cfg.StaleSyncing = 10 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sync").Logger()

	e := &Engine{
		store:   store,
		sender:  sender,
		net:     net,
		bus:     bus,
		cfg:     cfg,
		logger:  &l,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TriggerSync requests a drain pass without blocking. Requests made while one
// is pending collapse into it.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs the engine until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info().Msg("Sync engine started")
	defer e.logger.Info().Msg("Sync engine stopped")

	if n, err := e.RecoverStale(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Stale entry recovery failed")
	} else if n > 0 {
		e.logger.Warn().Int("entries", n).Msg("Interrupted entries returned to pending")
	}
	e.cleanup(ctx)

	sub := e.net.Subscribe(e.onNetworkChange)
	defer e.net.Unsubscribe(sub)
	defer e.stopTimers()

	if e.net.Online() {
		e.armSettle(e.cfg.StartupSettle)
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.net.Online() {
				e.runDrain(ctx)
			}
		case <-cleanupTicker.C:
			e.cleanup(ctx)
		case <-e.trigger:
			e.runDrain(ctx)
		}
	}
}

func (e *Engine) onNetworkChange(status models.NetworkStatus) {
	metrics.IncNetworkTransition(string(status))
	_ = e.bus.PublishJSON(events.EventNetworkChanged, events.NetworkEventPayload{Status: string(status), At: e.now()})

	if status == models.NetworkOnline {
		e.logger.Info().Dur("settle", e.cfg.OnlineSettle).Msg("Back online, sync scheduled")
		e.armSettle(e.cfg.OnlineSettle)
		return
	}
	e.logger.Info().Msg("Offline, sync paused")
	e.timerMu.Lock()
	if e.settleTimer != nil {
		e.settleTimer.Stop()
	}
	e.timerMu.Unlock()
}

// armSettle triggers a drain after d, unless the network dropped meanwhile.
// A newer call replaces a pending one.
func (e *Engine) armSettle(d time.Duration) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.settleTimer != nil {
		e.settleTimer.Stop()
	}
	e.settleTimer = time.AfterFunc(d, func() {
		if e.net.Online() {
			e.TriggerSync()
		}
	})
}

func (e *Engine) stopTimers() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.settleTimer != nil {
		e.settleTimer.Stop()
	}
	if e.wakeTimer != nil {
		e.wakeTimer.Stop()
		e.wakeTimer = nil
	}
	e.wakeAt = time.Time{}
}

func (e *Engine) runDrain(ctx context.Context) {
	report, err := e.Drain(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		e.logger.Debug().Err(err).Msg("Drain skipped")
	case err != nil:
		e.logger.Error().Err(err).Msg("Drain failed")
	case report.Pending > 0:
		e.logger.Info().
			Int("pending", report.Pending).
			Int("synced", report.Synced).
			Int("retried", report.Retried).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Msg("Drain finished")
	}
}

// Drain runs one pass over the due pending entries, sequentially.
func (e *Engine) Drain(ctx context.Context) (Report, error) {
	var report Report
	if !e.net.Online() {
		return report, ErrOffline
	}
	if !e.draining.CompareAndSwap(false, true) {
		return report, ErrSyncInProgress
	}
	defer e.draining.Store(false)

	if r, ok := e.store.(Recoverer); ok {
		if _, err := r.Recover(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("Memory queue entries not yet moved")
		}
	}

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return report, err
	}
	report.Pending = len(pending)

	now := e.now()
	for i := range pending {
		if ctx.Err() != nil || !e.net.Online() {
			break
		}
		entry := pending[i]
		if !entry.Due(now) {
			report.Skipped++
			continue
		}
		switch e.syncEntry(ctx, entry) {
		case models.QueueStatusSynced:
			report.Synced++
		case models.QueueStatusPending:
			report.Retried++
		case models.QueueStatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	e.scheduleWake(ctx)
	e.refreshGauge(ctx)
	return report, nil
}

// syncEntry sends one entry and returns its resulting status, or "" when it
// was not attempted.
func (e *Engine) syncEntry(ctx context.Context, entry models.QueueEntry) models.QueueStatus {
	if _, busy := e.inFlight.LoadOrStore(entry.LocalID, struct{}{}); busy {
		return ""
	}
	defer e.inFlight.Delete(entry.LocalID)

	log := e.logger.With().Str("local_id", entry.LocalID).Logger()

	current, err := e.store.SetStatus(ctx, entry.LocalID, queue.Update{Status: models.QueueStatusSyncing})
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			log.Warn().Msg("Entry vanished before sync")
		} else {
			log.Error().Err(err).Msg("Failed to mark entry syncing")
		}
		return ""
	}

	req := remote.NewCreateBookingRequest(current.Draft, &remote.OfflineMeta{
		LocalID:   current.LocalID,
		CreatedAt: current.CreatedAt,
	})
	res, sendErr := e.sender.CreateBooking(ctx, req)

	// The outcome is recorded even if ctx was cancelled mid-send.
	writeCtx := context.WithoutCancel(ctx)
	if sendErr == nil {
		return e.markSynced(writeCtx, current, res, log)
	}
	return e.retryOrFail(writeCtx, current, sendErr, log)
}

func (e *Engine) markSynced(ctx context.Context, entry *models.QueueEntry, res *remote.CreateBookingResult, log zerolog.Logger) models.QueueStatus {
	updated, err := e.store.SetStatus(ctx, entry.LocalID, queue.Update{Status: models.QueueStatusSynced, ServerID: res.ServerID})
	if err != nil {
		// Stays syncing until stale recovery picks it up.
		log.Error().Err(err).Str("server_id", res.ServerID).Msg("Booking sent but status not recorded")
		return ""
	}
	log.Info().Str("server_id", res.ServerID).Int("attempt", updated.AttemptCount).Msg("Booking synced")
	metrics.IncSyncAttempt("synced")
	e.publish(events.EventBookingSynced, updated, "")
	return models.QueueStatusSynced
}

func (e *Engine) retryOrFail(ctx context.Context, entry *models.QueueEntry, cause error, log zerolog.Logger) models.QueueStatus {
	failures := entry.Failures + 1

	if e.cfg.Retry.Exhausted(failures) {
		updated, err := e.store.SetStatus(ctx, entry.LocalID, queue.Update{Status: models.QueueStatusFailed, Error: cause.Error()})
		if err != nil {
			log.Error().Err(err).Msg("Failed to mark entry failed")
			return ""
		}
		log.Error().Err(cause).Int("failures", updated.Failures).Msg("Booking failed permanently")
		metrics.IncSyncAttempt("failed")
		e.publish(events.EventBookingFailed, updated, cause.Error())
		return models.QueueStatusFailed
	}

	next := e.now().Add(e.cfg.Retry.NextDelay(failures))
	updated, err := e.store.SetStatus(ctx, entry.LocalID, queue.Update{
		Status:        models.QueueStatusPending,
		NextAttemptAt: &next,
		Error:         cause.Error(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to reschedule entry")
		return ""
	}
	log.Warn().Err(cause).Int("failures", updated.Failures).Time("next_attempt", next).Msg("Booking sync failed, retry scheduled")
	metrics.IncSyncAttempt("retry")
	e.publish(events.EventBookingRetryScheduled, updated, cause.Error())
	return models.QueueStatusPending
}

// scheduleWake points the single wake-up timer at the earliest future
// NextAttemptAt. Nothing is armed while offline; the online transition drains.
func (e *Engine) scheduleWake(ctx context.Context) {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Cannot compute next wake-up")
		return
	}

	var earliest time.Time
	for _, p := range pending {
		if p.NextAttemptAt == nil {
			continue
		}
		if earliest.IsZero() || p.NextAttemptAt.Before(earliest) {
			earliest = *p.NextAttemptAt
		}
	}

	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.wakeTimer != nil {
		e.wakeTimer.Stop()
		e.wakeTimer = nil
	}
	e.wakeAt = time.Time{}
	if earliest.IsZero() || !e.net.Online() {
		return
	}

	delay := earliest.Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	e.wakeAt = earliest
	e.wakeTimer = time.AfterFunc(delay, e.TriggerSync)
}

// NextWake returns the time the wake-up timer is set for.
func (e *Engine) NextWake() (time.Time, bool) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.wakeAt, !e.wakeAt.IsZero()
}

// RecoverStale returns entries left syncing by an earlier process to pending.
func (e *Engine) RecoverStale(ctx context.Context) (int, error) {
	syncing, err := e.store.List(ctx, models.QueueStatusSyncing)
	if err != nil {
		return 0, err
	}

	cutoff := e.now().Add(-e.cfg.StaleSyncing)
	recovered := 0
	for _, entry := range syncing {
		if _, busy := e.inFlight.Load(entry.LocalID); busy {
			continue
		}
		if entry.LastAttemptAt != nil && entry.LastAttemptAt.After(cutoff) {
			continue
		}
		log := e.logger.With().Str("local_id", entry.LocalID).Logger()
		if e.retryOrFail(ctx, &entry, errors.New(interruptedError), log) != "" {
			recovered++
		}
	}
	return recovered, nil
}

func (e *Engine) cleanup(ctx context.Context) {
	n, err := e.store.Cleanup(ctx, e.now())
	if err != nil {
		e.logger.Error().Err(err).Msg("Queue cleanup failed")
		return
	}
	if n > 0 {
		e.logger.Info().Int("removed", n).Msg("Queue cleanup")
	}
	e.refreshGauge(ctx)
}

func (e *Engine) refreshGauge(ctx context.Context) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return
	}
	counts := make(map[string]int, len(stats))
	for s, n := range stats {
		counts[string(s)] = n
	}
	metrics.SetQueueEntries(counts, []string{
		string(models.QueueStatusPending),
		string(models.QueueStatusSyncing),
		string(models.QueueStatusSynced),
		string(models.QueueStatusFailed),
	})
}

func (e *Engine) publish(eventType string, entry *models.QueueEntry, errMsg string) {
	payload := events.BookingEventPayload{
		LocalID:     entry.LocalID,
		ServiceName: entry.Draft.ServiceName,
		Phone:       logging.MaskPhone(entry.Draft.Customer.Phone),
		Date:        entry.Draft.Schedule.Date,
		TimeSlot:    entry.Draft.Schedule.TimeSlot,
		Status:      string(entry.Status),
		Attempt:     entry.Failures,
		NextAttempt: entry.NextAttemptAt,
		Error:       errMsg,
	}
	if entry.ServerID != nil {
		payload.ServerID = *entry.ServerID
	}
	if err := e.bus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("Publish failed")
	}
}
