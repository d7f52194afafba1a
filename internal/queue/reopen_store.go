package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// ErrStoreUnavailable is returned while the durable store cannot be opened.
var ErrStoreUnavailable = errors.New("durable queue store is unavailable")

// Opener opens the durable store and the handle that closes it.
type Opener func(ctx context.Context) (DurableStore, io.Closer, error)

// ReopenStore stands in for a durable store that failed to open at startup.
// Every call retries the open at most once per interval; once it succeeds
// calls go straight to the opened store.
type ReopenStore struct {
	open     Opener
	interval time.Duration
	logger   *zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	store   DurableStore
	closer  io.Closer
	lastTry time.Time
}

var _ DurableStore = (*ReopenStore)(nil)

// NewReopenStore assumes the caller's own open attempt has just failed, so
// the first retry waits one interval.
func NewReopenStore(open Opener, interval time.Duration, logger *zerolog.Logger) *ReopenStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "queue_reopen").Logger()
	return &ReopenStore{open: open, interval: interval, logger: &l, now: time.Now, lastTry: time.Now()}
}

func (r *ReopenStore) current(ctx context.Context) (DurableStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store, nil
	}
	if r.now().Sub(r.lastTry) < r.interval {
		return nil, ErrStoreUnavailable
	}
	r.lastTry = r.now()

	store, closer, err := r.open(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Durable queue store still unavailable")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	r.store, r.closer = store, closer
	r.logger.Info().Msg("Durable queue store opened")
	return store, nil
}

// Opened reports whether the durable store has been opened.
func (r *ReopenStore) Opened() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store != nil
}

func (r *ReopenStore) Save(ctx context.Context, draft models.BookingDraft) (string, error) {
	s, err := r.current(ctx)
	if err != nil {
		return "", err
	}
	return s.Save(ctx, draft)
}

func (r *ReopenStore) Import(ctx context.Context, e models.QueueEntry) error {
	s, err := r.current(ctx)
	if err != nil {
		return err
	}
	return s.Import(ctx, e)
}

func (r *ReopenStore) Get(ctx context.Context, localID string) (*models.QueueEntry, error) {
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, localID)
}

func (r *ReopenStore) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	return r.List(ctx, models.QueueStatusPending)
}

func (r *ReopenStore) List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, statuses...)
}

func (r *ReopenStore) SetStatus(ctx context.Context, localID string, u Update) (*models.QueueEntry, error) {
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.SetStatus(ctx, localID, u)
}

func (r *ReopenStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	s, err := r.current(ctx)
	if err != nil {
		return 0, err
	}
	return s.Cleanup(ctx, now)
}

func (r *ReopenStore) Stats(ctx context.Context) (map[models.QueueStatus]int, error) {
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.Stats(ctx)
}

// Close closes the opened store, if any.
func (r *ReopenStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.store, r.closer = nil, nil
	return err
}
