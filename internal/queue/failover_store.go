package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// Importer accepts entries created elsewhere, keeping their local ids.
type Importer interface {
	Import(ctx context.Context, e models.QueueEntry) error
}

// DurableStore is a Store that can take over entries from the fallback.
type DurableStore interface {
	Store
	Importer
}

// FailoverStore writes to the durable primary and falls back to memory when
// the primary fails, so a confirmed booking is never dropped. Entries held in
// memory are moved to the primary by Recover once it works again.
type FailoverStore struct {
	primary   DurableStore
	fallback  *MemoryStore
	logger    *zerolog.Logger
	now       func() time.Time
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

var _ Store = (*FailoverStore)(nil)

func NewFailoverStore(primary DurableStore, fallback *MemoryStore, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "queue_failover").Logger()
	return &FailoverStore{primary: primary, fallback: fallback, logger: &l, now: time.Now}
}

func (f *FailoverStore) markDown(err error) {
	f.logger.Error().Err(err).Msg("Primary queue store failed, falling back to memory")
	f.isDown.Store(true)
	f.mu.Lock()
	f.lastCheck = f.now()
	f.mu.Unlock()
}

// Degrade routes writes to memory as if the primary had just failed with err.
// Used when the primary could not be opened at startup.
func (f *FailoverStore) Degrade(err error) {
	f.markDown(err)
}

// usePrimary is false while the primary is marked down, except once a
// minute when it is retried.
func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.now().Sub(f.lastCheck) > time.Minute {
		f.lastCheck = f.now()
		return true
	}
	return false
}

// Degraded reports whether writes currently go to memory.
func (f *FailoverStore) Degraded() bool {
	return f.isDown.Load()
}

func (f *FailoverStore) Save(ctx context.Context, draft models.BookingDraft) (string, error) {
	if err := models.ValidateDraft(&draft); err != nil {
		return "", err
	}
	if f.usePrimary() {
		id, err := f.primary.Save(ctx, draft)
		if err == nil {
			f.isDown.Store(false)
			return id, nil
		}
		f.markDown(err)
	}
	id, err := f.fallback.Save(ctx, draft)
	if err == nil {
		f.logger.Warn().Str("local_id", id).Msg("Booking held in memory queue")
	}
	return id, err
}

func (f *FailoverStore) Get(ctx context.Context, localID string) (*models.QueueEntry, error) {
	if f.fallback.Has(localID) {
		return f.fallback.Get(ctx, localID)
	}
	return f.primary.Get(ctx, localID)
}

func (f *FailoverStore) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	return f.List(ctx, models.QueueStatusPending)
}

// List merges both stores. A failing primary is logged and skipped.
func (f *FailoverStore) List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	mem, err := f.fallback.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	durable, err := f.primary.List(ctx, statuses...)
	if err != nil {
		if len(mem) == 0 && !f.Degraded() {
			return nil, err
		}
		f.logger.Warn().Err(err).Msg("Primary queue list failed, returning memory entries only")
	}
	out := append(durable, mem...)
	sortEntries(out)
	return out, nil
}

func (f *FailoverStore) SetStatus(ctx context.Context, localID string, u Update) (*models.QueueEntry, error) {
	if f.fallback.Has(localID) {
		return f.fallback.SetStatus(ctx, localID, u)
	}
	return f.primary.SetStatus(ctx, localID, u)
}

func (f *FailoverStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	n, err := f.fallback.Cleanup(ctx, now)
	if err != nil {
		return n, err
	}
	m, err := f.primary.Cleanup(ctx, now)
	if err != nil && f.Degraded() {
		f.logger.Warn().Err(err).Msg("Primary queue cleanup skipped")
		return n, nil
	}
	return n + m, err
}

func (f *FailoverStore) Stats(ctx context.Context) (map[models.QueueStatus]int, error) {
	counts, err := f.primary.Stats(ctx)
	if err != nil {
		if !f.Degraded() {
			return nil, err
		}
		counts = nil
	}
	if counts == nil {
		counts = make(map[models.QueueStatus]int)
	}
	mem, _ := f.fallback.Stats(ctx)
	for s, n := range mem {
		counts[s] += n
	}
	return counts, nil
}

// Recover moves pending memory entries into the primary. Entries that fail to
// move stay in memory for the next call.
func (f *FailoverStore) Recover(ctx context.Context) (int, error) {
	pending, err := f.fallback.ListPending(ctx)
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	moved := 0
	var errs []error
	for _, e := range pending {
		if err := f.primary.Import(ctx, e); err != nil {
			errs = append(errs, err)
			continue
		}
		f.fallback.Remove(e.LocalID)
		moved++
	}
	if moved > 0 {
		f.logger.Info().Int("moved", moved).Msg("Memory queue entries moved to durable store")
	}
	if len(errs) == 0 {
		f.isDown.Store(false)
	}
	return moved, errors.Join(errs...)
}
