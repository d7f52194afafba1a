package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync/internal/database"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

const maxIDCollisions = 3

// SQLStore keeps the queue in the SQLite database.
type SQLStore struct {
	db     *database.DB
	opts   options
	logger *zerolog.Logger
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *database.DB, logger *zerolog.Logger, opts ...Option) *SQLStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "queue").Logger()
	return &SQLStore{db: db, opts: buildOptions(opts), logger: &l}
}

func (s *SQLStore) Save(ctx context.Context, draft models.BookingDraft) (string, error) {
	if err := models.ValidateDraft(&draft); err != nil {
		return "", err
	}

	var err error
	for i := 0; i < maxIDCollisions; i++ {
		e := newEntry(draft, s.opts.now())
		err = s.db.InsertQueueEntry(ctx, e)
		if err == nil {
			s.logger.Info().Str("local_id", e.LocalID).Msg("Booking queued")
			return e.LocalID, nil
		}
		if !errors.Is(err, database.ErrDuplicateLocalID) {
			return "", err
		}
	}
	return "", err
}

// Import stores an existing entry as is, keeping its local id.
func (s *SQLStore) Import(ctx context.Context, e models.QueueEntry) error {
	e.ID = 0
	return s.db.InsertQueueEntry(ctx, &e)
}

func (s *SQLStore) Get(ctx context.Context, localID string) (*models.QueueEntry, error) {
	e, err := s.db.GetQueueEntry(ctx, localID)
	return e, mapErr(err)
}

func (s *SQLStore) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	return s.db.ListQueueEntries(ctx, models.QueueStatusPending)
}

func (s *SQLStore) List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	return s.db.ListQueueEntries(ctx, statuses...)
}

func (s *SQLStore) SetStatus(ctx context.Context, localID string, u Update) (*models.QueueEntry, error) {
	now := s.opts.now()
	e, err := s.db.UpdateQueueEntry(ctx, localID, func(e *models.QueueEntry) error {
		return apply(e, u, now)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	s.logger.Debug().
		Str("local_id", localID).
		Str("status", string(e.Status)).
		Int("attempt", e.AttemptCount).
		Msg("Queue status changed")
	return e, nil
}

func (s *SQLStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	n, err := s.db.DeleteQueueEntriesBefore(ctx, models.QueueStatusSynced, now.Add(-s.opts.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("removed", n).Msg("Synced entries cleaned up")
	}
	return int(n), nil
}

func (s *SQLStore) Stats(ctx context.Context) (map[models.QueueStatus]int, error) {
	return s.db.CountQueueEntries(ctx)
}

func mapErr(err error) error {
	if errors.Is(err, database.ErrEntryNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
