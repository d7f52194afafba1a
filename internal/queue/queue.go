// Package queue persists confirmed bookings that could not be sent yet.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for an unknown local id.
	ErrNotFound = errors.New("queue entry not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid queue status transition")
)

// Store is the offline queue. The wizard creates entries through Save; after
// that only the sync engine changes them.
type Store interface {
	Save(ctx context.Context, draft models.BookingDraft) (string, error)
	Get(ctx context.Context, localID string) (*models.QueueEntry, error)
	ListPending(ctx context.Context) ([]models.QueueEntry, error)
	// List returns entries in any of statuses, or every entry when none are given.
	List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error)
	SetStatus(ctx context.Context, localID string, u Update) (*models.QueueEntry, error)
	// Cleanup removes synced entries created before now minus the retention
	// window and returns how many were removed.
	Cleanup(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context) (map[models.QueueStatus]int, error)
}

// Update describes one status change.
type Update struct {
	Status models.QueueStatus
	// ServerID is stored when non-empty.
	ServerID string
	// NextAttemptAt is kept only for pending entries.
	NextAttemptAt *time.Time
	// Error is recorded as the last error when non-empty.
	Error string
}

type options struct {
	now       func() time.Time
	retention time.Duration
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRetention sets how long synced entries are kept.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, retention: models.DefaultRetention}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewLocalID returns a client-side id that sorts by creation time.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("offline_%d_%s", now.UnixMilli(), uuid.NewString())
}

// apply moves e to u.Status. Every call counts as an attempt; leaving
// syncing for anything but synced counts as a failed delivery.
func apply(e *models.QueueEntry, u Update, now time.Time) error {
	if !e.Status.CanTransition(u.Status) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, e.Status, u.Status, e.LocalID)
	}

	if e.Status == models.QueueStatusSyncing && u.Status != models.QueueStatusSynced {
		e.Failures++
	}

	e.Status = u.Status
	e.AttemptCount++
	at := now
	e.LastAttemptAt = &at

	if u.ServerID != "" {
		id := u.ServerID
		e.ServerID = &id
	}
	if u.Error != "" {
		msg := u.Error
		e.LastError = &msg
	}
	if u.Status == models.QueueStatusSynced {
		e.LastError = nil
	}

	e.NextAttemptAt = nil
	if u.Status == models.QueueStatusPending && u.NextAttemptAt != nil {
		next := *u.NextAttemptAt
		e.NextAttemptAt = &next
	}
	return nil
}

func newEntry(draft models.BookingDraft, now time.Time) *models.QueueEntry {
	return &models.QueueEntry{
		LocalID:   NewLocalID(now),
		Status:    models.QueueStatusPending,
		Draft:     draft,
		CreatedAt: now,
	}
}
