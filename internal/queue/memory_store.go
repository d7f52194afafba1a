package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookingsync/internal/models"
)

// MemoryStore is a process-local queue. It backs FailoverStore when the
// database is unavailable and is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.QueueEntry
	nextID  int64
	opts    options
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.QueueEntry),
		opts:    buildOptions(opts),
	}
}

func (s *MemoryStore) Save(_ context.Context, draft models.BookingDraft) (string, error) {
	if err := models.ValidateDraft(&draft); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := newEntry(draft, s.opts.now())
	for s.entries[e.LocalID] != nil {
		e.LocalID = NewLocalID(e.CreatedAt)
	}
	s.nextID++
	e.ID = s.nextID
	s.entries[e.LocalID] = e
	return e.LocalID, nil
}

// Import stores an existing entry as is, keeping its local id.
func (s *MemoryStore) Import(_ context.Context, e models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries[e.LocalID] = &e
	return nil
}

// Has reports whether localID is stored here.
func (s *MemoryStore) Has(localID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[localID] != nil
}

// Remove drops an entry regardless of status.
func (s *MemoryStore) Remove(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, localID)
}

func (s *MemoryStore) Get(_ context.Context, localID string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[localID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	return s.List(ctx, models.QueueStatusPending)
}

func (s *MemoryStore) List(_ context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if matches(e.Status, statuses) {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, localID string, u Update) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[localID]
	if !ok {
		return nil, ErrNotFound
	}
	next := *e
	if err := apply(&next, u, s.opts.now()); err != nil {
		return nil, err
	}
	*e = next
	c := next
	return &c, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.opts.retention)
	removed := 0
	for id, e := range s.entries {
		if e.Status == models.QueueStatusSynced && e.CreatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[models.QueueStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.QueueStatus]int)
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func matches(status models.QueueStatus, statuses []models.QueueStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortEntries(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].LocalID < entries[j].LocalID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
