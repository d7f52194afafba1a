package repository

import (
	"context"
	"sync"
	"time"

	"bookingsync/internal/models"
)

// MemoryStateRepository keeps sessions and codes in process memory.
type MemoryStateRepository struct {
	states     sync.Map
	codes      sync.Map
	rateLimits sync.Map
	rateMu     sync.Mutex
	ttl        time.Duration
	now        func() time.Time
}

type expiring[T any] struct {
	value     T
	expiresAt time.Time
}

func (e expiring[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryStateRepository) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemoryStateRepository) GetState(_ context.Context, sessionID string) (*models.WizardState, error) {
	val, ok := r.states.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(expiring[models.WizardState])
	if entry.expired(r.now()) {
		r.states.Delete(sessionID)
		return nil, nil
	}
	state := entry.value
	return &state, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.WizardState) error {
	r.states.Store(state.SessionID, expiring[models.WizardState]{value: *state, expiresAt: r.deadline(r.ttl)})
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, sessionID string) error {
	r.states.Delete(sessionID)
	return nil
}

func (r *MemoryStateRepository) SetCode(_ context.Context, phone, code string, ttl time.Duration) error {
	r.codes.Store(phone, expiring[string]{value: code, expiresAt: r.deadline(ttl)})
	return nil
}

func (r *MemoryStateRepository) GetCode(_ context.Context, phone string) (string, error) {
	val, ok := r.codes.Load(phone)
	if !ok {
		return "", nil
	}
	entry := val.(expiring[string])
	if entry.expired(r.now()) {
		r.codes.Delete(phone)
		return "", nil
	}
	return entry.value, nil
}

func (r *MemoryStateRepository) DeleteCode(_ context.Context, phone string) error {
	r.codes.Delete(phone)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}

func (r *MemoryStateRepository) ResetRateLimit(_ context.Context, key string) error {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()
	r.rateLimits.Delete(key)
	return nil
}
