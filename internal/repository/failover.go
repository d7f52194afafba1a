package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// Store is what the failover pair needs from each side.
type Store interface {
	GetState(ctx context.Context, sessionID string) (*models.WizardState, error)
	SetState(ctx context.Context, state *models.WizardState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	ResetRateLimit(ctx context.Context, key string) error
	SetCode(ctx context.Context, phone, code string, ttl time.Duration) error
	GetCode(ctx context.Context, phone string) (string, error)
	DeleteCode(ctx context.Context, phone string) error
}

// FailoverStateRepository uses the primary (Redis) until it errors, then
// memory, retrying the primary once a minute.
type FailoverStateRepository struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback Store, logger *zerolog.Logger) *FailoverStateRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > time.Minute {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

// call runs op on the primary when it is usable, else on the fallback.
func call[T any](r *FailoverStateRepository, op func(Store) (T, error)) (T, error) {
	if r.usePrimary() {
		v, err := op(r.primary)
		if err == nil {
			r.isDown.Store(false)
			return v, nil
		}
		r.markDown(err)
	}
	return op(r.fallback)
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.WizardState, error) {
	return call(r, func(s Store) (*models.WizardState, error) { return s.GetState(ctx, sessionID) })
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.WizardState) error {
	_, err := call(r, func(s Store) (struct{}, error) { return struct{}{}, s.SetState(ctx, state) })
	return err
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	_, err := call(r, func(s Store) (struct{}, error) { return struct{}{}, s.ClearState(ctx, sessionID) })
	return err
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return call(r, func(s Store) (bool, error) { return s.CheckRateLimit(ctx, key, limit, window) })
}

func (r *FailoverStateRepository) ResetRateLimit(ctx context.Context, key string) error {
	_, err := call(r, func(s Store) (struct{}, error) { return struct{}{}, s.ResetRateLimit(ctx, key) })
	return err
}

func (r *FailoverStateRepository) SetCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	_, err := call(r, func(s Store) (struct{}, error) { return struct{}{}, s.SetCode(ctx, phone, code, ttl) })
	return err
}

func (r *FailoverStateRepository) GetCode(ctx context.Context, phone string) (string, error) {
	return call(r, func(s Store) (string, error) { return s.GetCode(ctx, phone) })
}

func (r *FailoverStateRepository) DeleteCode(ctx context.Context, phone string) error {
	_, err := call(r, func(s Store) (struct{}, error) { return struct{}{}, s.DeleteCode(ctx, phone) })
	return err
}
