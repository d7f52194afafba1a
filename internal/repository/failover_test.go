package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetState(ctx context.Context, sessionID string) (*models.WizardState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WizardState), args.Error(1)
}

func (m *mockRepo) SetState(ctx context.Context, state *models.WizardState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockRepo) ClearState(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) ResetRateLimit(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockRepo) SetCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	args := m.Called(ctx, phone, code, ttl)
	return args.Error(0)
}

func (m *mockRepo) GetCode(ctx context.Context, phone string) (string, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Error(1)
}

func (m *mockRepo) DeleteCode(ctx context.Context, phone string) error {
	args := m.Called(ctx, phone)
	return args.Error(0)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &models.WizardState{SessionID: "s1"}
		primary.On("GetState", ctx, "s1").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s1")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &models.WizardState{SessionID: "s2"}
		primary.On("GetState", ctx, "s2").Return(nil, errors.New("fail")).Once()
		fallback.On("GetState", ctx, "s2").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s2")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		state := &models.WizardState{SessionID: "s3"}
		primary.On("GetState", ctx, "s3").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s3")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetState", ctx, "s33").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetState", ctx, "s33").Return(nil, nil).Once()

		_, err := repo.GetState(ctx, "s33")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.WizardState{SessionID: "s4"}
		primary.On("SetState", ctx, state).Return(errors.New("fail")).Once()
		fallback.On("SetState", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.SetState(ctx, state))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearStateAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now()
		fallback.On("ClearState", ctx, "s5").Return(nil).Once()

		assert.NoError(t, repo.ClearState(ctx, "s5"))
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "otp:1", 3, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "otp:1", 3, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "otp:1", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ResetRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ResetRateLimit", ctx, "otp_verify:1").Return(errors.New("fail")).Once()
		fallback.On("ResetRateLimit", ctx, "otp_verify:1").Return(nil).Once()

		assert.NoError(t, repo.ResetRateLimit(ctx, "otp_verify:1"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CodesPrimary", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("SetCode", ctx, "9876543210", "123456", 5*time.Minute).Return(nil).Once()
		primary.On("GetCode", ctx, "9876543210").Return("123456", nil).Once()
		primary.On("DeleteCode", ctx, "9876543210").Return(nil).Once()

		assert.NoError(t, repo.SetCode(ctx, "9876543210", "123456", 5*time.Minute))
		code, err := repo.GetCode(ctx, "9876543210")
		assert.NoError(t, err)
		assert.Equal(t, "123456", code)
		assert.NoError(t, repo.DeleteCode(ctx, "9876543210"))
		primary.AssertExpectations(t)
	})

	t.Run("CodesFallback", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("GetCode", ctx, "9000000000").Return("", errors.New("fail")).Once()
		fallback.On("GetCode", ctx, "9000000000").Return("", nil).Once()

		code, err := repo.GetCode(ctx, "9000000000")
		assert.NoError(t, err)
		assert.Empty(t, code)
		assert.True(t, repo.isDown.Load())
	})
}
