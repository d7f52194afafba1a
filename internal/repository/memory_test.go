package repository

import (
	"context"
	"testing"
	"time"

	"bookingsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		state := &models.WizardState{SessionID: "s-1", Step: models.StepLandmark}
		require.NoError(t, repo.SetState(ctx, state))

		got, err := repo.GetState(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, state, got)

		got.Step = models.StepSchedule
		again, _ := repo.GetState(ctx, "s-1")
		assert.Equal(t, models.StepLandmark, again.Step, "returned state is a copy")
	})

	t.Run("StateExpires", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, &models.WizardState{SessionID: "s-2"}))
		now = now.Add(2 * time.Hour)
		got, err := repo.GetState(ctx, "s-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, &models.WizardState{SessionID: "s-3"}))
		require.NoError(t, repo.ClearState(ctx, "s-3"))
		got, _ := repo.GetState(ctx, "s-3")
		assert.Nil(t, got)
	})

	t.Run("Codes", func(t *testing.T) {
		require.NoError(t, repo.SetCode(ctx, "9876543210", "111111", time.Minute))
		require.NoError(t, repo.SetCode(ctx, "9876543210", "222222", time.Minute))
		code, err := repo.GetCode(ctx, "9876543210")
		require.NoError(t, err)
		assert.Equal(t, "222222", code)

		now = now.Add(2 * time.Minute)
		code, err = repo.GetCode(ctx, "9876543210")
		require.NoError(t, err)
		assert.Empty(t, code)

		require.NoError(t, repo.SetCode(ctx, "9876543210", "333333", time.Minute))
		require.NoError(t, repo.DeleteCode(ctx, "9876543210"))
		code, _ = repo.GetCode(ctx, "9876543210")
		assert.Empty(t, code)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "otp:9876543210"
		allowed, _ := repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.False(t, allowed)

		now = now.Add(time.Minute + time.Second)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.True(t, allowed)
	})

	t.Run("ResetRateLimit", func(t *testing.T) {
		key := "otp_verify:9876543210"
		repo.CheckRateLimit(ctx, key, 1, time.Minute)
		allowed, _ := repo.CheckRateLimit(ctx, key, 1, time.Minute)
		assert.False(t, allowed)

		require.NoError(t, repo.ResetRateLimit(ctx, key))
		allowed, _ = repo.CheckRateLimit(ctx, key, 1, time.Minute)
		assert.True(t, allowed)
	})
}
