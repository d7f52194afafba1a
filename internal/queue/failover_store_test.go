package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDurable struct {
	mock.Mock
}

func (m *mockDurable) Save(ctx context.Context, draft models.BookingDraft) (string, error) {
	args := m.Called(ctx, draft)
	return args.String(0), args.Error(1)
}

func (m *mockDurable) Import(ctx context.Context, e models.QueueEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockDurable) Get(ctx context.Context, localID string) (*models.QueueEntry, error) {
	args := m.Called(ctx, localID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}

func (m *mockDurable) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	return m.List(ctx, models.QueueStatusPending)
}

func (m *mockDurable) List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QueueEntry), args.Error(1)
}

func (m *mockDurable) SetStatus(ctx context.Context, localID string, u Update) (*models.QueueEntry, error) {
	args := m.Called(ctx, localID, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}

func (m *mockDurable) Cleanup(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *mockDurable) Stats(ctx context.Context) (map[models.QueueStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.QueueStatus]int), args.Error(1)
}

func TestFailoverStore(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	clock := newFakeClock()
	primary := new(mockDurable)
	fallback := NewMemoryStore(WithClock(clock.Now))
	f := NewFailoverStore(primary, fallback, &logger)
	f.now = clock.Now

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Save", ctx, mock.Anything).Return("offline_1", nil).Once()

		id, err := f.Save(ctx, testDraft())
		require.NoError(t, err)
		assert.Equal(t, "offline_1", id)
		assert.False(t, f.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("InvalidDraftNeverFailsOver", func(t *testing.T) {
		d := testDraft()
		d.Schedule.Date = ""
		_, err := f.Save(ctx, d)
		assert.ErrorIs(t, err, models.ErrNotSubmittable)
		assert.False(t, f.Degraded())
	})

	var memID string
	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Save", ctx, mock.Anything).Return("", errors.New("disk I/O error")).Once()

		id, err := f.Save(ctx, testDraft())
		require.NoError(t, err)
		assert.True(t, f.Degraded())
		assert.True(t, fallback.Has(id))
		memID = id
		primary.AssertExpectations(t)
	})

	t.Run("WhileDownPrimaryIsSkipped", func(t *testing.T) {
		id, err := f.Save(ctx, testDraft())
		require.NoError(t, err)
		assert.True(t, fallback.Has(id))
		fallback.Remove(id)
	})

	t.Run("ListMergesBothStores", func(t *testing.T) {
		durable := []models.QueueEntry{{LocalID: "offline_1", Status: models.QueueStatusPending, CreatedAt: clock.Now().Add(-time.Hour)}}
		primary.On("List", ctx, []models.QueueStatus{models.QueueStatusPending}).Return(durable, nil).Once()

		pending, err := f.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "offline_1", pending[0].LocalID)
		assert.Equal(t, memID, pending[1].LocalID)
	})

	t.Run("ListSurvivesPrimaryError", func(t *testing.T) {
		primary.On("List", ctx, []models.QueueStatus{models.QueueStatusPending}).Return(nil, errors.New("locked")).Once()

		pending, err := f.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, memID, pending[0].LocalID)
	})

	t.Run("SetStatusRoutesByOwner", func(t *testing.T) {
		e, err := f.SetStatus(ctx, memID, Update{Status: models.QueueStatusSyncing})
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusSyncing, e.Status)

		primary.On("SetStatus", ctx, "offline_1", Update{Status: models.QueueStatusSyncing}).
			Return(&models.QueueEntry{LocalID: "offline_1", Status: models.QueueStatusSyncing}, nil).Once()
		_, err = f.SetStatus(ctx, "offline_1", Update{Status: models.QueueStatusSyncing})
		require.NoError(t, err)

		_, err = f.SetStatus(ctx, memID, Update{Status: models.QueueStatusPending})
		require.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		primary.On("Save", ctx, mock.Anything).Return("offline_2", nil).Once()

		id, err := f.Save(ctx, testDraft())
		require.NoError(t, err)
		assert.Equal(t, "offline_2", id)
		assert.False(t, f.Degraded())
	})

	t.Run("RecoverMovesMemoryEntries", func(t *testing.T) {
		primary.On("Import", ctx, mock.MatchedBy(func(e models.QueueEntry) bool {
			return e.LocalID == memID && e.Failures == 1
		})).Return(nil).Once()

		moved, err := f.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, moved)
		assert.False(t, fallback.Has(memID))
		primary.AssertExpectations(t)
	})

	t.Run("Stats", func(t *testing.T) {
		_, err := fallback.Save(ctx, testDraft())
		require.NoError(t, err)
		primary.On("Stats", ctx).Return(map[models.QueueStatus]int{models.QueueStatusPending: 2}, nil).Once()

		stats, err := f.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats[models.QueueStatusPending])
	})
}
