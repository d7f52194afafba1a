package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bookingsync/internal/database"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailoverStore_StartsDegradedAndReopens(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	clock := newFakeClock()

	attempts := 0
	opener := func(context.Context) (DurableStore, io.Closer, error) {
		attempts++
		if attempts == 1 {
			return nil, nil, errors.New("unable to open database file")
		}
		db, err := database.NewDB(":memory:", &logger)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLStore(db, &logger, WithClock(clock.Now)), db, nil
	}

	reopen := NewReopenStore(opener, time.Minute, &logger)
	reopen.now = clock.Now
	reopen.lastTry = clock.Now()
	t.Cleanup(func() { _ = reopen.Close() })

	fallback := NewMemoryStore(WithClock(clock.Now))
	f := NewFailoverStore(reopen, fallback, &logger)
	f.now = clock.Now
	f.Degrade(errors.New("unable to open database file"))

	memID, err := f.Save(ctx, testDraft())
	require.NoError(t, err)
	assert.True(t, fallback.Has(memID))
	assert.Zero(t, attempts, "no reopen before the interval")

	pending, err := f.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	stats, err := f.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.QueueStatusPending])
	_, err = f.Cleanup(ctx, clock.Now())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	moved, err := f.Recover(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, moved)
	assert.Equal(t, 1, attempts)
	assert.True(t, f.Degraded())

	_, err = f.Recover(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, attempts, "retries are spaced by the interval")

	clock.Advance(2 * time.Minute)
	moved, err = f.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, 2, attempts)
	assert.True(t, reopen.Opened())
	assert.False(t, f.Degraded())
	assert.False(t, fallback.Has(memID))

	durableID, err := f.Save(ctx, testDraft())
	require.NoError(t, err)
	assert.False(t, fallback.Has(durableID))

	pending, err = f.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []string{pending[0].LocalID, pending[1].LocalID}
	assert.ElementsMatch(t, []string{memID, durableID}, ids)
}
