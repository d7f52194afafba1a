package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookingsync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("InsertQueueEntry_Error", func(t *testing.T) {
		assert.Error(t, db.InsertQueueEntry(ctx, newEntry("x")))
	})

	t.Run("GetQueueEntry_Error", func(t *testing.T) {
		_, err := db.GetQueueEntry(ctx, "x")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("ListQueueEntries_Error", func(t *testing.T) {
		_, err := db.ListQueueEntries(ctx)
		assert.Error(t, err)
	})

	t.Run("UpdateQueueEntry_Error", func(t *testing.T) {
		_, err := db.UpdateQueueEntry(ctx, "x", func(*models.QueueEntry) error { return nil })
		assert.Error(t, err)
	})

	t.Run("DeleteQueueEntriesBefore_Error", func(t *testing.T) {
		_, err := db.DeleteQueueEntriesBefore(ctx, models.QueueStatusSynced, time.Now())
		assert.Error(t, err)
	})

	t.Run("CountQueueEntries_Error", func(t *testing.T) {
		_, err := db.CountQueueEntries(ctx)
		assert.Error(t, err)
	})
}

func TestWrap_CreateTablesFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS booking_queue").WillReturnError(errors.New("disk full"))

	_, err = Wrap(sqlDB, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueueEntry_CommitFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := zerolog.Nop()
	db := &DB{DB: sqlDB, logger: &logger}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "local_id", "status", "payload", "created_at", "attempt_count", "failures",
		"last_attempt_at", "next_attempt_at", "server_id", "last_error",
	}).AddRow(1, "offline_1", "pending", `{"service_id":"svc-1"}`, now, 0, 0, nil, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM booking_queue WHERE local_id = ?").
		WithArgs("offline_1").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE booking_queue SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("locked"))

	_, err = db.UpdateQueueEntry(context.Background(), "offline_1", func(e *models.QueueEntry) error {
		e.Status = models.QueueStatusSyncing
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}
