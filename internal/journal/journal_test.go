package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const versionQuery = `SELECT COALESCE\(MAX\(version\), 0\)`

func newMockJournal(t *testing.T) (*Journal, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "postgres")
	return New(db), db, mock
}

func TestAppendWritesNextVersion(t *testing.T) {
	ctx := context.Background()
	j, db, mock := newMockJournal(t)
	entryID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(versionQuery).WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectPrepare("INSERT INTO library_events").ExpectQuery().
		WithArgs(entryID, EventInstalled, sqlmock.AnyArg(), sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	event, err := NewEvent(EventInstalled, map[string]bool{"installed": true})
	require.NoError(t, err)

	require.NoError(t, j.Append(ctx, tx, entryID, 1, []Event{event}))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	j, db, mock := newMockJournal(t)
	entryID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(versionQuery).WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	event, err := NewEvent(EventUninstalled, map[string]bool{"installed": false})
	require.NoError(t, err)

	err = j.Append(ctx, tx, entryID, 1, []Event{event})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTranslatesUniqueViolation(t *testing.T) {
	ctx := context.Background()
	j, db, mock := newMockJournal(t)
	entryID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(versionQuery).WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(0))
	mock.ExpectPrepare("INSERT INTO library_events").ExpectQuery().
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	event, err := NewEvent(EventAcquired, map[string]string{"game_id": uuid.NewString()})
	require.NoError(t, err)

	err = j.Append(ctx, tx, entryID, 0, []Event{event})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	require.NoError(t, tx.Rollback())
}

func TestAppendRejectsNegativeVersion(t *testing.T) {
	j, db, mock := newMockJournal(t)
	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	err = j.Append(context.Background(), tx, uuid.New(), -1, nil)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestLoadReturnsEventsInVersionOrder(t *testing.T) {
	j, _, mock := newMockJournal(t)
	entryID := uuid.New()
	at := time.Date(2025, 6, 15, 11, 56, 25, 0, time.UTC)

	mock.ExpectQuery("FROM library_events").WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entry_id", "event_type", "event_data", "metadata", "version", "created_at"}).
			AddRow(1, entryID.String(), EventAcquired, []byte(`{"price":29.99}`), nil, 1, at).
			AddRow(2, entryID.String(), EventInstalled, []byte(`{"installed":true}`), []byte(`{"user_id":"u"}`), 2, at.Add(time.Hour)))

	events, err := j.Load(context.Background(), entryID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAcquired, events[0].EventType)
	assert.Equal(t, 1, events[0].Version)
	assert.JSONEq(t, `{"price":29.99}`, string(events[0].EventData))
	assert.Equal(t, EventInstalled, events[1].EventType)
	assert.Equal(t, "u", events[1].Metadata["user_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}
