package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	calls []execCall
	err   error
	tag   pgconn.CommandTag
}

type execCall struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, execCall{sql: sql, args: args})
	return r.tag, r.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	err := logger.Record(context.Background(), AuditLog{Action: "schedule.generate", Entity: "schedule", EntityID: "7", Meta: map[string]any{"unfilled": 2}, At: at})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.Equal(t, "schedule.generate", db.calls[0].args[1])
	assert.JSONEq(t, `{"unfilled":2}`, string(db.calls[0].args[4].([]byte)))
	assert.Equal(t, &at, db.calls[0].args[5])

	err = logger.Record(context.Background(), AuditLog{Action: "x"})
	require.Error(t, err)
	assert.Len(t, db.calls, 1)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}

func TestIdempotencyStoreMapsUniqueViolation(t *testing.T) {
	db := &recordingExecer{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(db)

	err := store.CheckAndInsert(context.Background(), "req-1", "schedule:generate")
	assert.True(t, errors.Is(err, ErrIdempotencyConflict))
	assert.Equal(t, "schedule:generate:req-1", db.calls[0].args[0])

	db.err = errors.New("down")
	err = store.CheckAndInsert(context.Background(), "req-2", "schedule:generate")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIdempotencyConflict))

	require.Error(t, store.CheckAndInsert(context.Background(), "", "schedule:generate"))
	require.Error(t, store.CheckAndInsert(context.Background(), "req-3", ""))
}

func TestIdempotencyStoreCleanupReportsRows(t *testing.T) {
	db := &recordingExecer{tag: pgconn.NewCommandTag("DELETE 4")}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) }

	n, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), db.calls[0].args[0])
}

func TestNewPageClampsWindow(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageSize, Offset: 0}, NewPage(0, -5))
	assert.Equal(t, Page{Limit: MaxPageSize, Offset: 10}, NewPage(10_000, 10))
	assert.Equal(t, Page{Limit: 7, Offset: 3}, NewPage(7, 3))
}
