package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := resolvedRecord(t)

	mock.ExpectExec(`INSERT INTO records .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("jane|doe|austin|TX", pgxmock.AnyArg(), "resolved", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveRecord(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err := s.SaveRecord(context.Background(), resolvedRecord(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord_Invalid(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := resolvedRecord(t)
	rec.Address = ""

	err := s.SaveRecord(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := resolvedRecord(t)
	rec.ID = "rec-1"
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM records WHERE key = \$1`).
		WithArgs("jane|doe|austin|TX").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.GetRecord(context.Background(), "jane|doe|austin|TX")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, model.LocationID("29374"), got.LocationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM records WHERE key = \$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	data, err := json.Marshal(resolvedRecord(t))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM records WHERE status = \$1 ORDER BY created_at, key LIMIT \$2 OFFSET \$3`).
		WithArgs("resolved", 10, 5).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data).AddRow(data))

	got, err := s.ListRecords(context.Background(), RecordFilter{Status: model.StatusResolved, Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords_NoFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM records ORDER BY created_at, key LIMIT \$1 OFFSET \$2`).
		WithArgs(1000, 0).
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	got, err := s.ListRecords(context.Background(), RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM records GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("resolved", int64(4)).
			AddRow("rejected", int64(1)))

	got, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.Status]int{model.StatusResolved: 4, model.StatusRejected: 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
