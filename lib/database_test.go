package lib

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return WrapDB(db), mock
}

func TestDatabaseConfig(t *testing.T) {
	t.Run("dsn without password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5432, User: "ci", Name: "timings"}

		require.NoError(t, cfg.Validate())
		require.Equal(t, "host='db' port=5432 user='ci' dbname='timings'", cfg.DSN())
	})

	t.Run("dsn with password and sslmode", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5433, User: "ci", Name: "timings", Password: "s3cret", SSLMode: "disable"}

		require.Equal(t, "host='db' port=5433 user='ci' dbname='timings' sslmode='disable' password='s3cret'", cfg.DSN())
	})

	t.Run("quotes spaces, quotes and backslashes", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5432, User: "ci", Name: "timings", Password: `it's a \secret`}

		require.Equal(t, `host='db' port=5432 user='ci' dbname='timings' password='it\'s a \\secret'`, cfg.DSN())

		_, err := pq.NewConnector(cfg.DSN())
		require.NoError(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		require.Error(t, DatabaseConfig{Port: 5432, User: "ci", Name: "timings"}.Validate())
		require.Error(t, DatabaseConfig{Host: "db", User: "ci", Name: "timings"}.Validate())
		require.Error(t, DatabaseConfig{Host: "db", Port: 5432, Name: "timings"}.Validate())
		require.Error(t, DatabaseConfig{Host: "db", Port: 5432, User: "ci"}.Validate())

		_, err := NewDatabase(DatabaseConfig{})
		require.Contains(t, err.Error(), "POSTGRES_HOST")
	})
}

func TestDatabase_GetTimings(t *testing.T) {
	d, mock := newMockDatabase(t)
	rows := sqlmock.NewRows([]string{"path", "duration"}).
		AddRow("a.test", 1.5).
		AddRow("b.test", nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT path, duration FROM test_timings WHERE suite = $1")).
		WithArgs("e2e").
		WillReturnRows(rows)

	items, err := d.GetTimings("e2e")

	require.NoError(t, err)
	require.Equal(t, []WorkItem{{ID: "a.test", Duration: 1.5}, {ID: "b.test", Duration: 0}}, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_GetTimingsQueryError(t *testing.T) {
	d, mock := newMockDatabase(t)
	mock.ExpectQuery("SELECT path, duration").WillReturnError(errors.New("connection refused"))

	_, err := d.GetTimings("e2e")

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed in querying timings")
}

func TestDatabase_GetTiming(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		d, mock := newMockDatabase(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT duration FROM test_timings")).
			WithArgs("e2e", "a.test").
			WillReturnRows(sqlmock.NewRows([]string{"duration"}).AddRow(4.0))

		duration, err := d.GetTiming("e2e", "a.test")

		require.NoError(t, err)
		require.Equal(t, 4.0, duration)
	})

	t.Run("missing", func(t *testing.T) {
		d, mock := newMockDatabase(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT duration FROM test_timings")).
			WithArgs("e2e", "a.test").
			WillReturnError(sql.ErrNoRows)

		_, err := d.GetTiming("e2e", "a.test")

		require.Equal(t, NoRowFound, err)
	})
}

func TestDatabase_UpsertAndDelete(t *testing.T) {
	d, mock := newMockDatabase(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO test_timings")).
		WithArgs("e2e", "a.test", 2.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM test_timings")).
		WithArgs("e2e", "a.test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM test_timings")).
		WithArgs("e2e", "gone.test").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, d.UpsertTiming("e2e", WorkItem{ID: "a.test", Duration: 2.5}))
	require.NoError(t, d.DeleteTiming("e2e", "a.test"))
	require.Equal(t, NoRowFound, d.DeleteTiming("e2e", "gone.test"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_GetPaths(t *testing.T) {
	d, mock := newMockDatabase(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT path FROM test_timings")).
		WithArgs("e2e").
		WillReturnRows(sqlmock.NewRows([]string{"path"}).AddRow("a.test").AddRow("b.test"))

	paths, err := d.GetPaths("e2e")

	require.NoError(t, err)
	require.Equal(t, []string{"a.test", "b.test"}, paths)
}

func TestDatabase_EnsureSchema(t *testing.T) {
	d, mock := newMockDatabase(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS test_timings")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, d.EnsureSchema())
	require.NoError(t, mock.ExpectationsWereMet())
}
