package db

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/logging"
)

func newMockMigrator(t *testing.T, files fstest.MapFS) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = conn.Close()
	})
	return &Migrator{db: sqlx.NewDb(conn, "postgres"), files: files, logger: logging.NewNop()}, mock
}

func TestEmbeddedMigrations(t *testing.T) {
	m := NewMigrator(nil)
	names, err := m.migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_initial_schema", migrationName(names[0]))
}

func TestMigrator_UpAppliesPending(t *testing.T) {
	files := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
	}
	m, mock := newMockMigrator(t, files)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "applied_at", "checksum"}).
			AddRow(1, "001_first", time.Now(), checksum([]byte("CREATE TABLE a (id INT);"))))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("002_second", checksum([]byte("CREATE TABLE b (id INT);"))).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	ran, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"002_second"}, ran)
}

func TestMigrator_Status(t *testing.T) {
	files := fstest.MapFS{
		"migrations/001_first.sql":  {Data: []byte("changed")},
		"migrations/002_second.sql": {Data: []byte("pending")},
	}
	m, mock := newMockMigrator(t, files)
	applied := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "applied_at", "checksum"}).
			AddRow(1, "001_first", applied, checksum([]byte("original"))))

	states, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.True(t, states[0].Applied)
	assert.True(t, states[0].Modified)
	assert.Equal(t, applied, *states[0].AppliedAt)
	assert.False(t, states[1].Applied)
	assert.Nil(t, states[1].AppliedAt)
}
