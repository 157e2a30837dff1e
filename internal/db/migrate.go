package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is a row of schema_migrations.
type Migration struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
	Checksum  string    `db:"checksum"`
}

// MigrationState describes one embedded migration file.
type MigrationState struct {
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	// Modified is set when the embedded file no longer matches the applied checksum.
	Modified bool `json:"modified"`
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sqlx.DB
	files  fs.FS
	logger *logging.Logger
}

// NewMigrator creates a migrator for db.
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{
		db:     db,
		files:  migrationFiles,
		logger: logging.Default().WithComponent("migrate"),
	}
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			checksum VARCHAR(64) NOT NULL
		)`)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to create migrations table", err)
	}
	return nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]Migration, error) {
	var migrations []Migration
	err := m.db.SelectContext(ctx, &migrations,
		`SELECT id, name, applied_at, checksum FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to read applied migrations", err)
	}

	applied := make(map[string]Migration, len(migrations))
	for _, migration := range migrations {
		applied[migration.Name] = migration
	}
	return applied, nil
}

// migrationNames returns the embedded migration file paths in apply order.
func (m *Migrator) migrationNames() ([]string, error) {
	var files []string
	err := fs.WalkDir(m.files, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".sql") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to read migration files", err)
	}
	slices.Sort(files)
	return files, nil
}

func migrationName(file string) string {
	return strings.TrimSuffix(path.Base(file), ".sql")
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (m *Migrator) execute(ctx context.Context, file string) error {
	content, err := fs.ReadFile(m.files, file)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to read migration "+file, err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("begin migration", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to execute migration "+file, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`,
		migrationName(file), checksum(content)); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to record migration "+file, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to commit migration "+file, err)
	}
	return nil
}

// Up applies every pending migration and returns the names applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.migrationNames()
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, file := range files {
		name := migrationName(file)
		if _, ok := applied[name]; ok {
			m.logger.Debug("Migration already applied", "migration", name)
			continue
		}

		m.logger.Info("Applying migration", "migration", name)
		if err := m.execute(ctx, file); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// Status reports every embedded migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.migrationNames()
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, 0, len(files))
	for _, file := range files {
		state := MigrationState{Name: migrationName(file)}
		if migration, ok := applied[state.Name]; ok {
			state.Applied = true
			at := migration.AppliedAt
			state.AppliedAt = &at
			if content, err := fs.ReadFile(m.files, file); err == nil {
				state.Modified = checksum(content) != migration.Checksum
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// Reset drops every portsweep table and re-applies all migrations.
func (m *Migrator) Reset(ctx context.Context) ([]string, error) {
	m.logger.Warn("Dropping all portsweep tables")

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, sanitizeDBError("begin reset", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"scan_history", "scan_results", "scan_jobs", "schema_migrations"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to drop "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration, "failed to commit reset", err)
	}

	return m.Up(ctx)
}

// ConnectAndMigrate connects to the database and applies pending migrations.
func ConnectAndMigrate(ctx context.Context, config *Config) (*DB, error) {
	db, err := Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	if _, err := NewMigrator(db.DB).Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
