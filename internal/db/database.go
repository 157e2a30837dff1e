// Package db provides PostgreSQL persistence for portsweep scan jobs, their
// results and per-job history, plus embedded schema migrations.
package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
)

// sanitizeDBError converts raw database errors into coded errors that do not
// expose SQL or connection details. The original error is kept as Cause.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewDatabaseError(errors.CodeNotFound, "resource not found").WithOperation(operation)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.WrapDatabaseError(errors.CodeCanceled, "database operation was canceled", err).
			WithOperation(operation)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.WrapDatabaseError(errors.CodeDatabaseTimeout, "database operation timed out", err).
			WithOperation(operation)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		var dbErr *errors.DatabaseError
		switch pqErr.Code {
		case "23505": // unique_violation
			dbErr = errors.NewDatabaseError(errors.CodeConflict, "resource already exists")
		case "23503": // foreign_key_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "referenced resource does not exist")
		case "23502", "23514": // not_null_violation, check_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "data validation failed")
		case "57014": // query_canceled
			dbErr = errors.NewDatabaseError(errors.CodeCanceled, "database operation was canceled")
		case "57P01", "08000", "08003", "08006":
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseConnection, "database connection error")
		default:
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseQuery, "database operation failed")
		}
		dbErr.Operation = operation
		dbErr.Cause = err
		return dbErr
	}

	return errors.WrapDatabaseError(errors.CodeDatabaseQuery, "database operation failed", err).
		WithOperation(operation)
}

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// DB wraps sqlx.DB.
type DB struct {
	*sqlx.DB
}

// Config holds database configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host" mapstructure:"host"`
	Port            int           `yaml:"port" json:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Database        string        `yaml:"database" json:"database" mapstructure:"database"`
	Username        string        `yaml:"username" json:"username" mapstructure:"username"`
	Password        string        `yaml:"password" json:"-" mapstructure:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// DefaultConfig returns the default database configuration. Database name,
// username and password must be configured explicitly.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Configured reports whether enough settings exist to attempt a connection.
func (c *Config) Configured() bool {
	return c.Database != "" && c.Username != ""
}

// DSN returns a lib/pq key=value connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Connect establishes a connection to PostgreSQL and verifies it.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	if !config.Configured() {
		return nil, errors.NewConfigError(errors.CodeConfiguration, "database name and username must be configured")
	}

	conn, err := sqlx.ConnectContext(ctx, "postgres", config.DSN())
	if err != nil {
		return nil, errors.ErrDatabaseConnection(err)
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	logging.Default().InfoDatabase("Connected to database",
		"host", config.Host,
		"port", config.Port,
		"database", config.Database)
	return &DB{DB: conn}, nil
}

// Wrap adapts an existing sqlx connection.
func Wrap(conn *sqlx.DB) *DB {
	return &DB{DB: conn}
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseConnection, "database ping failed", err)
	}
	return nil
}
