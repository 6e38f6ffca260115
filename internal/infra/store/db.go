// Package store provides gorm-backed persistence for settings and call sessions.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database configuration.
type Config struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // File path for sqlite, connection string for postgres
	Debug  bool   // Log every statement
}

// DB wraps the gorm connection shared by the repositories.
type DB struct {
	gorm   *gorm.DB
	sql    *sql.DB
	driver string
}

// Open opens the database described by cfg.
func Open(cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zerologWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql handle")
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; serialize access through one connection.
		sqlDB.SetMaxOpenConns(1)
	}

	return &DB{gorm: db, sql: sqlDB, driver: driver}, nil
}

// Conn returns a gorm handle bound to ctx.
func (d *DB) Conn(ctx context.Context) *gorm.DB {
	return d.gorm.WithContext(ctx)
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

// zerologWriter bridges gorm's logger to the global zerolog logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	zlog.Debug().Msgf("store: "+format, args...)
}
