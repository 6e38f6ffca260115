package store

import (
	"context"
	"embed"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pressly/goose/v3"
	zlog "github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Migrate applies all pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect := "sqlite3"
	if d.driver == DriverPostgres {
		dialect = "postgres"
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, d.sql, "migrations"); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	version, err := goose.GetDBVersionContext(ctx, d.sql)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	zlog.Debug().Msgf("store: schema at version %d", version)

	return nil
}

// gooseLogger routes goose output to zerolog.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	zlog.Error().Msgf("goose: "+format, v...)
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	zlog.Debug().Msgf("goose: "+format, v...)
}
