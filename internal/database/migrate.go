package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mehmetcc/warden/migrations"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate brings the persons and revoked_tokens tables up to the newest
// embedded migration and logs the resulting schema version.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseZapLogger{s: logger.Named("goose").Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("schema up to date", zap.Int64("version", version))
	return nil
}

type gooseZapLogger struct{ s *zap.SugaredLogger }

func (l gooseZapLogger) Printf(format string, v ...interface{}) {
	l.s.Infof(format, v...)
}

// Fatalf logs instead of exiting; Migrate returns the error to the caller.
func (l gooseZapLogger) Fatalf(format string, v ...interface{}) {
	l.s.Errorf(format, v...)
}
