package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

// Init opens the pool described by cfg and checks the server is reachable.
func Init(ctx context.Context, cfg *config.DbConfig) (*sql.DB, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, autherr.ConfigurationFatal("POSTGRES_DSN", "is not set")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
