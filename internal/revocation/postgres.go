package revocation

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

const (
	insertRevokedTokenQuery = `
						INSERT INTO revoked_tokens (token_id, expires_at)
						VALUES ($1, $2)
						ON CONFLICT (token_id) DO NOTHING
						`
	isRevokedQuery = `
						SELECT EXISTS (
						  SELECT 1 FROM revoked_tokens
						  WHERE token_id = $1 AND expires_at > now()
						)
						`
	purgeExpiredQuery = `
						DELETE FROM revoked_tokens WHERE expires_at <= now()
						`
)

type postgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgres(db *sql.DB, logger *zap.Logger) Store {
	return &postgresStore{db: db, logger: logger}
}

func (r *postgresStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, insertRevokedTokenQuery, tokenID, expiresAt)
	if err != nil {
		r.logger.Error("failed to revoke token", zap.String("token_id", tokenID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// no-op if already revoked
		r.logger.Debug("token already revoked", zap.String("token_id", tokenID))
	}
	return nil
}

func (r *postgresStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	if err := r.db.QueryRowContext(ctx, isRevokedQuery, tokenID).Scan(&revoked); err != nil {
		r.logger.Error("failed to look up revoked token", zap.Error(err))
		return false, err
	}
	return revoked, nil
}

// PurgeExpired deletes entries whose tokens have expired.
func PurgeExpired(ctx context.Context, db *sql.DB) (int64, error) {
	res, err := db.ExecContext(ctx, purgeExpiredQuery)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
