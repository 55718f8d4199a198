// Package revocation holds an optional deny-list of token ids. Tokens stay
// stateless; a configured list lets logout cut a token short before its
// expiry. Entries only need to live until the token would have expired.
package revocation

import (
	"context"
	"time"
)

type Store interface {
	// Revoke records tokenID as revoked until expiresAt.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
