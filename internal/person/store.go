package person

import (
	"context"
	"strings"

	"github.com/mehmetcc/warden/pkg/id"
)

// Store is the lookup capability the credential core consumes. Finders
// return ErrNotFound when nothing matches and never populate Password unless
// asked to with WithSecret.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string, opts ...FindOption) (*Person, error)
	FindByID(ctx context.Context, publicID id.PublicID, opts ...FindOption) (*Person, error)
	Create(ctx context.Context, dto *PersonDTO) (*Person, error)
	Update(ctx context.Context, publicID id.PublicID, patch Patch) (*Person, error)
}

type findOptions struct {
	withSecret bool
}

type FindOption func(*findOptions)

// WithSecret asks the store to include the password digest.
func WithSecret() FindOption {
	return func(o *findOptions) { o.withSecret = true }
}

func applyFindOptions(opts []FindOption) findOptions {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

