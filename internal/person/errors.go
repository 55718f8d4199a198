package person

import (
	"errors"

	"github.com/mehmetcc/warden/internal/autherr"
)

var (
	ErrDuplicateEmail    = autherr.Conflict("email")
	ErrDuplicateUsername = autherr.Conflict("username")
	ErrNotFound          = autherr.New(autherr.KindNotFound, "person not found")

	// ErrAmbiguousIdentifier is returned when an identifier matches more
	// than one record.
	ErrAmbiguousIdentifier = errors.New("identifier matches more than one person")
)
