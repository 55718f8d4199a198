// Package autherr is the failure vocabulary shared by the credential,
// token, session and guard layers. Every failure the core reports is an
// *Error carrying a Kind; transports switch on the Kind to pick a status
// and use PublicMessage for the caller-visible text.
package autherr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindAccountInactive
	KindConflict
	KindNotFound
	KindTokenMalformed
	KindTokenExpired
	KindTokenSignatureInvalid
	KindTokenWrongKind
	KindTokenAudienceMismatch
	KindTokenRevoked
	KindUnauthenticated
	KindForbidden
	KindConfigurationFatal
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindInvalidCredentials:    "invalid_credentials",
	KindAccountInactive:       "account_inactive",
	KindConflict:              "conflict",
	KindNotFound:              "not_found",
	KindTokenMalformed:        "token_malformed",
	KindTokenExpired:          "token_expired",
	KindTokenSignatureInvalid: "token_signature_invalid",
	KindTokenWrongKind:        "token_wrong_kind",
	KindTokenAudienceMismatch: "token_audience_mismatch",
	KindTokenRevoked:          "token_revoked",
	KindUnauthenticated:       "unauthenticated",
	KindForbidden:             "forbidden",
	KindConfigurationFatal:    "configuration_fatal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsToken reports whether k describes a rejected token.
func (k Kind) IsToken() bool {
	switch k {
	case KindTokenMalformed, KindTokenExpired, KindTokenSignatureInvalid,
		KindTokenWrongKind, KindTokenAudienceMismatch, KindTokenRevoked:
		return true
	}
	return false
}

// Error is the tagged failure value. Only the fields relevant to Kind are set:
// Field for Conflict, Roles for Forbidden, Key for ConfigurationFatal.
type Error struct {
	Kind   Kind
	Field  string
	Roles  []string
	Key    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case KindConflict:
		if e.Field != "" {
			b.WriteString(" on " + e.Field)
		}
	case KindForbidden:
		if len(e.Roles) > 0 {
			b.WriteString(" (requires " + strings.Join(e.Roles, "|") + ")")
		}
	case KindConfigurationFatal:
		if e.Key != "" {
			b.WriteString(": " + e.Key)
		}
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Field when the target names one, so that
// errors.Is(err, ErrTokenExpired) works for any expired-token error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// PublicMessage is the text a caller is allowed to see. Token failures
// collapse into one message and credential failures never say which half
// was wrong.
func (e *Error) PublicMessage() string {
	switch {
	case e.Kind.IsToken():
		return "invalid or expired token"
	}
	switch e.Kind {
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindAccountInactive:
		return "account deactivated"
	case KindConflict:
		if e.Field != "" {
			return e.Field + " already exists"
		}
		return "account already exists"
	case KindNotFound:
		return "not found"
	case KindUnauthenticated:
		return "authentication required"
	case KindForbidden:
		return "insufficient role"
	default:
		return "internal server error"
	}
}

var (
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrAccountInactive       = &Error{Kind: KindAccountInactive}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrTokenMalformed        = &Error{Kind: KindTokenMalformed}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired}
	ErrTokenSignatureInvalid = &Error{Kind: KindTokenSignatureInvalid}
	ErrTokenWrongKind        = &Error{Kind: KindTokenWrongKind}
	ErrTokenAudienceMismatch = &Error{Kind: KindTokenAudienceMismatch}
	ErrTokenRevoked          = &Error{Kind: KindTokenRevoked}
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrConfigurationFatal    = &Error{Kind: KindConfigurationFatal}
)

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func Conflict(field string) *Error {
	return &Error{Kind: KindConflict, Field: field}
}

func Forbidden(roles ...string) *Error {
	return &Error{Kind: KindForbidden, Roles: append([]string(nil), roles...)}
}

func ConfigurationFatal(key, detail string) *Error {
	return &Error{Kind: KindConfigurationFatal, Key: key, Detail: detail}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
