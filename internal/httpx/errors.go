package httpx

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/warden/internal/autherr"
)

type ErrorCode string

const (
	ErrInvalidJSON        ErrorCode = "invalid_json"
	ErrUnsupportedMedia   ErrorCode = "unsupported_media_type"
	ErrValidationFailed   ErrorCode = "validation_failed"
	ErrInvalidCredentials ErrorCode = "invalid_credentials"
	ErrAccountInactive    ErrorCode = "account_inactive"
	ErrInvalidToken       ErrorCode = "invalid_token"
	ErrUnauthorized       ErrorCode = "unauthorized"
	ErrForbidden          ErrorCode = "forbidden"
	ErrNotFound           ErrorCode = "not_found"
	ErrConflict           ErrorCode = "conflict"
	ErrInternal           ErrorCode = "internal_error"
)

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type ErrorResponse[T any] struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details T         `json:"details,omitempty"`
}

func ValidationDetails(err error) []FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "", Rule: "invalid", Param: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{
			Field: e.Field(),
			Rule:  e.Tag(),
			Param: e.Param(),
		})
	}
	return out
}

// StatusFor maps every failure kind to an HTTP status and error code.
func StatusFor(kind autherr.Kind) (int, ErrorCode) {
	switch kind {
	case autherr.KindInvalidCredentials:
		return http.StatusUnauthorized, ErrInvalidCredentials
	case autherr.KindAccountInactive:
		return http.StatusForbidden, ErrAccountInactive
	case autherr.KindConflict:
		return http.StatusConflict, ErrConflict
	case autherr.KindNotFound:
		return http.StatusNotFound, ErrNotFound
	case autherr.KindTokenMalformed,
		autherr.KindTokenExpired,
		autherr.KindTokenSignatureInvalid,
		autherr.KindTokenWrongKind,
		autherr.KindTokenAudienceMismatch,
		autherr.KindTokenRevoked:
		return http.StatusUnauthorized, ErrInvalidToken
	case autherr.KindUnauthenticated:
		return http.StatusUnauthorized, ErrUnauthorized
	case autherr.KindForbidden:
		return http.StatusForbidden, ErrForbidden
	case autherr.KindConfigurationFatal, autherr.KindUnknown:
		return http.StatusInternalServerError, ErrInternal
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// WriteAuthError renders err with the caller-safe message for its kind.
// Conflicts name the clashing field only when discloseField is set.
func WriteAuthError(w http.ResponseWriter, err error, discloseField bool) {
	e, ok := autherr.As(err)
	if !ok {
		WriteError(w, http.StatusInternalServerError, ErrorResponse[any]{
			Code:    ErrInternal,
			Message: "internal server error",
		})
		return
	}

	status, code := StatusFor(e.Kind)
	msg := e.PublicMessage()
	if e.Kind == autherr.KindConflict && !discloseField {
		msg = autherr.ErrConflict.PublicMessage()
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
	}
	WriteError(w, status, ErrorResponse[any]{
		Code:    code,
		Message: msg,
	})
}
