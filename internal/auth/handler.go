package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/internal/guard"
	"github.com/mehmetcc/warden/internal/httpx"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/internal/token"
	"github.com/mehmetcc/warden/pkg/id"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh_token"
	requestTimeout    = 3 * time.Second
)

type AuthenticationHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	ChangePassword(w http.ResponseWriter, r *http.Request)
	AssignRole(w http.ResponseWriter, r *http.Request)
	SetActive(w http.ResponseWriter, r *http.Request)
	Routes() chi.Router
}

type HandlerConfig struct {
	// DiscloseConflictField names the clashing field on register conflicts.
	DiscloseConflictField bool
	// RateLimit is the per-IP request budget per minute for login and
	// register; zero disables limiting.
	RateLimit int
	Cookie    *config.CookieConfig
}

type authenticationHandler struct {
	logger      *zap.Logger
	authService AuthService
	guard       *guard.Guard
	validator   *validator.Validate
	cfg         HandlerConfig
}

func NewAuthenticationHandler(authService AuthService, g *guard.Guard, cfg HandlerConfig, l *zap.Logger) AuthenticationHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("secret", validSecret)
	return &authenticationHandler{
		logger:      l,
		authService: authService,
		guard:       g,
		validator:   v,
		cfg:         cfg,
	}
}

func (a *authenticationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if a.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(a.cfg.RateLimit, time.Minute))
		}
		r.Post("/register", a.Register)
		r.Post("/login", a.Login)
	})
	r.Post("/refresh", a.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(a.guard.Require())
		r.Post("/logout", a.Logout)
		r.Get("/me", a.Me)
		r.Post("/password", a.ChangePassword)
	})
	r.With(a.guard.Require(person.RoleAdmin)).Put("/users/{id}/role", a.AssignRole)
	r.With(a.guard.Require(person.RoleAdmin, person.RoleModerator)).Put("/users/{id}/active", a.SetActive)
	return r
}

func (a *authenticationHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerPersonRequest
	if !httpx.DecodeJSON(w, r, a.validator, a.logger, &req) {
		return
	}

	sess, err := a.authService.Register(ctx, RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		a.writeError(w, "failed to register user", err)
		return
	}

	a.setRefreshCookie(w, sess.Tokens.RefreshToken, sess.Tokens.RefreshExpiresAt)
	httpx.WriteJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (a *authenticationHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req loginRequest
	if !httpx.DecodeJSON(w, r, a.validator, a.logger, &req) {
		return
	}

	sess, err := a.authService.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		a.writeError(w, "login failed", err)
		return
	}

	a.setRefreshCookie(w, sess.Tokens.RefreshToken, sess.Tokens.RefreshExpiresAt)
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (a *authenticationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req refreshRequest
	if !a.decodeOptionalBody(w, r, &req) {
		return
	}
	presented := a.refreshTokenFrom(r, req.RefreshToken)
	if presented == "" {
		httpx.WriteAuthError(w, autherr.New(autherr.KindUnauthenticated, "no refresh token"), false)
		return
	}

	res, err := a.authService.Refresh(ctx, presented)
	if err != nil {
		a.writeError(w, "refresh failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken:     res.AccessToken,
		AccessExpiresAt: res.AccessExpiresAt,
		TokenType:       "Bearer",
	})
}

func (a *authenticationHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req refreshRequest
	if !a.decodeOptionalBody(w, r, &req) {
		return
	}
	presented := a.refreshTokenFrom(r, req.RefreshToken)
	if presented == "" {
		httpx.WriteAuthError(w, autherr.New(autherr.KindUnauthenticated, "no refresh token"), false)
		return
	}

	var access *token.Verified
	if p, ok := guard.PrincipalFrom(r.Context()); ok {
		access = p.Verified()
	}
	if err := a.authService.Logout(ctx, presented, access); err != nil {
		a.writeError(w, "logout failed", err)
		return
	}

	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *authenticationHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := guard.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, autherr.ErrUnauthenticated, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		ID:        p.SubjectID.String(),
		Email:     p.Email,
		Role:      string(p.Role),
		IssuedAt:  p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	})
}

func (a *authenticationHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req changePasswordRequest
	if !httpx.DecodeJSON(w, r, a.validator, a.logger, &req) {
		return
	}

	p, ok := guard.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, autherr.ErrUnauthenticated, false)
		return
	}
	if err := a.authService.ChangePassword(ctx, p.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeError(w, "change password failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *authenticationHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	subject, ok := a.subjectParam(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !httpx.DecodeJSON(w, r, a.validator, a.logger, &req) {
		return
	}

	updated, err := a.authService.AssignRole(ctx, subject, person.Role(req.Role))
	if err != nil {
		a.writeError(w, "assign role failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPersonResponse(updated))
}

func (a *authenticationHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	subject, ok := a.subjectParam(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if !httpx.DecodeJSON(w, r, a.validator, a.logger, &req) {
		return
	}

	p, ok := guard.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, autherr.ErrUnauthenticated, false)
		return
	}
	updated, err := a.authService.SetActive(ctx, p.Identity, subject, *req.Active)
	if err != nil {
		a.writeError(w, "set active failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPersonResponse(updated))
}

func (a *authenticationHandler) subjectParam(w http.ResponseWriter, r *http.Request) (id.PublicID, bool) {
	subject, err := id.ParsePublicID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAuthError(w, autherr.ErrNotFound, false)
		return "", false
	}
	return subject, true
}

// writeError logs err with its precise kind and renders the caller-safe form.
func (a *authenticationHandler) writeError(w http.ResponseWriter, msg string, err error) {
	kind := autherr.KindOf(err)
	if kind == autherr.KindUnknown {
		a.logger.Error(msg, zap.Error(err))
	} else {
		a.logger.Warn(msg, zap.String("kind", kind.String()), zap.Error(err))
	}
	httpx.WriteAuthError(w, err, a.cfg.DiscloseConflictField)
}

// decodeOptionalBody accepts an empty body so cookie-only clients can call
// refresh and logout.
func (a *authenticationHandler) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return httpx.DecodeJSON(w, r, a.validator, a.logger, dst)
}

func (a *authenticationHandler) refreshTokenFrom(r *http.Request, fromBody string) string {
	if fromBody = strings.TrimSpace(fromBody); fromBody != "" {
		return fromBody
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (a *authenticationHandler) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	c := a.cfg.Cookie
	if c == nil || c.CookieDomain == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Domain:   c.CookieDomain,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: sameSite(c.CookieSamesite),
	})
}

func (a *authenticationHandler) clearRefreshCookie(w http.ResponseWriter) {
	c := a.cfg.Cookie
	if c == nil || c.CookieDomain == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Domain:   c.CookieDomain,
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: sameSite(c.CookieSamesite),
	})
}

func sameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
