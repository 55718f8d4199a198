package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestHandler(t *testing.T, f *fixture, cookie *config.CookieConfig) http.Handler {
	t.Helper()
	g := guard.New(f.codec, zaptest.NewLogger(t))
	return NewAuthenticationHandler(f.svc, g, HandlerConfig{Cookie: cookie}, zaptest.NewLogger(t)).Routes()
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	h := newTestHandler(t, f, &config.CookieConfig{
		CookieDomain:   "example.com",
		CookieSecure:   true,
		CookieSamesite: "lax",
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identifier":"alice","password":"Abcdefg1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	c := refreshCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/auth", c.Path)
	assert.NotEmpty(t, c.Value)
}

func TestRefreshFromCookieWithoutBody(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	h := newTestHandler(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: sess.Tokens.RefreshToken})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshWithoutToken(t *testing.T) {
	f := newFixture(t, nil)
	h := newTestHandler(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNoCookieWithoutDomain(t *testing.T) {
	f := newFixture(t, nil)
	h := newTestHandler(t, f, &config.CookieConfig{})

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"b@x.com","username":"bob","password":"Abcdefg1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, refreshCookie(rec))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)
	h := newTestHandler(t, f, nil)

	for _, body := range []string{
		`{"email":"not-an-email","username":"bob","password":"Abcdefg1"}`,
		`{"email":"b@x.com","username":"b!","password":"Abcdefg1"}`,
		`{"email":"b@x.com","username":"bob","password":"short"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
}

func TestSecretLengthCountsBytes(t *testing.T) {
	f := newFixture(t, nil)
	h := newTestHandler(t, f, nil)

	// 40 runes, 80 bytes
	long := strings.Repeat("é", 40)
	for _, tc := range []struct {
		path string
		body string
	}{
		{"/register", `{"email":"b@x.com","username":"bob","password":"` + long + `"}`},
		{"/login", `{"identifier":"bob","password":"` + long + `"}`},
	} {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), `"secret"`, tc.path)
	}

	// 36 runes, 72 bytes
	fits := strings.Repeat("é", 36)
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"b@x.com","username":"bob","password":"`+fits+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
