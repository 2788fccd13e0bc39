package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"w9-uploads/config"
	"w9-uploads/core"
	"w9-uploads/handlers/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticManagers struct {
	ids []int
	err error
}

func (s staticManagers) AllowedManagers(ctx context.Context) ([]int, error) {
	return s.ids, s.err
}

var users = []core.User{
	{ID: 4, Login: "laud", Roles: []string{"administrator"}},
	{ID: 7, Login: "mgr", Roles: []string{"administrator", "w9_manager"}},
	{ID: 8, Login: "editor", Roles: []string{"editor"}},
}

func newAuth(t *testing.T) *auth.Service {
	t.Helper()
	return auth.NewService(context.Background(), config.AuthConfig{JWTSecret: "test-secret"}, auth.NewDirectory(users))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
	if u != nil {
		w.Write([]byte(u.Login))
	}
}

func TestAuthenticate_NoSession(t *testing.T) {
	h := Authenticate(newAuth(t))(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/w9-uploads", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestAuthenticate_Cookie(t *testing.T) {
	svc := newAuth(t)
	token, err := svc.TokenFor(7)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/w9-uploads", nil)
	req.AddCookie(&http.Cookie{Name: svc.CookieName(), Value: token})
	rec := httptest.NewRecorder()
	Authenticate(svc)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mgr", rec.Body.String())
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	svc := newAuth(t)
	token, err := svc.TokenFor(4)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/w9-uploads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(svc)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "laud", rec.Body.String())
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	svc := newAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/w9-uploads", nil)
	req.AddCookie(&http.Cookie{Name: svc.CookieName(), Value: "not-a-jwt"})
	rec := httptest.NewRecorder()
	Authenticate(svc)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	svc := newAuth(t)
	token, err := svc.CreateJWT(&core.User{ID: 99})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/w9-uploads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(svc)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireManager(t *testing.T) {
	tests := []struct {
		name     string
		user     *core.User
		managers staticManagers
		want     int
	}{
		{"owner", &users[0], staticManagers{ids: []int{4, 13}}, http.StatusOK},
		{"assigned manager", &users[1], staticManagers{ids: []int{4, 13, 7}}, http.StatusOK},
		{"not in set", &users[2], staticManagers{ids: []int{4, 13, 7}}, http.StatusForbidden},
		{"manager removed", &users[1], staticManagers{ids: []int{4, 13}}, http.StatusForbidden},
		{"no user", nil, staticManagers{ids: []int{4, 13}}, http.StatusForbidden},
		{"store failure", &users[0], staticManagers{err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/w9-uploads", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			RequireManager(tt.managers)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, ForbiddenMessage, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(NewIPRateLimiter(0.001, 2))(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin-post.php", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/admin-post.php", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(NewIPRateLimiter(0, 0))(http.HandlerFunc(okHandler))

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin-post.php", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
