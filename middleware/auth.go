package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"w9-uploads/access"
	"w9-uploads/core"
	"w9-uploads/handlers/auth"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type contextKey string

const UserContextKey = contextKey("user")

// ForbiddenMessage is the terminal body shown to users outside the manager set.
const ForbiddenMessage = "Sorry, you don't have permission to access this page."

// AllowedLister yields the access decision set for the current request.
type AllowedLister interface {
	AllowedManagers(ctx context.Context) ([]int, error)
}

// UserFromContext returns the authenticated user placed by Authenticate.
func UserFromContext(ctx context.Context) (*core.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*core.User)
	return u, ok && u != nil
}

// WithUser stores u on ctx.
func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

func sessionToken(r *http.Request, cookieName string) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate resolves the session cookie or bearer token into a directory
// user. Browsers without a session are sent to the login page.
func Authenticate(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, svc.CookieName())
			if token == "" {
				http.Redirect(w, r, "/auth/login", http.StatusFound)
				return
			}

			user, err := svc.ResolveUser(token)
			if err != nil {
				logrus.WithError(err).Debug("Rejected session")
				if errors.Is(err, auth.ErrUnknownUser) {
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, map[string]string{"error": "Unknown user"})
					return
				}
				http.Redirect(w, r, "/auth/login", http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireManager stops any user outside the access decision set with a
// terminal 403. Nothing of the page is rendered for them.
func RequireManager(managers AllowedLister) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, ForbiddenMessage, http.StatusForbidden)
				return
			}

			allowed, err := managers.AllowedManagers(r.Context())
			if err != nil {
				logrus.WithError(err).Error("Failed to load manager list")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !access.Allowed(user, allowed) {
				logrus.WithFields(logrus.Fields{"user_id": user.ID, "path": r.URL.Path}).Warn("Blocked uploads page access")
				http.Error(w, ForbiddenMessage, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
