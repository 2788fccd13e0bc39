package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"w9-uploads/config"
	"w9-uploads/core"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	sessionTTL      = 7 * 24 * time.Hour
	stateCookieName = "w9_oauth_state"

	// AfterLoginPath is where a fresh session lands.
	AfterLoginPath = "/admin/w9-uploads"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("unknown user")

	// ErrEphemeralSecret means the signing key is a per-process random one,
	// so a token issued offline would never verify against the server.
	ErrEphemeralSecret = errors.New("auth.jwt_secret is not set")
)

// AppClaims represents the custom claims for the session JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	UserID int      `json:"uid"`
	Login  string   `json:"login"`
	Roles  []string `json:"roles,omitempty"`
}

// Service issues and verifies sessions and drives the configured login provider.
type Service struct {
	secret          []byte
	ephemeralSecret bool
	cookieName      string
	users      core.UserDirectory

	githubConfig *oauth2.Config
	oidcConfig   *oauth2.Config
	verifier     *oidc.IDTokenVerifier

	loginHandler    http.HandlerFunc
	callbackHandler http.HandlerFunc
}

// NewService picks OIDC when configured, then GitHub. Without a provider the
// login routes answer 500 and sessions can only come from -token-for.
func NewService(ctx context.Context, cfg config.AuthConfig, users core.UserDirectory) *Service {
	s := &Service{
		secret:     []byte(cfg.JWTSecret),
		cookieName: cfg.CookieName,
		users:      users,
	}
	if s.cookieName == "" {
		s.cookieName = "w9_session"
	}
	if len(s.secret) == 0 {
		logrus.Warn("JWT secret is not set. Using a random secret; sessions will not survive a restart.")
		s.secret = randomBytes(32)
		s.ephemeralSecret = true
	}

	oidcConfigured := cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID != ""
	githubConfigured := cfg.GitHub.ClientID != "" && cfg.GitHub.ClientSecret != ""

	switch {
	case oidcConfigured:
		logrus.Info("Initializing OIDC authentication provider.")
		s.initOIDC(ctx, cfg.OIDC)
		s.loginHandler = s.HandleOIDCLogin
		s.callbackHandler = s.HandleOIDCCallback
	case githubConfigured:
		logrus.Info("Initializing GitHub authentication provider.")
		s.githubConfig = &oauth2.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.GitHub.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
		s.loginHandler = s.HandleGitHubLogin
		s.callbackHandler = s.HandleGitHubCallback
	default:
		logrus.Warn("No authentication provider configured.")
	}
	return s
}

func (s *Service) initOIDC(ctx context.Context, cfg config.ProviderConfig) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		logrus.Errorf("Failed to create OIDC provider: %s", err.Error())
		return
	}

	s.oidcConfig = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	s.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	logrus.Info("OIDC provider initialized")
}

func (s *Service) CookieName() string {
	return s.cookieName
}

func (s *Service) Users() core.UserDirectory {
	return s.users
}

func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if s.loginHandler == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}
	s.loginHandler(w, r)
}

func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if s.callbackHandler == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}
	s.callbackHandler(w, r)
}

func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Service) setStateCookie(w http.ResponseWriter, r *http.Request) string {
	state := hex.EncodeToString(randomBytes(16))
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

func validState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookieName)
	return err == nil && cookie.Value != "" && cookie.Value == r.FormValue("state")
}

func (s *Service) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := s.setStateCookie(w, r)
	http.Redirect(w, r, s.githubConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (s *Service) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !validState(r) {
		logrus.Warn("GitHub callback with invalid state")
		http.Error(w, "Invalid login state", http.StatusBadRequest)
		return
	}

	token, err := s.githubConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	client := s.githubConfig.Client(r.Context(), token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		logrus.Errorf("failed to get user from github: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Errorf("failed to read github response body: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var githubUser struct {
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil {
		logrus.Errorf("failed to unmarshal github user: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	s.startSession(w, r, githubUser.Email, githubUser.Login)
}

func (s *Service) HandleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if s.oidcConfig == nil {
		http.Error(w, "OIDC is not configured", http.StatusInternalServerError)
		return
	}
	state := s.setStateCookie(w, r)
	http.Redirect(w, r, s.oidcConfig.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
}

func (s *Service) HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if s.oidcConfig == nil {
		http.Error(w, "OIDC is not configured", http.StatusInternalServerError)
		return
	}
	if !validState(r) {
		logrus.Warn("OIDC callback with invalid state")
		http.Error(w, "Invalid login state", http.StatusBadRequest)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		logrus.Error("no code in callback")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := s.oidcConfig.Exchange(r.Context(), code)
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logrus.Error("no id_token in token response")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	idToken, err := s.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		logrus.Errorf("failed to verify ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		logrus.Errorf("failed to extract claims from ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	s.startSession(w, r, claims.Email, claims.PreferredUsername)
}

// startSession maps a provider identity onto a directory user and sets the
// session cookie.
func (s *Service) startSession(w http.ResponseWriter, r *http.Request, email, login string) {
	user, ok := s.users.ByIdentity(email, login)
	if !ok {
		logrus.WithFields(logrus.Fields{"email": email, "login": login}).Warn("Login for unknown user")
		http.Error(w, "Sorry, you don't have an account on this site.", http.StatusForbidden)
		return
	}

	jwtToken, err := s.CreateJWT(user)
	if err != nil {
		logrus.Errorf("failed to create JWT: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    jwtToken,
		Path:     "/",
		Expires:  time.Now().Add(sessionTTL),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	logrus.WithField("user_id", user.ID).Info("Session started")
	http.Redirect(w, r, AfterLoginPath, http.StatusTemporaryRedirect)
}

func (s *Service) CreateJWT(user *core.User) (string, error) {
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: user.ID,
		Login:  user.Login,
		Roles:  user.Roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ResolveUser parses a session token and loads the current directory entry
// for it, so role changes apply without a new login.
func (s *Service) ResolveUser(tokenString string) (*core.User, error) {
	claims, err := s.ParseJWT(tokenString)
	if err != nil {
		return nil, err
	}
	user, ok := s.users.ByID(claims.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUser, claims.UserID)
	}
	return user, nil
}

// TokenFor issues a session token for a directory user. It refuses to run
// without a configured secret.
func (s *Service) TokenFor(userID int) (string, error) {
	if s.ephemeralSecret {
		return "", ErrEphemeralSecret
	}
	user, ok := s.users.ByID(userID)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	}
	return s.CreateJWT(user)
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
