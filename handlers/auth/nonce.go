package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// UploadFormAction and UploadFormField name the nonce of the public form.
	UploadFormAction = "handle_w9_upload_form"
	UploadFormField  = "nonce_w9_upload_form"

	nonceTTL = 24 * time.Hour
)

type nonceClaims struct {
	jwt.RegisteredClaims
	Action string `json:"act"`
}

// Nonces issues and checks signed form tokens bound to an action.
type Nonces struct {
	secret []byte
	now    func() time.Time
}

func NewNonces(secret []byte) *Nonces {
	return &Nonces{secret: secret, now: time.Now}
}

// Nonces returns a nonce issuer sharing the session signing key.
func (s *Service) Nonces() *Nonces {
	return NewNonces(s.secret)
}

func (n *Nonces) Issue(action string) (string, error) {
	now := n.now()
	claims := nonceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(nonceTTL)),
		},
		Action: action,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
}

// Verify reports whether token was issued for action and has not expired.
func (n *Nonces) Verify(token, action string) bool {
	if token == "" {
		return false
	}
	claims := &nonceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return n.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(n.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Action == action
}
