// Package jwt signs the web session cookie.
package jwt

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "laisky-blog-web"
	// minSecretLength is the shortest accepted HMAC secret
	minSecretLength = 16
)

// SessionClaims binds a token to a server-side session
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Signer issues and verifies HS256 session tokens
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer whose tokens expire after ttl.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) < minSecretLength {
		return nil, errors.Errorf("secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.Errorf("invalid token ttl %s", ttl)
	}

	return &Signer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign issues a token for sessionID.
func (s *Signer) Sign(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("empty session id")
	}

	now := s.now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}

	return token, nil
}

// Parse verifies token and returns its session id.
func (s *Signer) Parse(token string) (string, error) {
	claims := new(SessionClaims)
	if _, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	); err != nil {
		return "", errors.Wrap(err, "parse session token")
	}

	if claims.SessionID == "" {
		return "", errors.New("session token without session id")
	}

	return claims.SessionID, nil
}
