package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers bad signatures, missing required claims and expiry.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and verifies signed, time-bounded identity tokens.
// Tokens are stateless; compromise mitigation is TTL-bounded only.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service with the given HMAC secret and TTL.
func NewTokenService(secret string, ttlSeconds int) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

// Issue creates a token whose subject is the user id, with issued-at and an
// absolute expiry.
func (s *TokenService) Issue(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token, returning the subject user id.
// Fails with ErrInvalidToken on a bad signature, a missing subject or expiry
// claim, or an expired token.
func (s *TokenService) Verify(tokenString string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
