package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)
	uid := uuid.New()

	token, err := svc.Issue(uid)
	require.NoError(t, err)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uid, got)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", -1)

	token, err := svc.Issue(uuid.New())
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", 3600)
	verifier := NewTokenService("secret-b", 3600)

	token, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)
	_, err := svc.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresSubjectAndExpiry(t *testing.T) {
	secret := []byte("test-secret")
	svc := NewTokenService(string(secret), 3600)

	// Signed with the right key but missing the subject claim.
	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := noSub.SignedString(secret)
	require.NoError(t, err)
	_, err = svc.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Missing expiry.
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  uuid.New().String(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	})
	signed, err = noExp.SignedString(secret)
	require.NoError(t, err)
	_, err = svc.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnexpectedSigningMethod(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
