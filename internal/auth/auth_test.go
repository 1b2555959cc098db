package auth

import (
	"testing"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueVerify(t *testing.T) {
	iss, err := NewTokenIssuer(testSecret, "pdftoxml", time.Hour)
	require.NoError(t, err)

	token, err := iss.Issue(domain.User{ID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	id, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestVerifyRejects(t *testing.T) {
	iss, err := NewTokenIssuer(testSecret, "pdftoxml", time.Hour)
	require.NoError(t, err)
	user := domain.User{ID: "u1", Email: "a@b.c"}

	other, err := NewTokenIssuer("another-secret-of-enough-length", "pdftoxml", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(user)
	require.NoError(t, err)

	otherIssuer, err := NewTokenIssuer(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	wrongIss, err := otherIssuer.Issue(user)
	require.NoError(t, err)

	past, err := NewTokenIssuer(testSecret, "pdftoxml", time.Minute)
	require.NoError(t, err)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := past.Issue(user)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "pdftoxml"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"empty":        "",
		"wrong secret": foreign,
		"wrong issuer": wrongIss,
		"expired":      expired,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Verify(token)
			require.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestNewTokenIssuerShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "pdftoxml", time.Hour)
	require.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	require.NoError(t, h.Compare(hash, "secret1"))
	require.ErrorIs(t, h.Compare(hash, "secret2"), domain.ErrInvalidCredentials)
	require.Error(t, h.Compare("not-a-hash", "secret1"))
}
