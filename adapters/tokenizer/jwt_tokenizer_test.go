package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestJWTTokenizerRoundTrip(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))

	token, err := tok.IssueExtensionToken(time.Minute)
	require.NoError(t, err)
	require.NoError(t, tok.VerifyExtensionToken(token))
}

func TestJWTTokenizerRejects(t *testing.T) {
	key := newKey(t)
	tok := NewJWTTokenizer(key)

	expired, err := tok.IssueExtensionToken(-time.Minute)
	require.NoError(t, err)
	require.ErrorIs(t, tok.VerifyExtensionToken(expired), ErrInvalidToken)

	foreign, err := NewJWTTokenizer(newKey(t)).IssueExtensionToken(time.Minute)
	require.NoError(t, err)
	require.ErrorIs(t, tok.VerifyExtensionToken(foreign), ErrInvalidToken)

	require.ErrorIs(t, tok.VerifyExtensionToken("not-a-token"), ErrInvalidToken)

	wrongScope := jwt.NewWithClaims(jwt.SigningMethodES256, ExtensionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			Audience:  jwt.ClaimStrings{AudienceExtension},
		},
		Scope: "admin",
	})
	signed, err := wrongScope.SignedString(key)
	require.NoError(t, err)
	require.ErrorIs(t, tok.VerifyExtensionToken(signed), ErrInvalidToken)

	noAudience := jwt.NewWithClaims(jwt.SigningMethodES256, ExtensionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Scope: ScopeApproval,
	})
	signed, err = noAudience.SignedString(key)
	require.NoError(t, err)
	require.ErrorIs(t, tok.VerifyExtensionToken(signed), ErrInvalidToken)
}
