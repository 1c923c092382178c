package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/sentinel/ports"
)

// AudienceExtension is the audience of tokens admitting extension pages
const AudienceExtension = "sentinel:extension"

// ScopeApproval is the only scope issued today
const ScopeApproval = "approval"

// ErrInvalidToken is returned for tokens that do not verify
var ErrInvalidToken = errors.New("invalid token")

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// IssueExtensionToken signs a token valid for ttl
func (j *JWTTokenizer) IssueExtensionToken(ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ExtensionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceExtension},
		},
		Scope: ScopeApproval,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyExtensionToken checks signature, audience, expiry and scope
func (j *JWTTokenizer) VerifyExtensionToken(tokenStr string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &ExtensionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceExtension), jwt.WithExpirationRequired())

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(*ExtensionClaims)
	if !ok || claims.Scope != ScopeApproval {
		return ErrInvalidToken
	}

	return nil
}
