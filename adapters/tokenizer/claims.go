package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ExtensionClaims are the claims of a token admitting an extension page
type ExtensionClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}
