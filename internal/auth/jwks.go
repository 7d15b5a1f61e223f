package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSValidator verifies JWTs against a remote JWKS endpoint, refreshing
// keys in the background.
type JWKSValidator struct {
	jwks keyfunc.Keyfunc
}

// NewJWKSValidator fetches the key set from jwksURL.
func NewJWKSValidator(jwksURL string) (*JWKSValidator, error) {
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return &JWKSValidator{jwks: jwks}, nil
}

func (v *JWKSValidator) Validate(ctx context.Context, tokenStr string) error {
	token, err := jwt.Parse(tokenStr, v.jwks.KeyfuncCtx(ctx),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}
	return nil
}

func (v *JWKSValidator) Name() string { return "jwks" }
