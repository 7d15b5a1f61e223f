package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator verifies HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator over the given signing secret.
func NewJWTValidator(secret string) (*JWTValidator, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	return &JWTValidator{secret: []byte(secret)}, nil
}

func (v *JWTValidator) Validate(ctx context.Context, tokenStr string) error {
	token, err := jwt.Parse(tokenStr,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}
	return nil
}

func (v *JWTValidator) Name() string { return "jwt" }
