// Package auth validates the tokens clients present during the WebSocket
// handshake and on the artifact HTTP server.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned for any token that fails validation. The
// failure reason is never surfaced to clients.
var ErrUnauthorized = errors.New("authentication failed")

// Validator checks a client-presented token.
type Validator interface {
	Validate(ctx context.Context, token string) error
	Name() string
}

// TokenValidator compares tokens against a shared secret. When a bcrypt
// hash is configured it is preferred, so the plaintext secret never has
// to live in the config file.
type TokenValidator struct {
	token     string
	tokenHash string
}

// NewTokenValidator creates a shared-secret validator. At least one of
// token or tokenHash must be non-empty.
func NewTokenValidator(token, tokenHash string) (*TokenValidator, error) {
	if token == "" && tokenHash == "" {
		return nil, errors.New("no token or token_hash configured")
	}
	return &TokenValidator{token: token, tokenHash: tokenHash}, nil
}

func (v *TokenValidator) Validate(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	if v.tokenHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(v.tokenHash), []byte(token)) != nil {
			return ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(v.token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (v *TokenValidator) Name() string { return "token" }

// HashToken produces a bcrypt hash suitable for the token_hash setting.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
