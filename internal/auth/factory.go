package auth

import (
	"fmt"

	"github.com/glasswing-io/glasswing/internal/config"
)

// NewValidator creates a Validator based on configuration.
func NewValidator(cfg config.AuthConfig) (Validator, error) {
	switch cfg.Mode {
	case "", "token":
		return NewTokenValidator(cfg.Token, cfg.TokenHash)
	case "jwt":
		return NewJWTValidator(cfg.JWTSecret)
	case "jwks":
		return NewJWKSValidator(cfg.JWKSURL)
	default:
		return nil, fmt.Errorf("unknown auth mode: %q", cfg.Mode)
	}
}
