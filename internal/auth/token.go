package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenProvider authenticates HS256 bearer tokens. The principal is taken
// from the subject claim.
type TokenProvider struct {
	secret []byte
	logger *zap.Logger
}

// NewTokenProvider creates a provider with the given shared secret.
func NewTokenProvider(secret []byte, logger *zap.Logger) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenProvider{secret: secret, logger: logger}, nil
}

// Scheme implements Provider.
func (p *TokenProvider) Scheme() Scheme {
	return SchemeToken
}

// Authenticate validates the token signature and expiry and returns the
// subject claim as principal.
func (p *TokenProvider) Authenticate(ctx context.Context, cred Credential) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := jwt.Parse(cred.Token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	return subject, nil
}
