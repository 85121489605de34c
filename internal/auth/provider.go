package auth

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Provider verifies one credential scheme and maps it to a principal role.
// Implementations are stateless per call and safe for concurrent use; any
// blocking work must honor ctx.
type Provider interface {
	// Scheme returns the credential scheme this provider handles.
	Scheme() Scheme

	// Authenticate returns the principal for the credential, or one of the
	// taxonomy errors from errors.go.
	Authenticate(ctx context.Context, cred Credential) (string, error)
}

// Chain routes a credential to the provider declared for its scheme. When two
// providers claim the same scheme the first registered one wins; the decision
// of the matching provider is final and is never masked by trying others.
type Chain struct {
	providers map[Scheme]Provider
	order     []Provider
	logger    *zap.Logger
}

// NewChain builds a provider chain in configuration order.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Chain{
		providers: make(map[Scheme]Provider, len(providers)),
		order:     providers,
		logger:    logger,
	}
	for _, p := range providers {
		if _, exists := c.providers[p.Scheme()]; exists {
			logger.Warn("Duplicate authentication provider for scheme, keeping first",
				zap.String("scheme", string(p.Scheme())))
			continue
		}
		c.providers[p.Scheme()] = p
	}
	return c
}

// Authenticate resolves the credential to a principal. An absent credential
// returns an empty principal with no error; the role resolver decides whether
// anonymous access applies.
func (c *Chain) Authenticate(ctx context.Context, cred Credential) (string, error) {
	if cred.Scheme == SchemeNone {
		return "", nil
	}

	p, ok := c.providers[cred.Scheme]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, cred.Scheme)
	}

	principal, err := p.Authenticate(ctx, cred)
	if err != nil {
		c.logger.Warn("Authentication failed",
			zap.String("scheme", string(cred.Scheme)),
			zap.String("remote", cred.RemoteAddr),
			zap.Error(err))
		return "", err
	}
	return principal, nil
}

// Close releases resources held by providers that carry background state,
// such as a credential-file watcher.
func (c *Chain) Close() error {
	var firstErr error
	for _, p := range c.order {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
