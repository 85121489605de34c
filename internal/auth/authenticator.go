package auth

import (
	"context"

	"go.uber.org/zap"
)

// Authenticator is the per-request entry point: credential extraction output
// goes through the provider chain and then the role resolver. When
// authentication is disabled it returns an empty principal, which the
// authorization engine fails closed on unless authorization is also disabled.
type Authenticator struct {
	enabled  bool
	chain    *Chain
	resolver *RoleResolver
	logger   *zap.Logger
}

// NewAuthenticator wires the chain and resolver together.
func NewAuthenticator(enabled bool, chain *Chain, resolver *RoleResolver, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		enabled:  enabled,
		chain:    chain,
		resolver: resolver,
		logger:   logger,
	}
}

// Enabled reports whether authentication is enforced.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Authenticate resolves a credential to a principal role.
func (a *Authenticator) Authenticate(ctx context.Context, cred Credential) (string, error) {
	if !a.enabled {
		return "", nil
	}
	principal, err := a.chain.Authenticate(ctx, cred)
	return a.resolver.Resolve(principal, err)
}

// Close releases provider resources.
func (a *Authenticator) Close() error {
	if a.chain == nil {
		return nil
	}
	return a.chain.Close()
}
