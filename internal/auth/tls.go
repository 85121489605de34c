package auth

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// TLSProvider authenticates mutual-TLS client certificates. The principal is
// the subject common name of the leaf certificate, validated against the
// configured trust anchors.
type TLSProvider struct {
	roots  *x509.CertPool
	logger *zap.Logger
}

// NewTLSProvider loads the PEM trust anchors from trustCertsFile.
func NewTLSProvider(trustCertsFile string, logger *zap.Logger) (*TLSProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pem, err := os.ReadFile(trustCertsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust certs file: %w", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no trust anchors found in %s", trustCertsFile)
	}

	return &TLSProvider{roots: roots, logger: logger}, nil
}

// NewTLSProviderFromPool builds a provider from an already loaded pool.
func NewTLSProviderFromPool(roots *x509.CertPool, logger *zap.Logger) *TLSProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TLSProvider{roots: roots, logger: logger}
}

// Scheme implements Provider.
func (p *TLSProvider) Scheme() Scheme {
	return SchemeTLS
}

// Authenticate verifies the presented chain and extracts the principal.
func (p *TLSProvider) Authenticate(ctx context.Context, cred Credential) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(cred.CertChain) == 0 {
		return "", ErrNoCertificate
	}

	leaf := cred.CertChain[0]
	intermediates := x509.NewCertPool()
	for _, cert := range cred.CertChain[1:] {
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         p.roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if _, err := leaf.Verify(opts); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	principal := leaf.Subject.CommonName
	if principal == "" && len(leaf.DNSNames) > 0 {
		principal = leaf.DNSNames[0]
	}
	if principal == "" {
		return "", fmt.Errorf("%w: certificate carries no usable identity", ErrInvalidCertificate)
	}

	return principal, nil
}
