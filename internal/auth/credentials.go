// Package auth turns raw transport credentials into a principal role through
// an ordered chain of pluggable authentication providers.
package auth

import (
	"crypto/x509"
	"net/http"
	"strings"
)

// Scheme identifies a credential type handled by a provider.
type Scheme string

const (
	SchemeTLS   Scheme = "tls"
	SchemeBasic Scheme = "basic"
	SchemeToken Scheme = "token"
	// SchemeNone marks an absent credential. It is never routed to a
	// provider; the role resolver decides whether anonymous access applies.
	SchemeNone Scheme = "none"
)

// Credential is the raw material extracted from a connection or request.
// It lives only for the duration of the authentication step.
type Credential struct {
	Scheme Scheme

	// SchemeTLS
	CertChain []*x509.Certificate

	// SchemeBasic
	UserID   string
	Password string

	// SchemeToken
	Token string

	// RemoteAddr is used only for logging.
	RemoteAddr string
}

// FromRequest extracts the credential presented on an HTTP request.
// Precedence: mutual-TLS peer certificate, then Basic, then Bearer.
func FromRequest(r *http.Request) Credential {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return Credential{
			Scheme:     SchemeTLS,
			CertChain:  r.TLS.PeerCertificates,
			RemoteAddr: r.RemoteAddr,
		}
	}

	if user, pass, ok := r.BasicAuth(); ok {
		return Credential{
			Scheme:     SchemeBasic,
			UserID:     user,
			Password:   pass,
			RemoteAddr: r.RemoteAddr,
		}
	}

	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return Credential{
				Scheme:     SchemeToken,
				Token:      strings.TrimSpace(parts[1]),
				RemoteAddr: r.RemoteAddr,
			}
		}
	}

	return Credential{Scheme: SchemeNone, RemoteAddr: r.RemoteAddr}
}
