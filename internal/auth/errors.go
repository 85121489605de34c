package auth

import "errors"

var (
	// ErrUnsupportedScheme is returned when a credential was presented but no
	// configured provider handles its scheme.
	ErrUnsupportedScheme = errors.New("no authentication provider for credential scheme")

	// ErrInvalidCertificate is returned when a client certificate chain does
	// not validate against the configured trust anchors.
	ErrInvalidCertificate = errors.New("invalid client certificate")

	// ErrNoCertificate is returned when the transport was mutual-TLS capable
	// but no client certificate arrived.
	ErrNoCertificate = errors.New("no client certificate presented")

	// ErrInvalidCredentials is returned on an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrUnauthenticated is returned when no credential was presented and no
	// anonymous role is configured.
	ErrUnauthenticated = errors.New("authentication required")
)

// IsAuthenticationError reports whether err belongs to the authentication
// failure taxonomy. The boundary classifier uses this to separate credential
// failures from internal errors: anything outside the taxonomy must never be
// presented as unauthorized.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrUnsupportedScheme) ||
		errors.Is(err, ErrInvalidCertificate) ||
		errors.Is(err, ErrNoCertificate) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUnauthenticated)
}
