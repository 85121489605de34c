package auth

// RoleResolver applies the anonymous-role fallback. It only ever fills in the
// no-credential case: an explicit credential failure is propagated unchanged,
// because a bad certificate must not be treated as "no credential".
type RoleResolver struct {
	anonymousRole string
}

// NewRoleResolver creates a resolver. An empty anonymousRole disables
// anonymous access.
func NewRoleResolver(anonymousRole string) *RoleResolver {
	return &RoleResolver{anonymousRole: anonymousRole}
}

// Resolve turns the chain outcome into a definite principal.
func (r *RoleResolver) Resolve(principal string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if principal != "" {
		return principal, nil
	}
	if r.anonymousRole != "" {
		return r.anonymousRole, nil
	}
	return "", ErrUnauthenticated
}
