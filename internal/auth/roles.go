package auth

import "errors"

// Authorizer validates a caller's role set against the configured
// authorized-role list. The list is established at startup and never
// mutated afterward.
type Authorizer struct {
	authorized map[string]struct{}
}

// NewAuthorizer constructs an authorizer from the configured role list.
func NewAuthorizer(authorizedRoles []string) (*Authorizer, error) {
	if len(authorizedRoles) == 0 {
		return nil, errors.New("auth: empty authorized role list")
	}
	set := make(map[string]struct{}, len(authorizedRoles))
	for _, role := range authorizedRoles {
		if role == "" {
			continue
		}
		set[role] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errors.New("auth: empty authorized role list")
	}
	return &Authorizer{authorized: set}, nil
}

// Authorize returns nil when any of the caller's roles is authorized.
func (a *Authorizer) Authorize(roles []string) error {
	if a == nil {
		return ErrForbidden
	}
	for _, role := range roles {
		if _, ok := a.authorized[role]; ok {
			return nil
		}
	}
	return ErrForbidden
}
