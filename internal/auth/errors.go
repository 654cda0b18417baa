package auth

import "errors"

var (
	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden is returned when the caller lacks an authorized role.
	ErrForbidden = errors.New("auth: forbidden")
)
