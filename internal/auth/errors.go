package auth

import "errors"

var (
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("admin access required")
	ErrMFARequired  = errors.New("MFA verification required")
)
