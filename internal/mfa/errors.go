package mfa

import "errors"

var (
	ErrNotEnrolled      = errors.New("MFA not enrolled")
	ErrAlreadyEnrolled  = errors.New("MFA already enrolled")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrNoBackupCodes    = errors.New("no backup codes available")
	ErrTOTPRequired     = errors.New("a current TOTP code is required")
	ErrCustomerNotFound = errors.New("customer not found")
)
