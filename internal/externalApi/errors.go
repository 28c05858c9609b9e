package externalApi

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNotFound           = errors.New("error not found")
	ErrUnavailable        = errors.New("service unavailable")
)
