package sessionstore

import "errors"

var (
	ErrAlreadyAuthenticated = errors.New("session already authenticated")

	// ErrAutoLoginFailed wraps a login failure that happened right
	// after a successful registration: the account exists, the
	// session does not.
	ErrAutoLoginFailed = errors.New("registration succeeded but login failed")
)
