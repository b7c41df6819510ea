package auth

import (
	"errors"
	"fmt"
)

var (
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenExpired       = fmt.Errorf("%w: expired", ErrTokenInvalid)
	ErrInvalidCredentials = errors.New("auth: username or password invalid")
	ErrAccessDenied       = errors.New("auth: access denied")
	ErrWeakSecret         = errors.New("auth: signing secret must be at least 32 bytes")
)
