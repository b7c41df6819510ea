package users

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("users: not found")
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)
	ErrRoleNotFound = fmt.Errorf("%w: role", ErrNotFound)
	ErrEmailTaken   = errors.New("users: email already registered")
)
