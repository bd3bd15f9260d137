package inventory

import "errors"

var (
	ErrNotFound          = errors.New("inventory: not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrUnauthenticated   = errors.New("inventory: owner required")
	ErrInvalid           = errors.New("inventory: invalid input")
	ErrUnavailable       = errors.New("inventory: store unavailable")
)
