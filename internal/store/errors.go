package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by strict inserts when the email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)
