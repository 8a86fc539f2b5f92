package database

import "errors"

var (
	// ErrShortCodeExists is returned when inserting a mapping whose
	// short code is already assigned, active or not.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrURLNotFound is returned when no mapping matches the requested
	// short code, or none matches the resolvable filter.
	ErrURLNotFound = errors.New("url not found")
)
