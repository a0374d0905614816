package service

import "errors"

var (
	// ErrInvalidInput covers malformed requests: empty subject, bad interval,
	// unknown references, date policy violations. Wrapped with detail.
	ErrInvalidInput = errors.New("invalid input")
)
