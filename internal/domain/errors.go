package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyExists     = errors.New("already exists")
	ErrSessionFailed     = errors.New("session failed")
	ErrUpstreamProtected = errors.New("upstream protected")
	ErrUnsupported       = errors.New("unsupported operation")
)
