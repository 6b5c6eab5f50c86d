package service

import "errors"

// Sentinel errors for the service layer. The HTTP layer maps each of them to
// exactly one status code; anything else is an internal error.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrConflict        = errors.New("username already exists")
	ErrNotFound        = errors.New("file not found")
	ErrFileTooLarge    = errors.New("upload exceeds maximum allowed size")
)
