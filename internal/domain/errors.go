package domain

import "errors"

// Common errors used across the application.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeadlinePassed   = errors.New("response deadline has passed")
	ErrSyncTransport    = errors.New("sync transport failure")
	ErrNoActiveSession  = errors.New("no active sync session")
)

// APIError is the JSON error response body.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
