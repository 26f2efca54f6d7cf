package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates a missing or invalid credential
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller does not own the resource
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness violation
	ErrConflict = errors.New("resource already exists")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUpstream indicates an external system (storage, vector store, provider) failed
	ErrUpstream = errors.New("upstream service failed")
)
