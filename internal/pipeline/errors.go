package pipeline

import "errors"

// Errors returned before a run starts. They never leave state behind.
var (
	ErrNotFound          = errors.New("chat not found")
	ErrForbidden         = errors.New("chat belongs to another user")
	ErrMissingCredential = errors.New("no completion API key configured")
	ErrInvalidStage      = errors.New("unknown stage")
	ErrInvalidInput      = errors.New("invalid input")
)
