package services

import (
	"errors"

	"sharedplay/repository"
)

var (
	ErrNotFound              = repository.ErrNotFound
	ErrCapacityExceeded      = repository.ErrCapacityExceeded
	ErrDuplicateLink         = repository.ErrDuplicateLink
	ErrTokenExpired          = errors.New("share link has expired")
	ErrSessionEnded          = errors.New("session has ended")
	ErrUnauthorized          = errors.New("not allowed")
	ErrInvalidTransition     = errors.New("invalid session state")
	ErrTokenGenerationFailed = errors.New("could not generate a unique share token")
	ErrSessionFull           = errors.New("session is full")
	ErrInvalidInput          = errors.New("invalid input")
)

// Reasons carried by a denied shared-state write.
const (
	ReasonNoControl = "No control"
	ReasonHostOnly  = "Host only"
)
