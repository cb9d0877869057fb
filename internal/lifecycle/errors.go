package lifecycle

import "errors"

var (
	ErrInvalidStatus     = errors.New("invalid room status")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
)
