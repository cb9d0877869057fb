package store

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomNumberTaken     = errors.New("room number already exists")
	ErrSessionNotFound     = errors.New("cleaning session not found")
	ErrOpenSessionExists   = errors.New("room already has an open cleaning session")
	ErrAuthSessionNotFound = errors.New("session not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)
