package hub

import "errors"

var (
	ErrInvalidRoom         = errors.New("invalid room")
	ErrEmptyMessage        = errors.New("empty message")
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrInvalidMessage      = errors.New("invalid message format")
	ErrNotRegistered       = errors.New("connection not registered")
	ErrNotJoined           = errors.New("not joined to room")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrHubClosed           = errors.New("hub closed")
)
