package domain

import "errors"

var (
	ErrDuplicateChannel = errors.New("channel already exists")
	ErrUnknownChannel   = errors.New("channel not found")
	ErrInvalidKind      = errors.New("invalid channel kind")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrEndpointNotReady = errors.New("endpoint not open")
	ErrSessionClosed    = errors.New("transport session closed")
)
