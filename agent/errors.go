package agent

import (
	"errors"
)

var (
	// ErrClosed is returned when an operation fails because the resource is closed.
	ErrClosed = errors.New("agent: closed")

	errNodeNotRegistered = errors.New("node not registered")

	errAgentStarted = errors.New("agent: already started")

	errSessionClosed = errors.New("agent: session closed")
)
