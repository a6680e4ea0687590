// Package controlapi implements the operator facing gRPC API of the manager.
// Reads are served from the store; mutations go through the coordinator.
package controlapi

import (
	"errors"

	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/coordinator"
	"github.com/moby/tapkit/manager/state/store"
)

var (
	errInvalidArgument = errors.New("invalid argument")
)

// Server is the Control API gRPC server.
type Server struct {
	store       *store.MemoryStore
	coordinator *coordinator.Coordinator
	allocator   *sessionid.Allocator
}

// New creates a Control API server.
func New(opts ...ServerOption) (*Server, error) {
	var s Server

	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	if s.store == nil {
		return nil, errors.New("no memory store provided")
	}
	if s.coordinator == nil {
		return nil, errors.New("no coordinator provided")
	}
	return &s, nil
}

// ServerOption is a functional argument to configure a new server.
type ServerOption func(*Server) error

// WithMemoryStore configures the server's memory store.
func WithMemoryStore(store *store.MemoryStore) ServerOption {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithCoordinator configures the coordinator applying mutations.
func WithCoordinator(c *coordinator.Coordinator) ServerOption {
	return func(s *Server) error {
		s.coordinator = c
		return nil
	}
}

// WithAllocator configures the allocator used to report the session
// identifiers of tap services.
func WithAllocator(a *sessionid.Allocator) ServerOption {
	return func(s *Server) error {
		s.allocator = a
		return nil
	}
}
