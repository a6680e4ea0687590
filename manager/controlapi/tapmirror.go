package controlapi

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/state/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CreateTapMirror creates a tap mirror and queues its southbound mirrors.
// - Returns `AlreadyExists` if a tunnel id is used by another tap mirror.
func (s *Server) CreateTapMirror(ctx context.Context, request *api.CreateTapMirrorRequest) (*api.CreateTapMirrorResponse, error) {
	m, err := s.coordinator.CreateTapMirror(ctx, request.TapMirror)
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.CreateTapMirrorResponse{TapMirror: m}, nil
}

// GetTapMirror returns a TapMirror given a TapMirrorID.
func (s *Server) GetTapMirror(ctx context.Context, request *api.GetTapMirrorRequest) (*api.GetTapMirrorResponse, error) {
	if request.TapMirrorID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}

	var m *api.TapMirror
	s.store.View(func(tx store.ReadTx) {
		m = store.GetTapMirror(tx, request.TapMirrorID)
	})
	if m == nil {
		return nil, status.Errorf(codes.NotFound, "tap mirror %s not found", request.TapMirrorID)
	}
	return &api.GetTapMirrorResponse{TapMirror: m}, nil
}

// ListTapMirrors returns the tap mirrors of a project, or all of them.
func (s *Server) ListTapMirrors(ctx context.Context, request *api.ListTapMirrorsRequest) (*api.ListTapMirrorsResponse, error) {
	var by store.By = store.All
	if request.Project != "" {
		by = store.ByTenant(request.Project)
	}
	var (
		mirrors []*api.TapMirror
		err     error
	)
	s.store.View(func(tx store.ReadTx) {
		mirrors, err = store.FindTapMirrors(tx, by)
	})
	if err != nil {
		return nil, err
	}
	return &api.ListTapMirrorsResponse{TapMirrors: mirrors}, nil
}

// DeleteTapMirror deletes a tap mirror.
func (s *Server) DeleteTapMirror(ctx context.Context, request *api.DeleteTapMirrorRequest) (*api.DeleteTapMirrorResponse, error) {
	if request.TapMirrorID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}
	if err := s.coordinator.DeleteTapMirror(ctx, request.TapMirrorID); err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.DeleteTapMirrorResponse{}, nil
}
