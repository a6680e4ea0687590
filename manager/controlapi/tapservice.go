package controlapi

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/state/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CreateTapService creates and programs a tap service.
// - Returns `InvalidArgument` if the TapService is malformed.
// - Returns `NotFound` if the port does not exist.
// - Returns `PermissionDenied` if the port belongs to another tenant.
// - Returns `ResourceExhausted` if no session identifier is free.
func (s *Server) CreateTapService(ctx context.Context, request *api.CreateTapServiceRequest) (*api.CreateTapServiceResponse, error) {
	svc, err := s.coordinator.CreateTapService(ctx, request.TapService)
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.CreateTapServiceResponse{TapService: svc}, nil
}

// GetTapService returns a TapService given a TapServiceID.
// - Returns `InvalidArgument` if TapServiceID is not provided.
// - Returns `NotFound` if the TapService is not found.
func (s *Server) GetTapService(ctx context.Context, request *api.GetTapServiceRequest) (*api.GetTapServiceResponse, error) {
	if request.TapServiceID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}

	var (
		svc    *api.TapService
		taasID uint32
	)
	s.store.View(func(tx store.ReadTx) {
		svc = store.GetTapService(tx, request.TapServiceID)
		if svc != nil && s.allocator != nil {
			taasID, _ = s.allocator.Lookup(tx, svc.ID)
		}
	})
	if svc == nil {
		return nil, status.Errorf(codes.NotFound, "tap service %s not found", request.TapServiceID)
	}
	return &api.GetTapServiceResponse{TapService: svc, TaasID: taasID}, nil
}

// ListTapServices returns the tap services of a tenant, or all of them.
func (s *Server) ListTapServices(ctx context.Context, request *api.ListTapServicesRequest) (*api.ListTapServicesResponse, error) {
	var by store.By = store.All
	if request.Tenant != "" {
		by = store.ByTenant(request.Tenant)
	}
	var (
		services []*api.TapService
		err      error
	)
	s.store.View(func(tx store.ReadTx) {
		services, err = store.FindTapServices(tx, by)
	})
	if err != nil {
		return nil, err
	}
	return &api.ListTapServicesResponse{TapServices: services}, nil
}

// DeleteTapService deletes a tap service and its tap flows.
// - Returns `InvalidArgument` if TapServiceID is not provided.
// - Returns `NotFound` if the TapService is not found.
func (s *Server) DeleteTapService(ctx context.Context, request *api.DeleteTapServiceRequest) (*api.DeleteTapServiceResponse, error) {
	if request.TapServiceID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}
	if err := s.coordinator.DeleteTapService(ctx, request.TapServiceID); err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.DeleteTapServiceResponse{}, nil
}
