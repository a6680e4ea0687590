package controlapi

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/state/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CreateTapFlow creates and programs a tap flow.
// - Returns `InvalidArgument` if the TapFlow is malformed.
// - Returns `NotFound` if the tap service or the source port does not exist.
// - Returns `PermissionDenied` if either belongs to another tenant.
func (s *Server) CreateTapFlow(ctx context.Context, request *api.CreateTapFlowRequest) (*api.CreateTapFlowResponse, error) {
	flow, err := s.coordinator.CreateTapFlow(ctx, request.TapFlow)
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.CreateTapFlowResponse{TapFlow: flow}, nil
}

// GetTapFlow returns a TapFlow given a TapFlowID.
func (s *Server) GetTapFlow(ctx context.Context, request *api.GetTapFlowRequest) (*api.GetTapFlowResponse, error) {
	if request.TapFlowID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}

	var flow *api.TapFlow
	s.store.View(func(tx store.ReadTx) {
		flow = store.GetTapFlow(tx, request.TapFlowID)
	})
	if flow == nil {
		return nil, status.Errorf(codes.NotFound, "tap flow %s not found", request.TapFlowID)
	}
	return &api.GetTapFlowResponse{TapFlow: flow}, nil
}

// ListTapFlows returns the tap flows matching the tenant and tap service
// filters.
func (s *Server) ListTapFlows(ctx context.Context, request *api.ListTapFlowsRequest) (*api.ListTapFlowsResponse, error) {
	var (
		flows []*api.TapFlow
		err   error
	)
	s.store.View(func(tx store.ReadTx) {
		switch {
		case request.TapServiceID != "":
			flows, err = store.FindTapFlows(tx, store.ByTapServiceID(request.TapServiceID))
		case request.Tenant != "":
			flows, err = store.FindTapFlows(tx, store.ByTenant(request.Tenant))
		default:
			flows, err = store.FindTapFlows(tx, store.All)
		}
	})
	if err != nil {
		return nil, err
	}

	if request.TapServiceID != "" && request.Tenant != "" {
		filtered := flows[:0]
		for _, f := range flows {
			if f.Tenant == request.Tenant {
				filtered = append(filtered, f)
			}
		}
		flows = filtered
	}
	return &api.ListTapFlowsResponse{TapFlows: flows}, nil
}

// DeleteTapFlow deletes a tap flow.
func (s *Server) DeleteTapFlow(ctx context.Context, request *api.DeleteTapFlowRequest) (*api.DeleteTapFlowResponse, error) {
	if request.TapFlowID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}
	if err := s.coordinator.DeleteTapFlow(ctx, request.TapFlowID); err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.DeleteTapFlowResponse{}, nil
}
