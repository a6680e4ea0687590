package controlapi

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/state/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RegisterPort creates or replaces a port. Ports are owned by the network
// layer, which reports them here.
func (s *Server) RegisterPort(ctx context.Context, request *api.RegisterPortRequest) (*api.RegisterPortResponse, error) {
	p, err := s.coordinator.RegisterPort(ctx, request.Port)
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.RegisterPortResponse{Port: p}, nil
}

// RemovePort deletes every session referencing a port, then the port.
func (s *Server) RemovePort(ctx context.Context, request *api.RemovePortRequest) (*api.RemovePortResponse, error) {
	if request.PortID == "" {
		return nil, status.Errorf(codes.InvalidArgument, errInvalidArgument.Error())
	}
	if err := s.coordinator.RemovePort(ctx, request.PortID); err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.RemovePortResponse{}, nil
}

// ListPorts returns the ports of a tenant or of a host.
func (s *Server) ListPorts(ctx context.Context, request *api.ListPortsRequest) (*api.ListPortsResponse, error) {
	var (
		ports []*api.Port
		err   error
	)
	s.store.View(func(tx store.ReadTx) {
		switch {
		case request.Host != "":
			ports, err = store.FindPorts(tx, store.ByHost(request.Host))
		case request.Tenant != "":
			ports, err = store.FindPorts(tx, store.ByTenant(request.Tenant))
		default:
			ports, err = store.FindPorts(tx, store.All)
		}
	})
	if err != nil {
		return nil, err
	}
	if request.Host != "" && request.Tenant != "" {
		filtered := ports[:0]
		for _, p := range ports {
			if p.Tenant == request.Tenant {
				filtered = append(filtered, p)
			}
		}
		ports = filtered
	}
	return &api.ListPortsResponse{Ports: ports}, nil
}
