package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// Methods carried by a CastMessage. They name the agent operation the
// message asks for.
const (
	MethodCreateTapService = "create_tap_service"
	MethodDeleteTapService = "delete_tap_service"
	MethodCreateTapFlow    = "create_tap_flow"
	MethodDeleteTapFlow    = "delete_tap_flow"

	// MethodSessionReady is sent once when a session stream starts. Casts
	// published after it are delivered to the agent.
	MethodSessionReady = "session_ready"
)

// Kinds of objects whose status an agent reports.
const (
	KindTapService = "tap_service"
	KindTapFlow    = "tap_flow"
)

// RegisterRequest opens an agent session.
type RegisterRequest struct {
	Host string `json:"host"`
	// DriverType is the agent driver, "ovs" for the switch pipeline.
	DriverType string `json:"driver_type"`
}

// RegisterResponse carries the session assigned to the agent.
type RegisterResponse struct {
	SessionID string `json:"session_id"`
}

// SessionRequest subscribes to the casts addressed to an agent.
type SessionRequest struct {
	Host      string `json:"host"`
	SessionID string `json:"session_id"`
}

// CastMessage is a fire-and-forget request to program or unprogram a mirror
// session on a host. An empty Host addresses every agent.
type CastMessage struct {
	Method string `json:"method"`
	Host   string `json:"host,omitempty"`
	TaasID uint32 `json:"taas_id"`

	TapService *TapService `json:"tap_service,omitempty"`
	TapFlow    *TapFlow    `json:"tap_flow,omitempty"`

	// Port is the tap service port for service messages and the source
	// port for flow messages.
	Port *Port `json:"port,omitempty"`
	// TapServicePort is the destination port of the flow's tap service.
	TapServicePort *Port `json:"tap_service_port,omitempty"`
	// PortMAC is the MAC address of the source port of a flow. Deletes
	// carry it so an agent that lost its local state can still match the
	// ingress flow.
	PortMAC string `json:"port_mac,omitempty"`
	// VLANFilter is the parsed VLAN filter of a tap flow.
	VLANFilter []int `json:"vlan_filter,omitempty"`
}

// ObjectID returns the id of the session the message refers to.
func (m *CastMessage) ObjectID() string {
	switch {
	case m.TapService != nil:
		return m.TapService.ID
	case m.TapFlow != nil:
		return m.TapFlow.ID
	}
	return ""
}

// UpdateStatusRequest reports the outcome of a cast.
type UpdateStatusRequest struct {
	Host      string `json:"host"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	Status    Status `json:"status"`
}

// UpdateStatusResponse is empty.
type UpdateStatusResponse struct{}

// SyncRequest asks the manager to re-send every session placed on Host.
type SyncRequest struct {
	Host      string `json:"host"`
	SessionID string `json:"session_id"`
}

// SyncResponse reports how many casts were re-sent.
type SyncResponse struct {
	Casts int `json:"casts"`
}

// HeartbeatRequest keeps an agent session alive.
type HeartbeatRequest struct {
	Host      string `json:"host"`
	SessionID string `json:"session_id"`
}

// HeartbeatResponse carries the period within which the next heartbeat must
// arrive.
type HeartbeatResponse struct {
	Period time.Duration `json:"period"`
}

// DispatcherServer is the manager side of the agent protocol.
type DispatcherServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Session(*SessionRequest, Dispatcher_SessionServer) error
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*UpdateStatusResponse, error)
	SyncTapResources(context.Context, *SyncRequest) (*SyncResponse, error)
}

// DispatcherClient is the agent side of the agent protocol.
type DispatcherClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Session(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (Dispatcher_SessionClient, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error)
	SyncTapResources(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error)
}

// Dispatcher_SessionServer is the server half of the Session stream.
type Dispatcher_SessionServer interface {
	Send(*CastMessage) error
	grpc.ServerStream
}

// Dispatcher_SessionClient is the client half of the Session stream.
type Dispatcher_SessionClient interface {
	Recv() (*CastMessage, error)
	grpc.ClientStream
}

const dispatcherService = "tapkit.Dispatcher"

var dispatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: dispatcherService,
	HandlerType: (*DispatcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    unaryHandler("/"+dispatcherService+"/Register", DispatcherServer.Register),
		},
		{
			MethodName: "Heartbeat",
			Handler:    unaryHandler("/"+dispatcherService+"/Heartbeat", DispatcherServer.Heartbeat),
		},
		{
			MethodName: "UpdateStatus",
			Handler:    unaryHandler("/"+dispatcherService+"/UpdateStatus", DispatcherServer.UpdateStatus),
		},
		{
			MethodName: "SyncTapResources",
			Handler:    unaryHandler("/"+dispatcherService+"/SyncTapResources", DispatcherServer.SyncTapResources),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       dispatcherSessionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "api/dispatcher.go",
}

// RegisterDispatcherServer registers srv with s.
func RegisterDispatcherServer(s *grpc.Server, srv DispatcherServer) {
	s.RegisterService(&dispatcherServiceDesc, srv)
}

func dispatcherSessionHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(SessionRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DispatcherServer).Session(m, &dispatcherSessionServer{stream})
}

type dispatcherSessionServer struct {
	grpc.ServerStream
}

func (x *dispatcherSessionServer) Send(m *CastMessage) error {
	return x.ServerStream.SendMsg(m)
}

type dispatcherClient struct {
	cc grpc.ClientConnInterface
}

// NewDispatcherClient returns a client for the agent protocol.
func NewDispatcherClient(cc grpc.ClientConnInterface) DispatcherClient {
	return &dispatcherClient{cc}
}

func (c *dispatcherClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, "/"+dispatcherService+"/Register", in, opts...)
}

func (c *dispatcherClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	return invoke[HeartbeatResponse](ctx, c.cc, "/"+dispatcherService+"/Heartbeat", in, opts...)
}

func (c *dispatcherClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	return invoke[UpdateStatusResponse](ctx, c.cc, "/"+dispatcherService+"/UpdateStatus", in, opts...)
}

func (c *dispatcherClient) SyncTapResources(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, "/"+dispatcherService+"/SyncTapResources", in, opts...)
}

func (c *dispatcherClient) Session(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (Dispatcher_SessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &dispatcherServiceDesc.Streams[0], "/"+dispatcherService+"/Session", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &dispatcherSessionClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type dispatcherSessionClient struct {
	grpc.ClientStream
}

func (x *dispatcherSessionClient) Recv() (*CastMessage, error) {
	m := new(CastMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
