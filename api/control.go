package api

import (
	"context"

	"google.golang.org/grpc"
)

type CreateTapServiceRequest struct {
	TapService *TapService `json:"tap_service"`
}

type CreateTapServiceResponse struct {
	TapService *TapService `json:"tap_service"`
}

type GetTapServiceRequest struct {
	TapServiceID string `json:"tap_service_id"`
}

type GetTapServiceResponse struct {
	TapService *TapService `json:"tap_service"`
	// TaasID is the session identifier bound to the service, zero if none.
	TaasID uint32 `json:"taas_id,omitempty"`
}

type ListTapServicesRequest struct {
	Tenant string `json:"tenant_id,omitempty"`
}

type ListTapServicesResponse struct {
	TapServices []*TapService `json:"tap_services"`
}

type DeleteTapServiceRequest struct {
	TapServiceID string `json:"tap_service_id"`
}

type DeleteTapServiceResponse struct{}

type CreateTapFlowRequest struct {
	TapFlow *TapFlow `json:"tap_flow"`
}

type CreateTapFlowResponse struct {
	TapFlow *TapFlow `json:"tap_flow"`
}

type GetTapFlowRequest struct {
	TapFlowID string `json:"tap_flow_id"`
}

type GetTapFlowResponse struct {
	TapFlow *TapFlow `json:"tap_flow"`
}

type ListTapFlowsRequest struct {
	Tenant       string `json:"tenant_id,omitempty"`
	TapServiceID string `json:"tap_service_id,omitempty"`
}

type ListTapFlowsResponse struct {
	TapFlows []*TapFlow `json:"tap_flows"`
}

type DeleteTapFlowRequest struct {
	TapFlowID string `json:"tap_flow_id"`
}

type DeleteTapFlowResponse struct{}

type CreateTapMirrorRequest struct {
	TapMirror *TapMirror `json:"tap_mirror"`
}

type CreateTapMirrorResponse struct {
	TapMirror *TapMirror `json:"tap_mirror"`
}

type GetTapMirrorRequest struct {
	TapMirrorID string `json:"tap_mirror_id"`
}

type GetTapMirrorResponse struct {
	TapMirror *TapMirror `json:"tap_mirror"`
}

type ListTapMirrorsRequest struct {
	Project string `json:"project_id,omitempty"`
}

type ListTapMirrorsResponse struct {
	TapMirrors []*TapMirror `json:"tap_mirrors"`
}

type DeleteTapMirrorRequest struct {
	TapMirrorID string `json:"tap_mirror_id"`
}

type DeleteTapMirrorResponse struct{}

type RegisterPortRequest struct {
	Port *Port `json:"port"`
}

type RegisterPortResponse struct {
	Port *Port `json:"port"`
}

type RemovePortRequest struct {
	PortID string `json:"port_id"`
}

type RemovePortResponse struct{}

type ListPortsRequest struct {
	Tenant string `json:"tenant_id,omitempty"`
	Host   string `json:"host,omitempty"`
}

type ListPortsResponse struct {
	Ports []*Port `json:"ports"`
}

// ControlServer is the operator facing API of the manager.
type ControlServer interface {
	CreateTapService(context.Context, *CreateTapServiceRequest) (*CreateTapServiceResponse, error)
	GetTapService(context.Context, *GetTapServiceRequest) (*GetTapServiceResponse, error)
	ListTapServices(context.Context, *ListTapServicesRequest) (*ListTapServicesResponse, error)
	DeleteTapService(context.Context, *DeleteTapServiceRequest) (*DeleteTapServiceResponse, error)

	CreateTapFlow(context.Context, *CreateTapFlowRequest) (*CreateTapFlowResponse, error)
	GetTapFlow(context.Context, *GetTapFlowRequest) (*GetTapFlowResponse, error)
	ListTapFlows(context.Context, *ListTapFlowsRequest) (*ListTapFlowsResponse, error)
	DeleteTapFlow(context.Context, *DeleteTapFlowRequest) (*DeleteTapFlowResponse, error)

	CreateTapMirror(context.Context, *CreateTapMirrorRequest) (*CreateTapMirrorResponse, error)
	GetTapMirror(context.Context, *GetTapMirrorRequest) (*GetTapMirrorResponse, error)
	ListTapMirrors(context.Context, *ListTapMirrorsRequest) (*ListTapMirrorsResponse, error)
	DeleteTapMirror(context.Context, *DeleteTapMirrorRequest) (*DeleteTapMirrorResponse, error)

	RegisterPort(context.Context, *RegisterPortRequest) (*RegisterPortResponse, error)
	RemovePort(context.Context, *RemovePortRequest) (*RemovePortResponse, error)
	ListPorts(context.Context, *ListPortsRequest) (*ListPortsResponse, error)
}

// ControlClient is the client of ControlServer.
type ControlClient interface {
	CreateTapService(ctx context.Context, in *CreateTapServiceRequest, opts ...grpc.CallOption) (*CreateTapServiceResponse, error)
	GetTapService(ctx context.Context, in *GetTapServiceRequest, opts ...grpc.CallOption) (*GetTapServiceResponse, error)
	ListTapServices(ctx context.Context, in *ListTapServicesRequest, opts ...grpc.CallOption) (*ListTapServicesResponse, error)
	DeleteTapService(ctx context.Context, in *DeleteTapServiceRequest, opts ...grpc.CallOption) (*DeleteTapServiceResponse, error)

	CreateTapFlow(ctx context.Context, in *CreateTapFlowRequest, opts ...grpc.CallOption) (*CreateTapFlowResponse, error)
	GetTapFlow(ctx context.Context, in *GetTapFlowRequest, opts ...grpc.CallOption) (*GetTapFlowResponse, error)
	ListTapFlows(ctx context.Context, in *ListTapFlowsRequest, opts ...grpc.CallOption) (*ListTapFlowsResponse, error)
	DeleteTapFlow(ctx context.Context, in *DeleteTapFlowRequest, opts ...grpc.CallOption) (*DeleteTapFlowResponse, error)

	CreateTapMirror(ctx context.Context, in *CreateTapMirrorRequest, opts ...grpc.CallOption) (*CreateTapMirrorResponse, error)
	GetTapMirror(ctx context.Context, in *GetTapMirrorRequest, opts ...grpc.CallOption) (*GetTapMirrorResponse, error)
	ListTapMirrors(ctx context.Context, in *ListTapMirrorsRequest, opts ...grpc.CallOption) (*ListTapMirrorsResponse, error)
	DeleteTapMirror(ctx context.Context, in *DeleteTapMirrorRequest, opts ...grpc.CallOption) (*DeleteTapMirrorResponse, error)

	RegisterPort(ctx context.Context, in *RegisterPortRequest, opts ...grpc.CallOption) (*RegisterPortResponse, error)
	RemovePort(ctx context.Context, in *RemovePortRequest, opts ...grpc.CallOption) (*RemovePortResponse, error)
	ListPorts(ctx context.Context, in *ListPortsRequest, opts ...grpc.CallOption) (*ListPortsResponse, error)
}

const controlService = "tapkit.Control"

func controlMethod(name string) string {
	return "/" + controlService + "/" + name
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlService,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateTapService", Handler: unaryHandler(controlMethod("CreateTapService"), ControlServer.CreateTapService)},
		{MethodName: "GetTapService", Handler: unaryHandler(controlMethod("GetTapService"), ControlServer.GetTapService)},
		{MethodName: "ListTapServices", Handler: unaryHandler(controlMethod("ListTapServices"), ControlServer.ListTapServices)},
		{MethodName: "DeleteTapService", Handler: unaryHandler(controlMethod("DeleteTapService"), ControlServer.DeleteTapService)},
		{MethodName: "CreateTapFlow", Handler: unaryHandler(controlMethod("CreateTapFlow"), ControlServer.CreateTapFlow)},
		{MethodName: "GetTapFlow", Handler: unaryHandler(controlMethod("GetTapFlow"), ControlServer.GetTapFlow)},
		{MethodName: "ListTapFlows", Handler: unaryHandler(controlMethod("ListTapFlows"), ControlServer.ListTapFlows)},
		{MethodName: "DeleteTapFlow", Handler: unaryHandler(controlMethod("DeleteTapFlow"), ControlServer.DeleteTapFlow)},
		{MethodName: "CreateTapMirror", Handler: unaryHandler(controlMethod("CreateTapMirror"), ControlServer.CreateTapMirror)},
		{MethodName: "GetTapMirror", Handler: unaryHandler(controlMethod("GetTapMirror"), ControlServer.GetTapMirror)},
		{MethodName: "ListTapMirrors", Handler: unaryHandler(controlMethod("ListTapMirrors"), ControlServer.ListTapMirrors)},
		{MethodName: "DeleteTapMirror", Handler: unaryHandler(controlMethod("DeleteTapMirror"), ControlServer.DeleteTapMirror)},
		{MethodName: "RegisterPort", Handler: unaryHandler(controlMethod("RegisterPort"), ControlServer.RegisterPort)},
		{MethodName: "RemovePort", Handler: unaryHandler(controlMethod("RemovePort"), ControlServer.RemovePort)},
		{MethodName: "ListPorts", Handler: unaryHandler(controlMethod("ListPorts"), ControlServer.ListPorts)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/control.go",
}

// RegisterControlServer registers srv with s.
func RegisterControlServer(s *grpc.Server, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

type controlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient returns a client for the control API.
func NewControlClient(cc grpc.ClientConnInterface) ControlClient {
	return &controlClient{cc}
}

func (c *controlClient) CreateTapService(ctx context.Context, in *CreateTapServiceRequest, opts ...grpc.CallOption) (*CreateTapServiceResponse, error) {
	return invoke[CreateTapServiceResponse](ctx, c.cc, controlMethod("CreateTapService"), in, opts...)
}

func (c *controlClient) GetTapService(ctx context.Context, in *GetTapServiceRequest, opts ...grpc.CallOption) (*GetTapServiceResponse, error) {
	return invoke[GetTapServiceResponse](ctx, c.cc, controlMethod("GetTapService"), in, opts...)
}

func (c *controlClient) ListTapServices(ctx context.Context, in *ListTapServicesRequest, opts ...grpc.CallOption) (*ListTapServicesResponse, error) {
	return invoke[ListTapServicesResponse](ctx, c.cc, controlMethod("ListTapServices"), in, opts...)
}

func (c *controlClient) DeleteTapService(ctx context.Context, in *DeleteTapServiceRequest, opts ...grpc.CallOption) (*DeleteTapServiceResponse, error) {
	return invoke[DeleteTapServiceResponse](ctx, c.cc, controlMethod("DeleteTapService"), in, opts...)
}

func (c *controlClient) CreateTapFlow(ctx context.Context, in *CreateTapFlowRequest, opts ...grpc.CallOption) (*CreateTapFlowResponse, error) {
	return invoke[CreateTapFlowResponse](ctx, c.cc, controlMethod("CreateTapFlow"), in, opts...)
}

func (c *controlClient) GetTapFlow(ctx context.Context, in *GetTapFlowRequest, opts ...grpc.CallOption) (*GetTapFlowResponse, error) {
	return invoke[GetTapFlowResponse](ctx, c.cc, controlMethod("GetTapFlow"), in, opts...)
}

func (c *controlClient) ListTapFlows(ctx context.Context, in *ListTapFlowsRequest, opts ...grpc.CallOption) (*ListTapFlowsResponse, error) {
	return invoke[ListTapFlowsResponse](ctx, c.cc, controlMethod("ListTapFlows"), in, opts...)
}

func (c *controlClient) DeleteTapFlow(ctx context.Context, in *DeleteTapFlowRequest, opts ...grpc.CallOption) (*DeleteTapFlowResponse, error) {
	return invoke[DeleteTapFlowResponse](ctx, c.cc, controlMethod("DeleteTapFlow"), in, opts...)
}

func (c *controlClient) CreateTapMirror(ctx context.Context, in *CreateTapMirrorRequest, opts ...grpc.CallOption) (*CreateTapMirrorResponse, error) {
	return invoke[CreateTapMirrorResponse](ctx, c.cc, controlMethod("CreateTapMirror"), in, opts...)
}

func (c *controlClient) GetTapMirror(ctx context.Context, in *GetTapMirrorRequest, opts ...grpc.CallOption) (*GetTapMirrorResponse, error) {
	return invoke[GetTapMirrorResponse](ctx, c.cc, controlMethod("GetTapMirror"), in, opts...)
}

func (c *controlClient) ListTapMirrors(ctx context.Context, in *ListTapMirrorsRequest, opts ...grpc.CallOption) (*ListTapMirrorsResponse, error) {
	return invoke[ListTapMirrorsResponse](ctx, c.cc, controlMethod("ListTapMirrors"), in, opts...)
}

func (c *controlClient) DeleteTapMirror(ctx context.Context, in *DeleteTapMirrorRequest, opts ...grpc.CallOption) (*DeleteTapMirrorResponse, error) {
	return invoke[DeleteTapMirrorResponse](ctx, c.cc, controlMethod("DeleteTapMirror"), in, opts...)
}

func (c *controlClient) RegisterPort(ctx context.Context, in *RegisterPortRequest, opts ...grpc.CallOption) (*RegisterPortResponse, error) {
	return invoke[RegisterPortResponse](ctx, c.cc, controlMethod("RegisterPort"), in, opts...)
}

func (c *controlClient) RemovePort(ctx context.Context, in *RemovePortRequest, opts ...grpc.CallOption) (*RemovePortResponse, error) {
	return invoke[RemovePortResponse](ctx, c.cc, controlMethod("RemovePort"), in, opts...)
}

func (c *controlClient) ListPorts(ctx context.Context, in *ListPortsRequest, opts ...grpc.CallOption) (*ListPortsResponse, error) {
	return invoke[ListPortsResponse](ctx, c.cc, controlMethod("ListPorts"), in, opts...)
}
