package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "investigator.v1.Investigator"

const (
	investigateMethod       = "/" + ServiceName + "/Investigate"
	getCurrentContextMethod = "/" + ServiceName + "/GetCurrentContext"
	clearContextMethod      = "/" + ServiceName + "/ClearContext"
	transitionStatusMethod  = "/" + ServiceName + "/TransitionStatus"
)

// InvestigatorServer is the server API for the Investigator service.
// Messages are well-known types so no generated code is required.
type InvestigatorServer interface {
	Investigate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetCurrentContext(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ClearContext(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// TransitionStatus moves the current incident to the named status, e.g. "remediating".
	TransitionStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// InvestigatorServiceDesc describes the Investigator service for grpc.Server.RegisterService.
var InvestigatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvestigatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Investigate", Handler: investigateHandler},
		{MethodName: "GetCurrentContext", Handler: getCurrentContextHandler},
		{MethodName: "ClearContext", Handler: clearContextHandler},
		{MethodName: "TransitionStatus", Handler: transitionStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "investigator/v1/investigator.proto",
}

// RegisterInvestigatorServer registers srv on s.
func RegisterInvestigatorServer(s grpc.ServiceRegistrar, srv InvestigatorServer) {
	s.RegisterService(&InvestigatorServiceDesc, srv)
}

func investigateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvestigatorServer).Investigate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: investigateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvestigatorServer).Investigate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getCurrentContextHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvestigatorServer).GetCurrentContext(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCurrentContextMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvestigatorServer).GetCurrentContext(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func clearContextHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvestigatorServer).ClearContext(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: clearContextMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvestigatorServer).ClearContext(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func transitionStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvestigatorServer).TransitionStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transitionStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvestigatorServer).TransitionStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// InvestigatorClient calls the Investigator service and decodes responses into domain types.
type InvestigatorClient struct {
	cc grpc.ClientConnInterface
}

// NewInvestigatorClient wraps an established connection.
func NewInvestigatorClient(cc grpc.ClientConnInterface) *InvestigatorClient {
	return &InvestigatorClient{cc: cc}
}

// Investigate runs an investigation remotely.
func (c *InvestigatorClient) Investigate(ctx context.Context, text string, opts ...grpc.CallOption) (*models.IncidentContext, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, investigateMethod, wrapperspb.String(text), out, opts...); err != nil {
		return nil, err
	}
	return FromStruct(out)
}

// CurrentContext fetches the most recent investigation.
func (c *InvestigatorClient) CurrentContext(ctx context.Context, opts ...grpc.CallOption) (*models.IncidentContext, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getCurrentContextMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return FromStruct(out)
}

// ClearContext forgets the current investigation on the server.
func (c *InvestigatorClient) ClearContext(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, clearContextMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// TransitionStatus advances the current incident's lifecycle on the server.
func (c *InvestigatorClient) TransitionStatus(ctx context.Context, status models.IncidentStatus, opts ...grpc.CallOption) (*models.IncidentContext, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, transitionStatusMethod, wrapperspb.String(string(status)), out, opts...); err != nil {
		return nil, err
	}
	return FromStruct(out)
}
