package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "flashdraft.v1.DraftService"

const (
	applyActionMethod      = "/" + ServiceName + "/ApplyAction"
	getDraftStateMethod    = "/" + ServiceName + "/GetDraftState"
	replayToPositionMethod = "/" + ServiceName + "/ReplayToPosition"
	listDraftsMethod       = "/" + ServiceName + "/ListDrafts"
	streamEventsMethod     = "/" + ServiceName + "/StreamEvents"
)

// DraftServiceServer is the server API for the draft service. Requests and
// responses are JSON-shaped documents carried as google.protobuf.Struct.
type DraftServiceServer interface {
	ApplyAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDraftState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReplayToPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDrafts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StreamEvents(*structpb.Struct, EventStream) error
}

// EventStream is the server side of StreamEvents
type EventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type eventStream struct {
	gogrpc.ServerStream
}

func (s *eventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterDraftServiceServer registers srv on s
func RegisterDraftServiceServer(s gogrpc.ServiceRegistrar, srv DraftServiceServer) {
	s.RegisterService(&DraftServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(DraftServiceServer, context.Context, *Req) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, gogrpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor gogrpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DraftServiceServer), ctx, in)
		}
		info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DraftServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamEventsHandler(srv interface{}, stream gogrpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DraftServiceServer).StreamEvents(in, &eventStream{stream})
}

// DraftServiceDesc describes the draft service for registration
var DraftServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DraftServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{
			MethodName: "ApplyAction",
			Handler: unaryHandler(applyActionMethod, func(s DraftServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ApplyAction(ctx, in)
			}),
		},
		{
			MethodName: "GetDraftState",
			Handler: unaryHandler(getDraftStateMethod, func(s DraftServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetDraftState(ctx, in)
			}),
		},
		{
			MethodName: "ReplayToPosition",
			Handler: unaryHandler(replayToPositionMethod, func(s DraftServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ReplayToPosition(ctx, in)
			}),
		},
		{
			MethodName: "ListDrafts",
			Handler: unaryHandler(listDraftsMethod, func(s DraftServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.ListDrafts(ctx, in)
			}),
		},
	},
	Streams: []gogrpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
}

// Client calls the draft service over a client connection
type Client struct {
	cc gogrpc.ClientConnInterface
}

// NewClient wraps a connection
func NewClient(cc gogrpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in interface{}, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApplyAction(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, applyActionMethod, in, opts...)
}

func (c *Client) GetDraftState(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, getDraftStateMethod, in, opts...)
}

func (c *Client) ReplayToPosition(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, replayToPositionMethod, in, opts...)
}

func (c *Client) ListDrafts(ctx context.Context, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, listDraftsMethod, &emptypb.Empty{}, opts...)
}

// StreamEvents opens an event stream. in may name a draftId to filter on.
func (c *Client) StreamEvents(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (gogrpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &DraftServiceDesc.Streams[0], streamEventsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &gogrpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
