package convsyncv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DaemonService_GetStatus_FullMethodName = "/convsync.v1.DaemonService/GetStatus"

	ConversationService_ListSessions_FullMethodName        = "/convsync.v1.ConversationService/ListSessions"
	ConversationService_OpenConversation_FullMethodName    = "/convsync.v1.ConversationService/OpenConversation"
	ConversationService_CloseConversation_FullMethodName   = "/convsync.v1.ConversationService/CloseConversation"
	ConversationService_GetMessages_FullMethodName         = "/convsync.v1.ConversationService/GetMessages"
	ConversationService_SendText_FullMethodName            = "/convsync.v1.ConversationService/SendText"
	ConversationService_RetryMessage_FullMethodName        = "/convsync.v1.ConversationService/RetryMessage"
	ConversationService_LoadOlder_FullMethodName           = "/convsync.v1.ConversationService/LoadOlder"
	ConversationService_RefreshConversation_FullMethodName = "/convsync.v1.ConversationService/RefreshConversation"
	ConversationService_WatchConversation_FullMethodName   = "/convsync.v1.ConversationService/WatchConversation"
)

// DaemonServiceServer is the server API for DaemonService.
type DaemonServiceServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
}

// UnimplementedDaemonServiceServer can be embedded for forward compatibility.
type UnimplementedDaemonServiceServer struct{}

func (UnimplementedDaemonServiceServer) GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func RegisterDaemonServiceServer(s grpc.ServiceRegistrar, srv DaemonServiceServer) {
	s.RegisterService(&DaemonService_ServiceDesc, srv)
}

func _DaemonService_GetStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DaemonService_GetStatus_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var DaemonService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "convsync.v1.DaemonService",
	HandlerType: (*DaemonServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _DaemonService_GetStatus_Handler},
	},
	Metadata: "convsync/v1/daemon.proto",
}

// DaemonServiceClient is the client API for DaemonService.
type DaemonServiceClient interface {
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error)
}

type daemonServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDaemonServiceClient(cc grpc.ClientConnInterface) DaemonServiceClient {
	return &daemonServiceClient{cc}
}

func (c *daemonServiceClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	out := new(GetStatusResponse)
	if err := c.cc.Invoke(ctx, DaemonService_GetStatus_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ConversationServiceServer is the server API for ConversationService.
type ConversationServiceServer interface {
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	OpenConversation(context.Context, *OpenConversationRequest) (*OpenConversationResponse, error)
	CloseConversation(context.Context, *CloseConversationRequest) (*CloseConversationResponse, error)
	GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error)
	SendText(context.Context, *SendTextRequest) (*SendTextResponse, error)
	RetryMessage(context.Context, *RetryMessageRequest) (*RetryMessageResponse, error)
	LoadOlder(context.Context, *LoadOlderRequest) (*LoadOlderResponse, error)
	RefreshConversation(context.Context, *RefreshConversationRequest) (*RefreshConversationResponse, error)
	WatchConversation(*WatchConversationRequest, grpc.ServerStreamingServer[ConversationEvent]) error
}

// UnimplementedConversationServiceServer can be embedded for forward compatibility.
type UnimplementedConversationServiceServer struct{}

func (UnimplementedConversationServiceServer) ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
}
func (UnimplementedConversationServiceServer) OpenConversation(context.Context, *OpenConversationRequest) (*OpenConversationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenConversation not implemented")
}
func (UnimplementedConversationServiceServer) CloseConversation(context.Context, *CloseConversationRequest) (*CloseConversationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CloseConversation not implemented")
}
func (UnimplementedConversationServiceServer) GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetMessages not implemented")
}
func (UnimplementedConversationServiceServer) SendText(context.Context, *SendTextRequest) (*SendTextResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendText not implemented")
}
func (UnimplementedConversationServiceServer) RetryMessage(context.Context, *RetryMessageRequest) (*RetryMessageResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RetryMessage not implemented")
}
func (UnimplementedConversationServiceServer) LoadOlder(context.Context, *LoadOlderRequest) (*LoadOlderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method LoadOlder not implemented")
}
func (UnimplementedConversationServiceServer) RefreshConversation(context.Context, *RefreshConversationRequest) (*RefreshConversationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshConversation not implemented")
}
func (UnimplementedConversationServiceServer) WatchConversation(*WatchConversationRequest, grpc.ServerStreamingServer[ConversationEvent]) error {
	return status.Error(codes.Unimplemented, "method WatchConversation not implemented")
}

func RegisterConversationServiceServer(s grpc.ServiceRegistrar, srv ConversationServiceServer) {
	s.RegisterService(&ConversationService_ServiceDesc, srv)
}

// unary adapts a typed method into a grpc.MethodHandler.
func unary[Req, Resp any](fullMethod string, call func(ConversationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConversationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConversationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _ConversationService_WatchConversation_Handler(srv any, stream grpc.ServerStream) error {
	in := new(WatchConversationRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConversationServiceServer).WatchConversation(in, &grpc.GenericServerStream[WatchConversationRequest, ConversationEvent]{ServerStream: stream})
}

var ConversationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "convsync.v1.ConversationService",
	HandlerType: (*ConversationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: unary(ConversationService_ListSessions_FullMethodName, ConversationServiceServer.ListSessions)},
		{MethodName: "OpenConversation", Handler: unary(ConversationService_OpenConversation_FullMethodName, ConversationServiceServer.OpenConversation)},
		{MethodName: "CloseConversation", Handler: unary(ConversationService_CloseConversation_FullMethodName, ConversationServiceServer.CloseConversation)},
		{MethodName: "GetMessages", Handler: unary(ConversationService_GetMessages_FullMethodName, ConversationServiceServer.GetMessages)},
		{MethodName: "SendText", Handler: unary(ConversationService_SendText_FullMethodName, ConversationServiceServer.SendText)},
		{MethodName: "RetryMessage", Handler: unary(ConversationService_RetryMessage_FullMethodName, ConversationServiceServer.RetryMessage)},
		{MethodName: "LoadOlder", Handler: unary(ConversationService_LoadOlder_FullMethodName, ConversationServiceServer.LoadOlder)},
		{MethodName: "RefreshConversation", Handler: unary(ConversationService_RefreshConversation_FullMethodName, ConversationServiceServer.RefreshConversation)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchConversation",
			Handler:       _ConversationService_WatchConversation_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "convsync/v1/conversation.proto",
}

// ConversationServiceClient is the client API for ConversationService.
type ConversationServiceClient interface {
	ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error)
	OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*OpenConversationResponse, error)
	CloseConversation(ctx context.Context, in *CloseConversationRequest, opts ...grpc.CallOption) (*CloseConversationResponse, error)
	GetMessages(ctx context.Context, in *GetMessagesRequest, opts ...grpc.CallOption) (*GetMessagesResponse, error)
	SendText(ctx context.Context, in *SendTextRequest, opts ...grpc.CallOption) (*SendTextResponse, error)
	RetryMessage(ctx context.Context, in *RetryMessageRequest, opts ...grpc.CallOption) (*RetryMessageResponse, error)
	LoadOlder(ctx context.Context, in *LoadOlderRequest, opts ...grpc.CallOption) (*LoadOlderResponse, error)
	RefreshConversation(ctx context.Context, in *RefreshConversationRequest, opts ...grpc.CallOption) (*RefreshConversationResponse, error)
	WatchConversation(ctx context.Context, in *WatchConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ConversationEvent], error)
}

type conversationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewConversationServiceClient(cc grpc.ClientConnInterface) ConversationServiceClient {
	return &conversationServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *conversationServiceClient) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c.cc, ConversationService_ListSessions_FullMethodName, in, opts)
}

func (c *conversationServiceClient) OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*OpenConversationResponse, error) {
	return invoke[OpenConversationResponse](ctx, c.cc, ConversationService_OpenConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) CloseConversation(ctx context.Context, in *CloseConversationRequest, opts ...grpc.CallOption) (*CloseConversationResponse, error) {
	return invoke[CloseConversationResponse](ctx, c.cc, ConversationService_CloseConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) GetMessages(ctx context.Context, in *GetMessagesRequest, opts ...grpc.CallOption) (*GetMessagesResponse, error) {
	return invoke[GetMessagesResponse](ctx, c.cc, ConversationService_GetMessages_FullMethodName, in, opts)
}

func (c *conversationServiceClient) SendText(ctx context.Context, in *SendTextRequest, opts ...grpc.CallOption) (*SendTextResponse, error) {
	return invoke[SendTextResponse](ctx, c.cc, ConversationService_SendText_FullMethodName, in, opts)
}

func (c *conversationServiceClient) RetryMessage(ctx context.Context, in *RetryMessageRequest, opts ...grpc.CallOption) (*RetryMessageResponse, error) {
	return invoke[RetryMessageResponse](ctx, c.cc, ConversationService_RetryMessage_FullMethodName, in, opts)
}

func (c *conversationServiceClient) LoadOlder(ctx context.Context, in *LoadOlderRequest, opts ...grpc.CallOption) (*LoadOlderResponse, error) {
	return invoke[LoadOlderResponse](ctx, c.cc, ConversationService_LoadOlder_FullMethodName, in, opts)
}

func (c *conversationServiceClient) RefreshConversation(ctx context.Context, in *RefreshConversationRequest, opts ...grpc.CallOption) (*RefreshConversationResponse, error) {
	return invoke[RefreshConversationResponse](ctx, c.cc, ConversationService_RefreshConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) WatchConversation(ctx context.Context, in *WatchConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ConversationEvent], error) {
	stream, err := c.cc.NewStream(ctx, &ConversationService_ServiceDesc.Streams[0], ConversationService_WatchConversation_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchConversationRequest, ConversationEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
