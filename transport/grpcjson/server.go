package grpcjson

import (
	"context"

	"google.golang.org/grpc"

	"goa.design/bridge/agentref"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/coordinator"
	"goa.design/bridge/eventlog"
)

// Coordinator is the subset of coordinator.Server's method set this
// transport adapter serves. coordinator.Server satisfies it directly.
type Coordinator interface {
	CreateSession(ctx context.Context, description string) (eventlog.Session, error)
	GetSession(ctx context.Context, sessionID string) (eventlog.Session, error)
	ListSessions(ctx context.Context, cursor string, limit int) (coordinator.Page, error)
	SubmitRequest(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, payload []byte) (string, error)
	SubmitResponse(ctx context.Context, sessionID, turnID string, payload []byte) (string, error)
	Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error)
}

// Server adapts a Coordinator onto the §6 gRPC surface, using the json
// codec registered in codec.go.
type Server struct {
	coord Coordinator
}

// NewServer wraps coord for registration with a grpc.Server via Register.
func NewServer(coord Coordinator) *Server {
	return &Server{coord: coord}
}

// Register attaches this adapter's ServiceDesc to s.
func (srv *Server) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func (srv *Server) createSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	sess, err := srv.coord.CreateSession(ctx, req.Description)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateSessionResponse{Session: sessionToWire(sess)}, nil
}

func (srv *Server) getSession(ctx context.Context, req *GetSessionRequest) (*GetSessionResponse, error) {
	sess, err := srv.coord.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetSessionResponse{Session: sessionToWire(sess)}, nil
}

func (srv *Server) listSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	page, err := srv.coord.ListSessions(ctx, req.PageCursor, int(req.Limit))
	if err != nil {
		return nil, toStatus(err)
	}
	wire := make([]SessionWire, len(page.Sessions))
	for i, s := range page.Sessions {
		wire[i] = sessionToWire(s)
	}
	return &ListSessionsResponse{Sessions: wire, NextCursor: page.NextCursor}, nil
}

func (srv *Server) submitRequest(ctx context.Context, req *SubmitRequestRequest) (*SubmitRequestResponse, error) {
	eventID, err := srv.coord.SubmitRequest(ctx, req.SessionID, req.TurnID, agentref.Ident(req.AgentName), req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitRequestResponse{EventID: eventID}, nil
}

func (srv *Server) submitResponse(ctx context.Context, req *SubmitResponseRequest) (*SubmitResponseResponse, error) {
	eventID, err := srv.coord.SubmitResponse(ctx, req.SessionID, req.TurnID, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponseResponse{EventID: eventID}, nil
}

func (srv *Server) subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	sub, err := srv.coord.Subscribe(ctx, req.SessionID, req.ResumeFromSeq, int(req.BufferSize))
	if err != nil {
		return toStatus(err)
	}
	defer sub.Cancel()

	for {
		select {
		case d, ok := <-sub.Deliveries:
			if !ok {
				return nil
			}
			if d.Err != nil {
				return toStatus(d.Err)
			}
			if err := stream.SendMsg(&EventWire{
				EventID:     d.Event.EventID,
				SessionID:   d.Event.SessionID,
				Sequence:    d.Event.Sequence,
				TimestampNS: d.Event.Timestamp.UnixNano(),
				TurnID:      d.Event.TurnID,
				AgentName:   d.Event.AgentName.String(),
				PayloadKind: string(d.Event.PayloadKind),
				Payload:     d.Event.Payload,
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return toStatus(ctx.Err())
		}
	}
}

func _Coordinator_CreateSession_Handler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.createSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bridge.Coordinator/CreateSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.createSession(ctx, req.(*CreateSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_GetSession_Handler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.getSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bridge.Coordinator/GetSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.getSession(ctx, req.(*GetSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_ListSessions_Handler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListSessionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.listSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bridge.Coordinator/ListSessions"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.listSessions(ctx, req.(*ListSessionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_SubmitRequest_Handler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitRequestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.submitRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bridge.Coordinator/SubmitRequest"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.submitRequest(ctx, req.(*SubmitRequestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_SubmitResponse_Handler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitResponseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.submitResponse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bridge.Coordinator/SubmitResponse"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.submitResponse(ctx, req.(*SubmitResponseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_Subscribe_Handler(srvIface any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	srv := srvIface.(*Server)
	return srv.subscribe(req, stream)
}

// ServiceDesc is the hand-assembled equivalent of a goa/protoc-generated
// gen/grpc/bridge/server.ServiceDesc: one entry per §6 RPC, five unary plus
// one server-stream.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bridge.Coordinator",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: _Coordinator_CreateSession_Handler},
		{MethodName: "GetSession", Handler: _Coordinator_GetSession_Handler},
		{MethodName: "ListSessions", Handler: _Coordinator_ListSessions_Handler},
		{MethodName: "SubmitRequest", Handler: _Coordinator_SubmitRequest_Handler},
		{MethodName: "SubmitResponse", Handler: _Coordinator_SubmitResponse_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _Coordinator_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "bridge/grpcjson.proto",
}
