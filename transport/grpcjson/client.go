package grpcjson

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"goa.design/bridge/agentref"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/eventlog"
)

// Client is the symmetrical client-side stub for ServiceDesc, used by
// pluginbridge to reach a remote coordinator.Server over grpc. It
// satisfies pluginbridge.Coordinator.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an established grpc.ClientConn. Callers dial with
// grpc.NewClient(addr, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcjson.CallContentSubtype())), ...)
// so every call on this stub negotiates the json codec.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

var _ interface {
	CreateSession(ctx context.Context, description string) (eventlog.Session, error)
	GetSession(ctx context.Context, sessionID string) (eventlog.Session, error)
	SubmitRequest(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, payload []byte) (string, error)
	Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error)
} = (*Client)(nil)

func (c *Client) CreateSession(ctx context.Context, description string) (eventlog.Session, error) {
	req := &CreateSessionRequest{Description: description}
	resp := new(CreateSessionResponse)
	if err := c.cc.Invoke(ctx, "/bridge.Coordinator/CreateSession", req, resp); err != nil {
		return eventlog.Session{}, fromStatus(err)
	}
	return wireToSession(resp.Session), nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (eventlog.Session, error) {
	req := &GetSessionRequest{SessionID: sessionID}
	resp := new(GetSessionResponse)
	if err := c.cc.Invoke(ctx, "/bridge.Coordinator/GetSession", req, resp); err != nil {
		return eventlog.Session{}, fromStatus(err)
	}
	return wireToSession(resp.Session), nil
}

func (c *Client) ListSessions(ctx context.Context, cursor string, limit int) ([]eventlog.Session, string, error) {
	req := &ListSessionsRequest{PageCursor: cursor, Limit: int32(limit)}
	resp := new(ListSessionsResponse)
	if err := c.cc.Invoke(ctx, "/bridge.Coordinator/ListSessions", req, resp); err != nil {
		return nil, "", fromStatus(err)
	}
	sessions := make([]eventlog.Session, len(resp.Sessions))
	for i, s := range resp.Sessions {
		sessions[i] = wireToSession(s)
	}
	return sessions, resp.NextCursor, nil
}

func (c *Client) SubmitRequest(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, payload []byte) (string, error) {
	req := &SubmitRequestRequest{SessionID: sessionID, TurnID: turnID, AgentName: agentName.String(), Payload: payload}
	resp := new(SubmitRequestResponse)
	if err := c.cc.Invoke(ctx, "/bridge.Coordinator/SubmitRequest", req, resp); err != nil {
		return "", fromStatus(err)
	}
	return resp.EventID, nil
}

func (c *Client) SubmitResponse(ctx context.Context, sessionID, turnID string, payload []byte) (string, error) {
	req := &SubmitResponseRequest{SessionID: sessionID, TurnID: turnID, Payload: payload}
	resp := new(SubmitResponseResponse)
	if err := c.cc.Invoke(ctx, "/bridge.Coordinator/SubmitResponse", req, resp); err != nil {
		return "", fromStatus(err)
	}
	return resp.EventID, nil
}

// defaultSubscribeBuffer bounds the client's local delivery channel when
// the caller (e.g. a pluginbridge.Config with SubscribeBufferSize unset)
// does not request a specific size.
const defaultSubscribeBuffer = 64

// Subscribe opens the Subscribe server-stream and adapts it into a
// broadcast.Subscription, so pluginbridge's stream reader task consumes a
// remote subscription through the same shape it uses for an in-process
// broadcast.Hub. bufSize bounds both the wire-level request (forwarded to
// the server's Broadcaster) and this client's own local delivery channel
// between the grpc stream and the consumer; zero or negative uses
// defaultSubscribeBuffer.
func (c *Client) Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error) {
	if bufSize <= 0 {
		bufSize = defaultSubscribeBuffer
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.cc.NewStream(streamCtx, &ServiceDesc.Streams[0], "/bridge.Coordinator/Subscribe")
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	req := &SubscribeRequest{
		SessionID:        sessionID,
		ResumeFromSeq:    resumeFrom,
		HasResumeFromSeq: resumeFrom > 0,
		BufferSize:       int32(bufSize),
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fromStatus(err)
	}

	out := make(chan broadcast.Delivery, bufSize)
	go func() {
		defer close(out)
		for {
			wire := new(EventWire)
			if err := stream.RecvMsg(wire); err != nil {
				if streamCtx.Err() == nil {
					out <- broadcast.Delivery{Err: fromStatus(err)}
				}
				return
			}
			out <- broadcast.Delivery{Event: wireToEvent(wire)}
		}
	}()

	return broadcast.NewSubscription(sessionID, sessionID, out, cancel), nil
}

func wireToSession(w SessionWire) eventlog.Session {
	return eventlog.Session{ID: w.ID, CreatedAt: time.Unix(0, w.CreatedAtNS), Description: w.Description}
}

func wireToEvent(w *EventWire) eventlog.Event {
	return eventlog.Event{
		EventID:     w.EventID,
		SessionID:   w.SessionID,
		Sequence:    w.Sequence,
		Timestamp:   time.Unix(0, w.TimestampNS),
		TurnID:      w.TurnID,
		AgentName:   agentref.Ident(w.AgentName),
		PayloadKind: eventlog.PayloadKind(w.PayloadKind),
		Payload:     w.Payload,
	}
}
