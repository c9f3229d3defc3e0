// Package grpcjson wires the Server Coordinator's RPC surface (spec.md §6)
// onto a real google.golang.org/grpc.Server. Protobuf code generation is a
// declared non-goal (spec.md §1), so the wire messages below are plain Go
// structs carried over gRPC using a custom "json" encoding.Codec (codec.go)
// rather than compiler-generated protobuf bindings. The ServiceDesc
// (server.go) and client stub (client.go) are hand-assembled the way
// goa-ai's generated gen/grpc/*/{server,client} packages would be, minus
// the generator.
package grpcjson

import (
	"goa.design/bridge/eventlog"
)

// SessionWire is the wire shape of eventlog.Session.
type SessionWire struct {
	ID          string `json:"id"`
	CreatedAtNS int64  `json:"created_at_ns"`
	Description string `json:"description"`
}

// EventWire is the wire shape of eventlog.Event (spec.md §6's SessionEvent).
type EventWire struct {
	EventID     string `json:"event_id"`
	SessionID   string `json:"session_id"`
	Sequence    uint64 `json:"sequence"`
	TimestampNS int64  `json:"timestamp_ns"`
	TurnID      string `json:"turn_id"`
	AgentName   string `json:"agent_name"`
	PayloadKind string `json:"payload_kind"`
	Payload     []byte `json:"payload"`
}

// CreateSessionRequest is the payload for the CreateSession unary RPC.
type CreateSessionRequest struct {
	Description string `json:"description"`
}

// CreateSessionResponse carries the newly created session.
type CreateSessionResponse struct {
	Session SessionWire `json:"session"`
}

// GetSessionRequest is the payload for the GetSession unary RPC.
type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

// GetSessionResponse carries the looked-up session.
type GetSessionResponse struct {
	Session SessionWire `json:"session"`
}

// ListSessionsRequest is the payload for the ListSessions unary RPC.
type ListSessionsRequest struct {
	PageCursor string `json:"page_cursor"`
	Limit      int32  `json:"limit"`
}

// ListSessionsResponse carries a page of sessions plus a resume cursor.
type ListSessionsResponse struct {
	Sessions   []SessionWire `json:"sessions"`
	NextCursor string        `json:"next_cursor"`
}

// SubmitRequestRequest is the payload for the SubmitRequest unary RPC.
type SubmitRequestRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	AgentName string `json:"agent_name"`
	Payload   []byte `json:"payload"`
}

// SubmitRequestResponse carries the appended event's id.
type SubmitRequestResponse struct {
	EventID string `json:"event_id"`
}

// SubmitResponseRequest is the payload for the SubmitResponse unary RPC.
type SubmitResponseRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Payload   []byte `json:"payload"`
}

// SubmitResponseResponse carries the appended event's id.
type SubmitResponseResponse struct {
	EventID string `json:"event_id"`
}

// SubscribeRequest is the payload that opens the Subscribe server-stream.
type SubscribeRequest struct {
	SessionID        string `json:"session_id"`
	ResumeFromSeq    uint64 `json:"resume_from_sequence"`
	HasResumeFromSeq bool   `json:"has_resume_from_sequence"`
	// BufferSize carries spec.md §6's subscribe_buffer_size: zero means
	// let the server pick its default per-subscriber buffer bound.
	BufferSize int32 `json:"buffer_size"`
}

func sessionToWire(s eventlog.Session) SessionWire {
	return SessionWire{ID: s.ID, CreatedAtNS: s.CreatedAt.UnixNano(), Description: s.Description}
}
