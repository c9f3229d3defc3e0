// Package eventlog is the Event Store: a durable, ordered, append-only log
// of session events plus session metadata (spec.md §4.1). It is modeled
// directly on the teacher's runlog.Store (cursor-based List) merged with
// its session.Store (session lifecycle), since this component owns both
// concerns that the teacher splits across two packages.
package eventlog

import (
	"context"
	"time"

	"goa.design/bridge/agentref"
)

// PayloadKind distinguishes a request event from its response.
type PayloadKind string

const (
	// Request marks an outbound intercepted model call forwarded to a human.
	Request PayloadKind = "request"
	// Response marks a human (or automated) reply to a prior request.
	Response PayloadKind = "response"
)

// Session is the durable identity of a logically related sequence of turns.
// Never mutated after CreateSession; never deleted by this package.
type Session struct {
	ID          string
	CreatedAt   time.Time
	Description string
}

// Event is one immutable row of a session's append-only log.
type Event struct {
	EventID     string
	SessionID   string
	Sequence    uint64
	Timestamp   time.Time
	TurnID      string
	AgentName   agentref.Ident
	PayloadKind PayloadKind
	Payload     []byte
}

// VisitFunc receives events in strictly increasing sequence order during a
// ReadEventsSince scan. Returning an error stops the scan and is propagated
// to the caller of ReadEventsSince.
type VisitFunc func(Event) error

// Store is the Event Store contract (spec.md §4.1). Per-session sequence
// allocation must be serializable: two concurrent AppendEvent calls for the
// same session produce distinct, contiguous sequence numbers; calls across
// different sessions may proceed concurrently.
//
// ReadEventsSince streams rather than materializes the full result, since
// request payloads may carry arbitrarily large tool definitions and
// conversation history.
type Store interface {
	// AppendEvent atomically allocates the next sequence number for
	// sessionID and persists the event. Returns bridgeerrors.KindSessionNotFound
	// if the session is unknown, or bridgeerrors.KindDuplicateResponse if a
	// response for this turnID already exists in this session.
	AppendEvent(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, kind PayloadKind, payload []byte) (eventID string, sequence uint64, err error)

	// ReadEventsSince streams, in order, every event in sessionID with
	// sequence > afterSequence, as of a snapshot taken at call time.
	ReadEventsSince(ctx context.Context, sessionID string, afterSequence uint64, visit VisitFunc) error

	// CreateSession mints a new session row. Returns
	// bridgeerrors.KindDuplicateSession if id already exists.
	CreateSession(ctx context.Context, id, description string) (Session, error)

	// GetSession returns bridgeerrors.KindSessionNotFound if id is unknown.
	GetSession(ctx context.Context, id string) (Session, error)

	// ListSessions returns a stable page ordered by (CreatedAt, ID). An
	// empty cursor starts from the beginning.
	ListSessions(ctx context.Context, cursor string, limit int) (sessions []Session, nextCursor string, err error)

	// HighWaterMark returns the current maximum sequence number appended
	// for sessionID, or 0 if none. Used by the Broadcaster to establish the
	// replay/live-handoff boundary (spec.md §4.4 step 1).
	HighWaterMark(ctx context.Context, sessionID string) (uint64, error)
}
