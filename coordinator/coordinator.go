// Package coordinator is the Server Coordinator (spec.md §4.6): it exposes
// the external RPC surface and composes the Session Registry, Event Store,
// Request Queue, and Event Broadcaster into the six operations a transport
// adapter serves. Grounded on the composition style of the teacher's
// registry.New/registry.Registry (wiring a store, a stream manager, and a
// service struct together) and registry.Service's method set, adapted from
// tool-registry semantics to session/turn semantics.
package coordinator

import (
	"context"

	"goa.design/bridge/agentref"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/queue"
	"goa.design/bridge/session"
	"goa.design/bridge/telemetry"
)

// Broadcaster abstracts over broadcast.Hub and broadcast/pulse.Hub so the
// coordinator does not depend on which fan-out strategy a deployment picked.
type Broadcaster interface {
	Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error)
	Notify(ctx context.Context, sessionID string, ev eventlog.Event)
}

// Page is the result of ListSessions: a stable page of sessions plus a
// cursor to resume from.
type Page struct {
	Sessions   []eventlog.Session
	NextCursor string
}

// Server is the Server Coordinator. Safe for concurrent use; every method
// is a thin, ordered composition over its collaborators.
type Server struct {
	sessions *session.Registry
	store    eventlog.Store
	queue    *queue.Queue
	bus      Broadcaster
	tel      telemetry.Provider
}

// New wires a Server over the given collaborators. Callers that restart a
// process with a durable store should call Recover per active
// session before serving traffic (spec.md §4.3's startup recovery story);
// New does not do this implicitly since it has no way to enumerate which
// sessions are "active".
func New(sessions *session.Registry, store eventlog.Store, q *queue.Queue, bus Broadcaster, tel telemetry.Provider) *Server {
	return &Server{sessions: sessions, store: store, queue: q, bus: bus, tel: tel}
}

// CreateSession mints a new session id and records it. No events are
// appended and no side effects occur beyond the registry insert (spec.md
// §4.6).
func (s *Server) CreateSession(ctx context.Context, description string) (eventlog.Session, error) {
	return s.sessions.Create(ctx, description)
}

// GetSession is a pure read of session metadata.
func (s *Server) GetSession(ctx context.Context, sessionID string) (eventlog.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ListSessions returns a stable page ordered by (created_at, id). An empty
// cursor starts from the beginning.
func (s *Server) ListSessions(ctx context.Context, cursor string, limit int) (Page, error) {
	sessions, next, err := s.sessions.List(ctx, cursor, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{Sessions: sessions, NextCursor: next}, nil
}

// SubmitRequest implements spec.md §4.6's SubmitRequest contract: append,
// then enqueue, then broadcast, in that externally-observable order. The
// append is durable before this call returns; the broadcast notification
// happens synchronously after the enqueue, so a subscriber can never
// observe the event before a concurrent Head query would see the queue
// entry.
func (s *Server) SubmitRequest(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, payload []byte) (string, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return "", err
	}

	eventID, seq, err := s.store.AppendEvent(ctx, sessionID, turnID, agentName, eventlog.Request, payload)
	if err != nil {
		return "", err
	}

	ev := eventlog.Event{
		EventID:     eventID,
		SessionID:   sessionID,
		Sequence:    seq,
		TurnID:      turnID,
		AgentName:   agentName,
		PayloadKind: eventlog.Request,
		Payload:     payload,
	}
	s.queue.Enqueue(sessionID, queue.Entry{TurnID: turnID, AgentName: agentName, EventID: eventID})
	s.bus.Notify(ctx, sessionID, ev)

	return eventID, nil
}

// SubmitResponse implements spec.md §4.6's SubmitResponse contract: append,
// then dequeue, then broadcast.
func (s *Server) SubmitResponse(ctx context.Context, sessionID, turnID string, payload []byte) (string, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return "", err
	}

	eventID, seq, err := s.store.AppendEvent(ctx, sessionID, turnID, "", eventlog.Response, payload)
	if err != nil {
		return "", err
	}

	ev := eventlog.Event{
		EventID:     eventID,
		SessionID:   sessionID,
		Sequence:    seq,
		TurnID:      turnID,
		PayloadKind: eventlog.Response,
		Payload:     payload,
	}
	s.queue.Dequeue(sessionID, turnID)
	s.bus.Notify(ctx, sessionID, ev)

	return eventID, nil
}

// Subscribe delegates to the Broadcaster. Preconditions (session exists)
// are enforced by the Broadcaster's Subscribe, which resolves to
// bridgeerrors.KindSessionNotFound via the underlying Event Store. bufSize
// overrides the Broadcaster's default per-subscriber buffer bound for this
// subscription alone (spec.md §6's subscribe_buffer_size); zero means use
// the default.
func (s *Server) Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error) {
	return s.bus.Subscribe(ctx, sessionID, resumeFrom, bufSize)
}

// ListPending is an operator-facing read over the session's Request Queue,
// exposing the domain expansion described in SPEC_FULL.md §4.3.
func (s *Server) ListPending(sessionID string) []queue.Entry {
	return s.queue.ListPending(sessionID)
}

// Recover rebuilds the in-memory Request Queue for sessionID from the
// Event Store, for use at process startup before serving traffic (spec.md
// §4.3 end-to-end scenario 6: unanswered request across restart).
func (s *Server) Recover(ctx context.Context, sessionID string) error {
	return s.queue.Reconstruct(ctx, sessionID)
}
