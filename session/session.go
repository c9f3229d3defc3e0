// Package session is the Session Registry (spec.md §4.2): a thin wrapper
// over the Event Store's session operations plus an id generator. It
// exists as a distinct component because the identity source may later
// diverge from the event log, mirroring the teacher's separation of
// session.Store from runlog.Store.
package session

import (
	"context"

	"github.com/google/uuid"

	"goa.design/bridge/eventlog"
)

// Registry creates and looks up sessions. It delegates storage to an
// eventlog.Store and owns only id generation.
type Registry struct {
	store eventlog.Store
}

// New constructs a Registry over store.
func New(store eventlog.Store) *Registry {
	return &Registry{store: store}
}

// Create mints a fresh session id and persists a new session with the
// given description.
func (r *Registry) Create(ctx context.Context, description string) (eventlog.Session, error) {
	return r.store.CreateSession(ctx, uuid.NewString(), description)
}

// Get looks up a session by id.
func (r *Registry) Get(ctx context.Context, id string) (eventlog.Session, error) {
	return r.store.GetSession(ctx, id)
}

// List returns a page of sessions ordered by (CreatedAt, ID).
func (r *Registry) List(ctx context.Context, cursor string, limit int) ([]eventlog.Session, string, error) {
	return r.store.ListSessions(ctx, cursor, limit)
}
