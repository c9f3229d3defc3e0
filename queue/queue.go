// Package queue is the Request Queue (spec.md §4.3): a per-session FIFO of
// requests awaiting a response. It exists only in memory; on restart it is
// reconstructed by scanning the Event Store for requests whose turn has no
// matching response, mirroring the "rebuild from the log" posture of the
// teacher's runlog package combined with the re-registration pattern in
// registry.New, which re-derives in-memory state from a durable store on
// startup.
package queue

import (
	"context"
	"sync"
	"time"

	"goa.design/bridge/agentref"
	"goa.design/bridge/eventlog"
)

// Entry is one pending request in a session's queue.
type Entry struct {
	TurnID     string
	AgentName  agentref.Ident
	EventID    string
	EnqueuedAt time.Time
}

// Queue is the per-session FIFO of pending requests. Safe for concurrent
// use: a single mutex guards the FIFOs of every session, so mutations are
// serialized both within a session and across sessions.
type Queue struct {
	store eventlog.Store

	mu   sync.Mutex
	fifo map[string][]Entry
}

// New constructs an empty Queue backed by store, used by Reconstruct to
// rebuild pending entries after a restart.
func New(store eventlog.Store) *Queue {
	return &Queue{store: store, fifo: make(map[string][]Entry)}
}

// Enqueue appends turnID to the tail of sessionID's FIFO. A zero
// EnqueuedAt is set to the current time.
func (q *Queue) Enqueue(sessionID string, entry Entry) {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo[sessionID] = append(q.fifo[sessionID], entry)
}

// Dequeue removes turnID from sessionID's FIFO, wherever it sits (a
// response may answer a turn out of enqueue order). Removing an
// already-absent turn is a no-op, not an error.
func (q *Queue) Dequeue(sessionID, turnID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.fifo[sessionID]
	for i, e := range entries {
		if e.TurnID == turnID {
			q.fifo[sessionID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Head returns the turn id currently at the front of sessionID's FIFO, or
// "" if the queue is empty.
func (q *Queue) Head(sessionID string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.fifo[sessionID]
	if len(entries) == 0 {
		return ""
	}
	return entries[0].TurnID
}

// ListPending returns the full FIFO for sessionID, oldest first. Additive
// over the base spec contract: exposes queue age via EnqueuedAt for
// operator tooling, mirroring RunMeta's StartedAt/UpdatedAt bookkeeping in
// the teacher.
func (q *Queue) ListPending(sessionID string) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.fifo[sessionID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Reconstruct rebuilds sessionID's FIFO from the Event Store by replaying
// the full log and tracking requests with no matching response. Called at
// startup and on first access after a restart.
func (q *Queue) Reconstruct(ctx context.Context, sessionID string) error {
	pending := make(map[string]Entry)
	var order []string

	err := q.store.ReadEventsSince(ctx, sessionID, 0, func(ev eventlog.Event) error {
		switch ev.PayloadKind {
		case eventlog.Request:
			pending[ev.TurnID] = Entry{TurnID: ev.TurnID, AgentName: ev.AgentName, EventID: ev.EventID, EnqueuedAt: ev.Timestamp}
			order = append(order, ev.TurnID)
		case eventlog.Response:
			delete(pending, ev.TurnID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(pending))
	for _, turnID := range order {
		if e, ok := pending[turnID]; ok {
			entries = append(entries, e)
		}
	}

	q.mu.Lock()
	q.fifo[sessionID] = entries
	q.mu.Unlock()
	return nil
}
