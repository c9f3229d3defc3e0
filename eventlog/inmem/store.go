// Package inmem is an in-memory eventlog.Store: a sync.Mutex-guarded map of
// per-session event logs with dense sequence counters, grounded on the
// teacher's runtime/agent/runlog/inmem and runtime/agent/session/inmem
// stores.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/bridge/agentref"
	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog"
)

type sessionLog struct {
	session eventlog.Session
	events  []eventlog.Event
	// requested tracks turn ids that already have a request event, so
	// AppendEvent can reject a duplicate request turn in O(1).
	requested map[string]struct{}
	// responded tracks turn ids that already have a response event, so
	// AppendEvent can reject a duplicate in O(1).
	responded map[string]struct{}
}

// Store is an in-memory eventlog.Store. The zero value is not usable; use
// New. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	// order preserves session insertion order so ListSessions can produce a
	// stable (created_at, id) page without re-sorting the whole map (in
	// practice created_at is monotonic with insertion for this in-memory
	// clock source).
	order []string
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{sessions: make(map[string]*sessionLog)}
}

var _ eventlog.Store = (*Store)(nil)

// AppendEvent implements eventlog.Store.
func (s *Store) AppendEvent(_ context.Context, sessionID, turnID string, agentName agentref.Ident, kind eventlog.PayloadKind, payload []byte) (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return "", 0, bridgeerrors.New(bridgeerrors.KindSessionNotFound, "session %q not found", sessionID)
	}

	switch kind {
	case eventlog.Request:
		if _, dup := log.requested[turnID]; dup {
			return "", 0, bridgeerrors.New(bridgeerrors.KindDuplicateTurn, "turn %q already has a request in session %q", turnID, sessionID)
		}
	case eventlog.Response:
		if _, known := log.requested[turnID]; !known {
			return "", 0, bridgeerrors.New(bridgeerrors.KindUnknownTurn, "turn %q has no request in session %q", turnID, sessionID)
		}
		if _, dup := log.responded[turnID]; dup {
			return "", 0, bridgeerrors.New(bridgeerrors.KindDuplicateResponse, "turn %q already has a response in session %q", turnID, sessionID)
		}
	}

	seq := uint64(len(log.events)) + 1
	ev := eventlog.Event{
		EventID:     uuid.NewString(),
		SessionID:   sessionID,
		Sequence:    seq,
		Timestamp:   time.Now(),
		TurnID:      turnID,
		AgentName:   agentName,
		PayloadKind: kind,
		Payload:     payload,
	}
	log.events = append(log.events, ev)
	switch kind {
	case eventlog.Request:
		log.requested[turnID] = struct{}{}
	case eventlog.Response:
		log.responded[turnID] = struct{}{}
	}
	return ev.EventID, seq, nil
}

// ReadEventsSince implements eventlog.Store.
func (s *Store) ReadEventsSince(_ context.Context, sessionID string, afterSequence uint64, visit eventlog.VisitFunc) error {
	s.mu.Lock()
	log, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return bridgeerrors.New(bridgeerrors.KindSessionNotFound, "session %q not found", sessionID)
	}
	// Snapshot the slice header under the lock; events are immutable once
	// appended so the backing array may be read lock-free afterward.
	snapshot := log.events
	s.mu.Unlock()

	idx := sort.Search(len(snapshot), func(i int) bool { return snapshot[i].Sequence > afterSequence })
	for _, ev := range snapshot[idx:] {
		if err := visit(ev); err != nil {
			return err
		}
	}
	return nil
}

// HighWaterMark implements eventlog.Store.
func (s *Store) HighWaterMark(_ context.Context, sessionID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return 0, bridgeerrors.New(bridgeerrors.KindSessionNotFound, "session %q not found", sessionID)
	}
	if len(log.events) == 0 {
		return 0, nil
	}
	return log.events[len(log.events)-1].Sequence, nil
}

// CreateSession implements eventlog.Store.
func (s *Store) CreateSession(_ context.Context, id, description string) (eventlog.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return eventlog.Session{}, bridgeerrors.New(bridgeerrors.KindDuplicateSession, "session %q already exists", id)
	}

	sess := eventlog.Session{ID: id, CreatedAt: time.Now(), Description: description}
	s.sessions[id] = &sessionLog{session: sess, requested: make(map[string]struct{}), responded: make(map[string]struct{})}
	s.order = append(s.order, id)
	return sess, nil
}

// GetSession implements eventlog.Store.
func (s *Store) GetSession(_ context.Context, id string) (eventlog.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[id]
	if !ok {
		return eventlog.Session{}, bridgeerrors.New(bridgeerrors.KindSessionNotFound, "session %q not found", id)
	}
	return log.session, nil
}

// ListSessions implements eventlog.Store. The cursor is the id of the last
// session seen by the caller; an empty cursor starts from the beginning.
func (s *Store) ListSessions(_ context.Context, cursor string, limit int) ([]eventlog.Session, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if cursor != "" {
		for i, id := range s.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}

	if limit <= 0 {
		limit = len(s.order)
	}

	var page []eventlog.Session
	next := ""
	for i := start; i < len(s.order) && len(page) < limit; i++ {
		page = append(page, s.sessions[s.order[i]].session)
		next = s.order[i]
	}
	if start+len(page) >= len(s.order) {
		next = ""
	}
	return page, next, nil
}
