// Package mongo is the durable eventlog.Store backed by
// go.mongodb.org/mongo-driver/v2, grounded on the teacher's
// features/run/mongo and features/session/mongo stores. Sequence
// allocation per session uses a findAndModify-style atomic increment,
// mirroring the atomic upsert pattern in features/run/mongo/store.go.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/bridge/agentref"
	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog"
)

const (
	sessionsCollection = "sessions"
	eventsCollection   = "events"
	countersCollection = "sequence_counters"
)

// sessionDoc is the persisted shape of a Session row.
type sessionDoc struct {
	ID          string    `bson:"_id"`
	CreatedAt   time.Time `bson:"created_at"`
	Description string    `bson:"description"`
}

// eventDoc is the persisted shape of an Event row.
type eventDoc struct {
	EventID     string    `bson:"_id"`
	SessionID   string    `bson:"session_id"`
	Sequence    uint64    `bson:"sequence"`
	Timestamp   time.Time `bson:"timestamp"`
	TurnID      string    `bson:"turn_id"`
	AgentName   string    `bson:"agent_name"`
	PayloadKind string    `bson:"payload_kind"`
	Payload     []byte    `bson:"payload"`
}

// counterDoc backs the per-session atomic sequence allocator.
type counterDoc struct {
	SessionID string `bson:"_id"`
	Seq       uint64 `bson:"seq"`
}

// Store is a durable, Mongo-backed eventlog.Store.
type Store struct {
	db         *mongo.Database
	sessions   *mongo.Collection
	events     *mongo.Collection
	counters   *mongo.Collection
	idProvider func() string
}

// New constructs a Store over db. Call EnsureIndexes once at startup
// (typically from cmd/bridgeserver) before serving traffic.
func New(db *mongo.Database, idProvider func() string) *Store {
	return &Store{
		db:         db,
		sessions:   db.Collection(sessionsCollection),
		events:     db.Collection(eventsCollection),
		counters:   db.Collection(countersCollection),
		idProvider: idProvider,
	}
}

var _ eventlog.Store = (*Store)(nil)

// AppendEvent implements eventlog.Store.
func (s *Store) AppendEvent(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, kind eventlog.PayloadKind, payload []byte) (string, uint64, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return "", 0, err
	}

	switch kind {
	case eventlog.Request:
		count, err := s.events.CountDocuments(ctx, bson.M{
			"session_id":   sessionID,
			"turn_id":      turnID,
			"payload_kind": string(eventlog.Request),
		})
		if err != nil {
			return "", 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
		}
		if count > 0 {
			return "", 0, bridgeerrors.New(bridgeerrors.KindDuplicateTurn, "turn %q already has a request in session %q", turnID, sessionID)
		}
	case eventlog.Response:
		reqCount, err := s.events.CountDocuments(ctx, bson.M{
			"session_id":   sessionID,
			"turn_id":      turnID,
			"payload_kind": string(eventlog.Request),
		})
		if err != nil {
			return "", 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
		}
		if reqCount == 0 {
			return "", 0, bridgeerrors.New(bridgeerrors.KindUnknownTurn, "turn %q has no request in session %q", turnID, sessionID)
		}
		count, err := s.events.CountDocuments(ctx, bson.M{
			"session_id":   sessionID,
			"turn_id":      turnID,
			"payload_kind": string(eventlog.Response),
		})
		if err != nil {
			return "", 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
		}
		if count > 0 {
			return "", 0, bridgeerrors.New(bridgeerrors.KindDuplicateResponse, "turn %q already has a response in session %q", turnID, sessionID)
		}
	}

	seq, err := s.nextSequence(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}

	eventID := s.idProvider()
	doc := eventDoc{
		EventID:     eventID,
		SessionID:   sessionID,
		Sequence:    seq,
		Timestamp:   time.Now(),
		TurnID:      turnID,
		AgentName:   agentName.String(),
		PayloadKind: string(kind),
		Payload:     payload,
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		s.reconcileSequence(ctx, sessionID, seq)
		return "", 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return eventID, seq, nil
}

// nextSequence atomically increments and returns the per-session counter,
// the same findAndModify-upsert shape the teacher uses for run sequence
// numbers. The counter is allocated before the event document exists, so a
// failed InsertOne (reconcileSequence) must repair it or the sequence
// develops a permanent gap.
func (s *Store) nextSequence(ctx context.Context, sessionID string) (uint64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true)
	var doc counterDoc
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": sessionID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return doc.Seq, nil
}

// reconcileSequence repairs the per-session counter after a failed event
// insert (most commonly the session_turn_response_unique race: two
// concurrent responses for the same turn both pass the pre-check, then one
// loses the InsertOne). It rolls the counter back to the highest sequence
// actually persisted for the session so the next successful append reuses
// the failed value instead of leaving a gap. The filter on the counter's
// current value means this never fires if a concurrent append has already
// advanced the counter past failedSeq, so a genuine concurrent success is
// never clobbered.
func (s *Store) reconcileSequence(ctx context.Context, sessionID string, failedSeq uint64) {
	var last eventDoc
	err := s.events.FindOne(ctx,
		bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&last)
	switch err {
	case nil:
		s.rollbackCounterTo(ctx, sessionID, failedSeq, last.Sequence)
	case mongo.ErrNoDocuments:
		s.rollbackCounterTo(ctx, sessionID, failedSeq, 0)
	default:
		// Best-effort: leave the gap rather than risk corrupting the
		// counter from a transient read error.
	}
}

func (s *Store) rollbackCounterTo(ctx context.Context, sessionID string, failedSeq, actual uint64) {
	_, _ = s.counters.UpdateOne(ctx,
		bson.M{"_id": sessionID, "seq": failedSeq},
		bson.M{"$set": bson.M{"seq": actual}},
	)
}

// ReadEventsSince implements eventlog.Store, streaming results via a
// server-side cursor rather than materializing the full result set.
func (s *Store) ReadEventsSince(ctx context.Context, sessionID string, afterSequence uint64, visit eventlog.VisitFunc) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	cur, err := s.events.Find(ctx,
		bson.M{"session_id": sessionID, "sequence": bson.M{"$gt": afterSequence}},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
		}
		ev := eventlog.Event{
			EventID:     doc.EventID,
			SessionID:   doc.SessionID,
			Sequence:    doc.Sequence,
			Timestamp:   doc.Timestamp,
			TurnID:      doc.TurnID,
			AgentName:   agentref.Ident(doc.AgentName),
			PayloadKind: eventlog.PayloadKind(doc.PayloadKind),
			Payload:     doc.Payload,
		}
		if err := visit(ev); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return nil
}

// HighWaterMark implements eventlog.Store.
func (s *Store) HighWaterMark(ctx context.Context, sessionID string) (uint64, error) {
	var doc counterDoc
	err := s.counters.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		if _, getErr := s.GetSession(ctx, sessionID); getErr != nil {
			return 0, getErr
		}
		return 0, nil
	}
	if err != nil {
		return 0, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return doc.Seq, nil
}

// CreateSession implements eventlog.Store.
func (s *Store) CreateSession(ctx context.Context, id, description string) (eventlog.Session, error) {
	sess := eventlog.Session{ID: id, CreatedAt: time.Now(), Description: description}
	_, err := s.sessions.InsertOne(ctx, sessionDoc{ID: id, CreatedAt: sess.CreatedAt, Description: description})
	if mongo.IsDuplicateKeyError(err) {
		return eventlog.Session{}, bridgeerrors.New(bridgeerrors.KindDuplicateSession, "session %q already exists", id)
	}
	if err != nil {
		return eventlog.Session{}, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return sess, nil
}

// GetSession implements eventlog.Store.
func (s *Store) GetSession(ctx context.Context, id string) (eventlog.Session, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return eventlog.Session{}, bridgeerrors.New(bridgeerrors.KindSessionNotFound, "session %q not found", id)
	}
	if err != nil {
		return eventlog.Session{}, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	return eventlog.Session{ID: doc.ID, CreatedAt: doc.CreatedAt, Description: doc.Description}, nil
}

// ListSessions implements eventlog.Store. The cursor is the last session id
// of the previous page.
func (s *Store) ListSessions(ctx context.Context, cursor string, limit int) ([]eventlog.Session, string, error) {
	filter := bson.M{}
	if cursor != "" {
		prev, err := s.GetSession(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$gt": prev.CreatedAt}},
			bson.M{"created_at": prev.CreatedAt, "_id": bson.M{"$gt": prev.ID}},
		}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := s.sessions.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, "", bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
	}
	defer cur.Close(ctx)

	var page []eventlog.Session
	next := ""
	for cur.Next(ctx) {
		var doc sessionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "")
		}
		page = append(page, eventlog.Session{ID: doc.ID, CreatedAt: doc.CreatedAt, Description: doc.Description})
		next = doc.ID
	}
	if limit <= 0 || len(page) < limit {
		next = ""
	}
	return page, next, nil
}
