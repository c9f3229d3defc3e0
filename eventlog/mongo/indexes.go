package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/bridge/bridgeerrors"
)

// EnsureIndexes declares the unique indexes named in spec.md §6: a unique
// index on (session_id, sequence) and a unique partial index on
// (session_id, turn_id) restricted to response events, so a second
// response for the same turn fails at the storage layer even under a race
// that slips past the CountDocuments check in AppendEvent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("session_sequence_unique"),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "turn_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("session_turn_response_unique").
				SetPartialFilterExpression(bson.M{"payload_kind": "response"}),
		},
	})
	if err != nil {
		return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "creating event indexes")
	}

	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("created_at_id_order"),
	})
	if err != nil {
		return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "creating session index")
	}
	return nil
}
