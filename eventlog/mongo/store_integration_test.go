//go:build integration

package mongo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	drivermongo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog"
	bridgemongo "goa.design/bridge/eventlog/mongo"
)

// newTestStore starts a real MongoDB container via testcontainers-go's
// dedicated mongodb module (go.mod requires
// github.com/testcontainers/testcontainers-go/modules/mongodb directly),
// grounded on the container-lifecycle pattern in the teacher's
// registry/store/mongo/mongo_test.go but using the purpose-built module
// instead of a hand-rolled testcontainers.ContainerRequest.
func newTestStore(t *testing.T) *bridgemongo.Store {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err, "start mongodb container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := drivermongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })
	require.NoError(t, client.Ping(ctx, nil))

	store := bridgemongo.New(client.Database("bridge_test_"+t.Name()), uuid.NewString)
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStoreAppendAndReplay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateSession(ctx, "s1", "demo")
	require.NoError(t, err)

	_, seq1, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("REQ1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	_, seq2, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("RESP1"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)

	var events []eventlog.Event
	err = store.ReadEventsSince(ctx, "s1", 0, func(ev eventlog.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, eventlog.Request, events[0].PayloadKind)
	require.Equal(t, eventlog.Response, events[1].PayloadKind)
}

func TestMongoStoreRejectsDuplicateResponse(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateSession(ctx, "s1", "")
	require.NoError(t, err)
	_, _, err = store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("REQ1"))
	require.NoError(t, err)
	_, _, err = store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("A"))
	require.NoError(t, err)

	_, _, err = store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("B"))
	require.Error(t, err)
	require.Equal(t, bridgeerrors.KindDuplicateResponse, bridgeerrors.KindOf(err))
}
