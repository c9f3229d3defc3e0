// Command bridgeserver runs the Server Coordinator's gRPC surface (spec.md
// §6) over a durable Mongo-backed event store and an optional Redis/Pulse
// fan-out for multi-node deployments. Composition root only: config
// loading, CLI parsing, and logging setup beyond what is shown here are
// explicitly out of scope per spec.md §1.
//
// # Configuration
//
// Environment variables:
//
//	BRIDGE_ADDR          - gRPC listen address (default: ":8090")
//	MONGO_URI            - MongoDB connection URI (default: "mongodb://localhost:27017")
//	MONGO_DATABASE       - MongoDB database name (default: "bridge")
//	REDIS_URL            - Redis address for the Pulse broadcaster (optional; in-process Hub used if unset)
//	SUBSCRIBE_BUFFER     - Per-subscriber buffer bound (default: 256)
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"google.golang.org/grpc"

	"goa.design/bridge/broadcast"
	"goa.design/bridge/broadcast/pulse"
	"goa.design/bridge/coordinator"
	"goa.design/bridge/eventlog"
	mongostore "goa.design/bridge/eventlog/mongo"
	"goa.design/bridge/queue"
	"goa.design/bridge/session"
	"goa.design/bridge/telemetry"
	"goa.design/bridge/transport/grpcjson"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	addr := envOr("BRIDGE_ADDR", ":8090")
	mongoURI := envOr("MONGO_URI", "mongodb://localhost:27017")
	mongoDB := envOr("MONGO_DATABASE", "bridge")
	redisURL := os.Getenv("REDIS_URL")
	bufSize := envIntOr("SUBSCRIBE_BUFFER", 256)

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}()
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	store := mongostore.New(client.Database(mongoDB), uuid.NewString)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	bus, closeBus, err := newBroadcaster(store, redisURL, bufSize)
	if err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	defer closeBus()

	srv := coordinator.New(session.New(store), store, queue.New(store), bus, telemetry.Noop())

	if err := recoverQueues(ctx, store, srv); err != nil {
		return fmt.Errorf("recover request queues: %w", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	gs := grpc.NewServer()
	grpcjson.NewServer(srv).Register(gs)

	log.Printf("starting bridgeserver on %s (mongo=%s/%s)", addr, mongoURI, mongoDB)
	return gs.Serve(lis)
}

// broadcaster abstracts over broadcast.NewHub and pulse.NewHub so run can
// pick the fan-out strategy based on whether REDIS_URL is configured,
// mirroring SPEC_FULL.md §9's "in-process default, Pulse/Redis opt-in"
// posture.
func newBroadcaster(store eventlog.Store, redisURL string, bufSize int) (coordinator.Broadcaster, func(), error) {
	if redisURL == "" {
		return broadcast.NewHub(store, bufSize, telemetry.Noop()), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return pulse.NewHub(store, rdb, bufSize, telemetry.Noop()), func() { _ = rdb.Close() }, nil
}

// recoverQueues rebuilds the in-memory Request Queue for every persisted
// session from the durable event log (spec.md §4.3's startup recovery
// story, exercised end-to-end in scenario 6 of spec.md §8).
func recoverQueues(ctx context.Context, store eventlog.Store, srv *coordinator.Server) error {
	cursor := ""
	for {
		sessions, next, err := store.ListSessions(ctx, cursor, 100)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := srv.Recover(ctx, s.ID); err != nil {
				return fmt.Errorf("recover session %s: %w", s.ID, err)
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
