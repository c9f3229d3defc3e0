// Package pulse is the multi-node alternative to broadcast.Hub: a
// Redis-backed Event Broadcaster for server deployments running more than
// one coordinator process, so a subscriber attached to node A still sees
// events appended by a SubmitRequest/SubmitResponse handled on node B.
// Directly adapted from the teacher's
// features/stream/pulse/{subscriber.go,sink.go,runtime_streams.go} and
// registry/stream_manager.go: deterministic per-session stream names,
// goa.design/pulse consumer-group sinks, redis/go-redis/v9 as the
// transport.
package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"

	"goa.design/bridge/agentref"
	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/telemetry"
)

// streamName returns the deterministic Pulse stream name for a session,
// the same naming convention registry/stream_manager.go uses to derive a
// stable stream per logical resource instead of a random one.
func streamName(sessionID string) string { return fmt.Sprintf("bridge.session.%s", sessionID) }

// wireEvent is the JSON encoding of eventlog.Event carried as a Pulse
// stream payload.
type wireEvent struct {
	EventID     string `json:"event_id"`
	SessionID   string `json:"session_id"`
	Sequence    uint64 `json:"sequence"`
	TimestampNS int64  `json:"timestamp_ns"`
	TurnID      string `json:"turn_id"`
	AgentName   string `json:"agent_name"`
	PayloadKind string `json:"payload_kind"`
	Payload     []byte `json:"payload"`
}

// Hub is a Redis/Pulse-backed broadcast.Hub alternative. It reuses
// broadcast.Hub's in-process replay/live-handoff logic for each local
// subscriber and adds a single background reader per session that
// forwards Pulse stream events into the shared Notify path, so every node
// sees every append regardless of which node handled it.
type Hub struct {
	local *broadcast.Hub
	store eventlog.Store
	tel   telemetry.Provider

	redis *redis.Client

	// sinkName is this Hub's own Pulse consumer-group name. Every node in a
	// multi-node deployment must use a distinct sink name: Redis consumer
	// groups load-balance deliveries among their own consumers, so sharing
	// one name across nodes would turn this broadcaster into a queue
	// instead of a fan-out. A fresh uuid per process gives each node its
	// own independent, fully-replicated read of every session stream.
	sinkName string

	mu       sync.Mutex
	streamed map[string]*streaming.Stream // sessionID -> stream handle, one reader goroutine each
}

// NewHub constructs a Pulse-backed Hub. bufSize is the per-subscriber
// buffer bound, passed through to the embedded in-process Hub.
func NewHub(store eventlog.Store, redisClient *redis.Client, bufSize int, tel telemetry.Provider) *Hub {
	return &Hub{
		local:    broadcast.NewHub(store, bufSize, tel),
		store:    store,
		tel:      tel,
		redis:    redisClient,
		sinkName: "bridge.node." + uuid.NewString(),
		streamed: make(map[string]*streaming.Stream),
	}
}

// Subscribe delegates to the embedded in-process Hub for local
// replay/live-handoff, after ensuring a Pulse reader is running for this
// session so remote appends (from other nodes) are forwarded into the
// local Notify path.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error) {
	if err := h.ensureReader(ctx, sessionID); err != nil {
		return nil, err
	}
	return h.local.Subscribe(ctx, sessionID, resumeFrom, bufSize)
}

// Notify publishes ev to the session's Pulse stream (so other nodes'
// readers forward it to their local subscribers) and delivers it to this
// node's own local subscribers directly, avoiding a Redis round trip for
// the common case of a subscriber attached to the node that handled the
// append. Matches the broadcast.Hub.Notify signature so coordinator can
// depend on a single Broadcaster interface; publish failures are logged
// rather than returned, since a slow/unreachable Pulse node must not block
// the appending caller any more than a slow subscriber does.
func (h *Hub) Notify(ctx context.Context, sessionID string, ev eventlog.Event) {
	h.local.Notify(ctx, sessionID, ev)

	h.mu.Lock()
	stream, ok := h.streamed[sessionID]
	h.mu.Unlock()
	if !ok {
		var err error
		stream, err = h.openStream(ctx, sessionID)
		if err != nil {
			h.tel.Logger.Error(ctx, "failed to open pulse stream", "session_id", sessionID, "error", err)
			return
		}
	}

	payload, err := json.Marshal(toWire(ev))
	if err != nil {
		h.tel.Logger.Error(ctx, "failed to marshal event for stream publish", "session_id", sessionID, "error", err)
		return
	}
	if _, err := stream.Add(ctx, "session.event", payload); err != nil {
		h.tel.Logger.Error(ctx, "failed to publish to pulse stream", "session_id", sessionID, "error", err)
	}
}

// ensureReader starts (if not already running) a background goroutine
// consuming sessionID's Pulse stream via this node's own consumer-group
// sink and forwarding each event into h.local.Notify, the same
// sink-then-Subscribe-then-Ack shape as the teacher's subscriber.go.
func (h *Hub) ensureReader(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	if _, ok := h.streamed[sessionID]; ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	stream, err := h.openStream(ctx, sessionID)
	if err != nil {
		return err
	}

	sink, err := stream.NewSink(ctx, h.sinkName)
	if err != nil {
		return bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "creating pulse sink")
	}

	go h.consume(ctx, sessionID, sink)
	return nil
}

func (h *Hub) openStream(ctx context.Context, sessionID string) (*streaming.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if stream, ok := h.streamed[sessionID]; ok {
		return stream, nil
	}

	stream, err := streaming.NewStream(streamName(sessionID), h.redis)
	if err != nil {
		return nil, bridgeerrors.Wrap(bridgeerrors.KindStorage, err, "opening pulse stream")
	}
	h.streamed[sessionID] = stream
	return stream, nil
}

func (h *Hub) consume(ctx context.Context, sessionID string, sink *streaming.Sink) {
	defer sink.Close(ctx)
	for ev := range sink.Subscribe() {
		var wire wireEvent
		if err := json.Unmarshal(ev.Payload, &wire); err != nil {
			h.tel.Logger.Error(ctx, "failed to decode pulse event", "session_id", sessionID, "error", err)
			continue
		}
		h.local.Notify(ctx, sessionID, fromWire(wire))
		if err := sink.Ack(ctx, ev); err != nil {
			h.tel.Logger.Error(ctx, "failed to ack pulse event", "session_id", sessionID, "error", err)
		}
	}
}

func toWire(ev eventlog.Event) wireEvent {
	return wireEvent{
		EventID:     ev.EventID,
		SessionID:   ev.SessionID,
		Sequence:    ev.Sequence,
		TimestampNS: ev.Timestamp.UnixNano(),
		TurnID:      ev.TurnID,
		AgentName:   ev.AgentName.String(),
		PayloadKind: string(ev.PayloadKind),
		Payload:     ev.Payload,
	}
}

func fromWire(w wireEvent) eventlog.Event {
	return eventlog.Event{
		EventID:     w.EventID,
		SessionID:   w.SessionID,
		Sequence:    w.Sequence,
		Timestamp:   time.Unix(0, w.TimestampNS),
		TurnID:      w.TurnID,
		AgentName:   agentref.Ident(w.AgentName),
		PayloadKind: eventlog.PayloadKind(w.PayloadKind),
		Payload:     w.Payload,
	}
}
