// Package broadcast is the Event Broadcaster (spec.md §4.4): for each
// session, fans appended events out to all live subscribers, replaying
// history from a caller-specified point and then handing off to live
// delivery. This is a reified component with a bounded per-subscriber
// buffer and explicit replay/live handoff, not an ad hoc callback list
// (spec.md §9) — grounded on the Subscribe/consume pattern in the
// teacher's features/stream/pulse/subscriber.go and sink.go fan-out, but
// reimplemented in-process (no Redis) so the base component carries no
// external dependency in single-process deployments.
package broadcast

import (
	"context"
	"sync"

	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/telemetry"
)

// Delivery is one item handed to a subscriber: either an event in sequence
// order, or a terminal error after which no further Deliveries follow and
// the channel is closed.
type Delivery struct {
	Event eventlog.Event
	Err   error
}

// Subscription is a live, cancellable handle returned by Hub.Subscribe.
type Subscription struct {
	ID         string
	SessionID  string
	Deliveries <-chan Delivery

	cancel func()
}

// Cancel terminates the subscription and releases its resources. Safe to
// call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// NewSubscription constructs a Subscription from a caller-driven delivery
// channel and cancellation func. Exported for transport adapters such as
// transport/grpcjson.Client, which adapts a remote server-stream into the
// same Subscription shape this package's own Hub.Subscribe returns, so
// pluginbridge's stream reader task consumes either identically.
func NewSubscription(id, sessionID string, deliveries <-chan Delivery, cancel func()) *Subscription {
	return &Subscription{ID: id, SessionID: sessionID, Deliveries: deliveries, cancel: cancel}
}

// Hub is the in-process Event Broadcaster. Safe for concurrent use.
type Hub struct {
	store   eventlog.Store
	bufSize int
	tel     telemetry.Provider

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[string]*subscriber // sessionID -> subscription id -> subscriber
}

// NewHub constructs a Hub over store with the given per-subscriber buffer
// bound (spec.md §4.4 step 5). tel may be telemetry.Noop().
func NewHub(store eventlog.Store, bufSize int, tel telemetry.Provider) *Hub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Hub{store: store, bufSize: bufSize, tel: tel, subs: make(map[string]map[string]*subscriber)}
}

// subscriber's mu guards every field below it AND is the sole
// synchronization point for sub.out: every send to sub.out, and the single
// close of sub.out, happen only while mu is held and only after observing
// terminated == false. That invariant is what makes the close race-free —
// a terminating goroutine flips terminated to true and closes out in the
// same critical section no other sender can be inside.
type subscriber struct {
	id        string
	sessionID string
	out       chan Delivery
	bufSize   int

	mu         sync.Mutex
	replaying  bool
	highWater  uint64
	liveStage  []eventlog.Event
	terminated bool
}

// Subscribe implements spec.md §4.4's contract. If resumeFrom is 0 the
// subscriber receives all events from sequence 1; otherwise from
// resumeFrom+1. bufSize overrides the Hub's default per-subscriber buffer
// bound for this subscription alone (spec.md §6's subscribe_buffer_size);
// zero or negative means use the Hub's default. The returned Subscription
// is hot: events appended after this call are delivered until Cancel.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*Subscription, error) {
	if _, err := h.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	highWater, err := h.store.HighWaterMark(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = h.bufSize
	}

	h.mu.Lock()
	h.nextID++
	id := idFor(h.nextID)
	sub := &subscriber{
		id:        id,
		sessionID: sessionID,
		out:       make(chan Delivery, bufSize),
		bufSize:   bufSize,
		replaying: true,
		highWater: highWater,
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[string]*subscriber)
	}
	h.subs[sessionID][id] = sub
	h.mu.Unlock()

	cancel := func() { h.terminate(sub, nil) }

	go h.replay(ctx, sub, resumeFrom)

	return &Subscription{ID: id, SessionID: sessionID, Deliveries: sub.out, cancel: cancel}, nil
}

// replay streams historical events up to the high-water mark recorded at
// subscribe time, then drains whatever live notifications arrived during
// that scan, then flips the subscriber into direct live-delivery mode.
func (h *Hub) replay(ctx context.Context, sub *subscriber, resumeFrom uint64) {
	err := h.store.ReadEventsSince(ctx, sub.sessionID, resumeFrom, func(ev eventlog.Event) error {
		sub.mu.Lock()
		defer sub.mu.Unlock()

		if sub.terminated {
			return errTerminated
		}
		if ev.Sequence > sub.highWater {
			return errStopReplay
		}
		select {
		case sub.out <- Delivery{Event: ev}:
			return nil
		default:
			h.terminateLocked(sub, bridgeerrors.New(bridgeerrors.KindSubscriberTooSlow, "buffer overflow during replay"))
			return errTerminated
		}
	})

	switch err {
	case nil, errStopReplay:
		// fall through to live handoff
	case errTerminated:
		return
	default:
		h.terminate(sub, err)
		return
	}

	// Hold sub.mu for the whole drain-then-flip sequence: notifyOne also
	// locks sub.mu for every call, so this prevents a concurrently
	// delivered live event from being sent (and interleaving ahead of a
	// still-staged earlier event) until every staged event has flushed and
	// replaying has flipped false.
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.terminated {
		return
	}

	staged := sub.liveStage
	sub.liveStage = nil

	for _, ev := range staged {
		select {
		case sub.out <- Delivery{Event: ev}:
		default:
			h.terminateLocked(sub, bridgeerrors.New(bridgeerrors.KindSubscriberTooSlow, "buffer overflow draining staged live events"))
			return
		}
	}
	sub.replaying = false
}

var (
	errStopReplay = bridgeerrors.New(bridgeerrors.KindInternal, "replay boundary reached")
	errTerminated = bridgeerrors.New(bridgeerrors.KindInternal, "subscriber already terminated")
)

// Notify delivers ev to every live subscriber of sessionID. Called by the
// Server Coordinator immediately after Event Store.AppendEvent succeeds.
// Never blocks the appending caller: delivery to a subscriber whose buffer
// is full terminates that subscriber with SubscriberTooSlow without
// affecting any other subscriber. ctx is accepted for interface symmetry
// with broadcast/pulse.Hub, which needs one to publish; the in-process Hub
// never suspends so it ignores it.
func (h *Hub) Notify(_ context.Context, sessionID string, ev eventlog.Event) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs[sessionID]))
	for _, sub := range h.subs[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.notifyOne(sub, ev)
	}
}

// notifyOne applies ev to sub while holding sub.mu for the whole decision,
// so it can never race terminateLocked's close of sub.out.
func (h *Hub) notifyOne(sub *subscriber, ev eventlog.Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.terminated {
		return
	}
	if sub.replaying {
		if ev.Sequence <= sub.highWater {
			// already covered by the replay scan
			return
		}
		if len(sub.liveStage) >= sub.bufSize {
			h.terminateLocked(sub, bridgeerrors.New(bridgeerrors.KindSubscriberTooSlow, "live-stage buffer overflow"))
			return
		}
		sub.liveStage = append(sub.liveStage, ev)
		return
	}

	select {
	case sub.out <- Delivery{Event: ev}:
	default:
		h.terminateLocked(sub, bridgeerrors.New(bridgeerrors.KindSubscriberTooSlow, "buffer overflow during live delivery"))
	}
}

// terminate acquires sub.mu and delegates to terminateLocked. cause == nil
// means a caller-initiated Cancel: the channel is closed without a final
// Delivery.
func (h *Hub) terminate(sub *subscriber, cause error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	h.terminateLocked(sub, cause)
}

// terminateLocked marks sub terminated, delivers cause (if non-nil) as the
// final Delivery, discarding any still-buffered events to make room for it
// when the buffer is full, and closes sub.out, all while the caller holds
// sub.mu. Every
// send site (replay, notifyOne) checks sub.terminated under the same lock
// before sending, so this is the only place sub.out is closed and it never
// races a send.
func (h *Hub) terminateLocked(sub *subscriber, cause error) {
	if sub.terminated {
		return
	}
	sub.terminated = true

	if cause != nil {
		h.tel.Logger.Error(context.Background(), "subscriber terminated", "session_id", sub.sessionID, "subscription_id", sub.id, "error", cause)
		select {
		case sub.out <- Delivery{Err: cause}:
		default:
			// The buffer is full: discard the undelivered events so the
			// terminal error still reaches the consumer.
		drain:
			for {
				select {
				case <-sub.out:
				default:
					break drain
				}
			}
			sub.out <- Delivery{Err: cause}
		}
	}
	close(sub.out)

	h.mu.Lock()
	delete(h.subs[sub.sessionID], sub.id)
	h.mu.Unlock()
}

func idFor(n uint64) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = hextable[n&0xf]
		n >>= 4
	}
	return string(buf)
}
