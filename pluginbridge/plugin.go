// Package pluginbridge is the Plugin Coordinator (spec.md §4.7): it
// translates a single synchronous intercept-hook invocation into a
// request/response round-trip over the asynchronous duplex channel exposed
// by the Server Coordinator. Grounded on:
//   - the onion-style middleware composition of the teacher's
//     features/model/gateway.Server for the intercept hook's before/after
//     structure (UnaryMiddleware-style wrapping, reused for the plugin's
//     optional request/response transform hooks);
//   - runtime/a2a/retry.Config/DefaultConfig for the reconnection backoff
//     policy;
//   - runtime/agent/interrupt.Controller's "register a waiter, resolve it
//     from elsewhere" shape for Register/Resolve, translated from Temporal
//     signal channels to plain Go channels since the plugin is an
//     in-process library, not a durable workflow.
package pluginbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/bridge/agentref"
	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/pluginbridge/rendezvous"
	"goa.design/bridge/retry"
	"goa.design/bridge/telemetry"
)

// ErrPassThrough is returned by Intercept when the agent being called is
// not in the plugin's target filter (spec.md §4.7 "Selective
// interception"): the host framework should proceed with its original,
// unintercepted model call.
var ErrPassThrough = errors.New("pluginbridge: agent not targeted, pass through")

// Coordinator is the subset of the Server Coordinator's RPC surface the
// plugin depends on. coordinator.Server satisfies it directly for
// in-process use and tests; transport/grpcjson.Client satisfies it for a
// plugin running against a remote server.
type Coordinator interface {
	CreateSession(ctx context.Context, description string) (eventlog.Session, error)
	GetSession(ctx context.Context, sessionID string) (eventlog.Session, error)
	SubmitRequest(ctx context.Context, sessionID, turnID string, agentName agentref.Ident, payload []byte) (string, error)
	Subscribe(ctx context.Context, sessionID string, resumeFrom uint64, bufSize int) (*broadcast.Subscription, error)
}

// Option configures a Plugin during construction.
type Option func(*Plugin)

// WithRequestMiddleware appends request-path middleware, applied in
// registration order with the first middleware forming the outermost
// layer (see framework.go).
func WithRequestMiddleware(mw ...RequestMiddleware) Option {
	return func(p *Plugin) { p.reqMW = append(p.reqMW, mw...) }
}

// WithResponseMiddleware appends response-path middleware, symmetric to
// WithRequestMiddleware.
func WithResponseMiddleware(mw ...ResponseMiddleware) Option {
	return func(p *Plugin) { p.respMW = append(p.respMW, mw...) }
}

// WithTelemetry overrides the plugin's telemetry.Provider; the default is
// telemetry.Noop().
func WithTelemetry(tel telemetry.Provider) Option {
	return func(p *Plugin) { p.tel = tel }
}

// Plugin is the Plugin Coordinator. One Plugin corresponds to one session
// attachment; construct with New.
type Plugin struct {
	cfg       Config
	coord     Coordinator
	framework Framework
	targets   map[agentref.Ident]struct{}
	reconnect retry.Config
	reqMW     []RequestMiddleware
	respMW    []ResponseMiddleware
	tel       telemetry.Provider
	table     *rendezvous.Table

	once   sync.Once
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	stateChanged chan struct{}
	sessionID    string
	lastSeen     uint64
}

// New constructs a Plugin in state Detached. No network activity occurs
// until the first intercepted call or an explicit Start.
func New(cfg Config, coord Coordinator, framework Framework, opts ...Option) *Plugin {
	reconnect := retry.DefaultConfig()
	if cfg.ReconnectMaxAttempts > 0 {
		reconnect.MaxAttempts = cfg.ReconnectMaxAttempts
	}
	if cfg.ReconnectBackoffInitial > 0 {
		reconnect.InitialBackoff = cfg.ReconnectBackoffInitial
	}
	if cfg.ReconnectBackoffMax > 0 {
		reconnect.MaxBackoff = cfg.ReconnectBackoffMax
	}

	p := &Plugin{
		cfg:          cfg,
		coord:        coord,
		framework:    framework,
		targets:      cfg.targetSet(),
		reconnect:    reconnect,
		tel:          telemetry.Noop(),
		table:        rendezvous.New(),
		state:        Detached,
		stateChanged: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start transitions Detached → Attaching and launches the stream reader
// task. Calling Start more than once, or relying on the first intercepted
// call to trigger it implicitly, has the same effect: only the first call
// has any effect.
func (p *Plugin) Start(ctx context.Context) {
	p.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		p.setState(Attaching)
		go p.run(runCtx)
	})
}

// Shutdown cancels the plugin's background reader task, which transitions
// it to Terminal and fails every outstanding waiter with
// bridgeerrors.KindCancelled.
func (p *Plugin) Shutdown() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the plugin's current attachment state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the session this plugin is attached (or attaching) to.
// Empty until Start has resolved a session.
func (p *Plugin) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Hook adapts this Plugin into the Hook shape spec.md §6 describes as the
// framework's synchronous before-model-call extension point.
func (p *Plugin) Hook() Hook {
	return func(ctx context.Context, agentName string, req any) (any, error) {
		return p.Intercept(ctx, agentName, req)
	}
}

// Intercept implements spec.md §4.7's intercept flow. If agentName is not
// in the plugin's target filter, it returns ErrPassThrough immediately
// without touching any coordinator state.
func (p *Plugin) Intercept(ctx context.Context, agentName string, req any) (any, error) {
	ident := agentref.Ident(agentName)
	if !p.shouldIntercept(ident) {
		return nil, ErrPassThrough
	}

	p.Start(ctx)
	if err := p.ensureAttached(ctx); err != nil {
		return nil, err
	}

	payload, err := p.framework.Serialize(req)
	if err != nil {
		return nil, bridgeerrors.Wrap(bridgeerrors.KindInternal, err, "serializing request")
	}

	turnID := uuid.NewString()
	waiter, err := p.table.Register(turnID)
	if err != nil {
		return nil, err
	}

	sessionID := p.SessionID()
	submit := buildRequestChain(p.reqMW, func(ctx context.Context, agentName string, payload []byte) ([]byte, error) {
		_, err := p.coord.SubmitRequest(ctx, sessionID, turnID, ident, payload)
		return payload, err
	})
	if _, err := submit(ctx, agentName, payload); err != nil {
		p.table.Unregister(turnID)
		return nil, err
	}

	select {
	case result := <-waiter.Done():
		if result.Err != nil {
			return nil, result.Err
		}
		deliver := buildResponseChain(p.respMW, func(_ context.Context, _ string, payload []byte) ([]byte, error) {
			return payload, nil
		})
		respPayload, err := deliver(ctx, agentName, result.Payload)
		if err != nil {
			return nil, err
		}
		resp, err := p.framework.Deserialize(respPayload)
		if err != nil {
			return nil, bridgeerrors.Wrap(bridgeerrors.KindInternal, err, "deserializing response")
		}
		return resp, nil
	case <-ctx.Done():
		p.table.Unregister(turnID)
		return nil, bridgeerrors.Wrap(bridgeerrors.KindCancelled, ctx.Err(), "intercept cancelled")
	}
}

func (p *Plugin) shouldIntercept(name agentref.Ident) bool {
	if p.targets == nil {
		return true
	}
	_, ok := p.targets[name]
	return ok
}

// ensureAttached blocks until the plugin reaches Attached, returning
// promptly if it already has (spec.md §4.7 step 1: "block until attached
// on first call; on subsequent calls proceed immediately").
func (p *Plugin) ensureAttached(ctx context.Context) error {
	for {
		p.mu.Lock()
		switch p.state {
		case Attached:
			p.mu.Unlock()
			return nil
		case Terminal:
			p.mu.Unlock()
			return bridgeerrors.New(bridgeerrors.KindConnectionLost, "plugin is in a terminal state")
		}
		ch := p.stateChanged
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return bridgeerrors.Wrap(bridgeerrors.KindCancelled, ctx.Err(), "waiting for attachment")
		}
	}
}

// setState records a state transition and wakes every ensureAttached
// waiter blocked on the previous stateChanged channel.
func (p *Plugin) setState(s State) {
	p.mu.Lock()
	p.state = s
	ch := p.stateChanged
	p.stateChanged = make(chan struct{})
	p.mu.Unlock()
	close(ch)
}

// fail transitions the plugin to Terminal and wakes every outstanding
// Rendezvous waiter with err, per spec.md §4.7's "any state → Terminal"
// transition.
func (p *Plugin) fail(err error) {
	p.setState(Terminal)
	p.table.FailAll(err)
	p.tel.Logger.Error(context.Background(), "plugin reached terminal state", "error", err)
}

// run is the stream reader task: it resolves (or creates) the session,
// then loops subscribing and consuming, reconnecting with
// resume_from_sequence = last_seen_sequence on stream error, per the
// reconnection policy in p.reconnect.
func (p *Plugin) run(ctx context.Context) {
	sessionID, err := p.attachSession(ctx)
	if err != nil {
		p.fail(bridgeerrors.Wrap(bridgeerrors.KindConnectionLost, err, "attaching session"))
		return
	}
	p.mu.Lock()
	p.sessionID = sessionID
	p.mu.Unlock()

	var resumeFrom uint64
	attempt := 0
	for {
		sub, err := p.coord.Subscribe(ctx, sessionID, resumeFrom, p.cfg.SubscribeBufferSize)
		if err != nil {
			attempt++
			backoff, bErr := p.reconnect.Backoff(attempt)
			if bErr != nil {
				p.fail(bridgeerrors.Wrap(bridgeerrors.KindConnectionLost, bErr, "reconnection attempts exhausted"))
				return
			}
			p.setState(Reattaching)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				p.fail(bridgeerrors.Wrap(bridgeerrors.KindCancelled, ctx.Err(), "plugin shut down while reconnecting"))
				return
			}
		}
		attempt = 0
		p.setState(Attached)

		lastSeen, streamErr := p.consume(ctx, sub)
		if lastSeen > resumeFrom {
			resumeFrom = lastSeen
		}
		p.mu.Lock()
		p.lastSeen = resumeFrom
		p.mu.Unlock()

		if ctx.Err() != nil {
			p.fail(bridgeerrors.Wrap(bridgeerrors.KindCancelled, ctx.Err(), "plugin shut down"))
			return
		}
		if streamErr == nil {
			// sub.Deliveries closed cleanly without a ctx cancellation: no
			// further events will ever arrive for this subscription, so
			// treat it the same as a stream error and reconnect.
			streamErr = bridgeerrors.New(bridgeerrors.KindConnectionLost, "subscribe stream closed")
		}
		p.tel.Logger.Error(ctx, "subscribe stream errored, reattaching", "session_id", sessionID, "error", streamErr)
		p.setState(Reattaching)
	}
}

// attachSession resolves the session to subscribe to: the configured
// SessionID if present, otherwise a freshly created one.
func (p *Plugin) attachSession(ctx context.Context) (string, error) {
	if p.cfg.SessionID != "" {
		sess, err := p.coord.GetSession(ctx, p.cfg.SessionID)
		if err != nil {
			return "", err
		}
		return sess.ID, nil
	}
	sess, err := p.coord.CreateSession(ctx, "")
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// consume is the stream reader task's inner loop (spec.md §4.7): for each
// response event, resolve the matching Rendezvous waiter; request events
// are echoes of this plugin's own submissions and are ignored. Returns the
// highest sequence observed and the terminal error (nil if ctx was
// cancelled, in which case the subscription has already been cancelled).
func (p *Plugin) consume(ctx context.Context, sub *broadcast.Subscription) (uint64, error) {
	var lastSeen uint64
	for {
		select {
		case d, ok := <-sub.Deliveries:
			if !ok {
				return lastSeen, nil
			}
			if d.Err != nil {
				return lastSeen, d.Err
			}
			if d.Event.Sequence > lastSeen {
				lastSeen = d.Event.Sequence
			}
			if d.Event.PayloadKind == eventlog.Response {
				p.table.Resolve(d.Event.TurnID, d.Event.Payload)
			}
		case <-ctx.Done():
			sub.Cancel()
			return lastSeen, nil
		}
	}
}

func buildRequestChain(mw []RequestMiddleware, base RequestHandler) RequestHandler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func buildResponseChain(mw []ResponseMiddleware, base ResponseHandler) ResponseHandler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
