package pluginbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"goa.design/bridge/agentref"
	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/broadcast"
	"goa.design/bridge/coordinator"
	"goa.design/bridge/eventlog/inmem"
	"goa.design/bridge/pluginbridge"
	"goa.design/bridge/queue"
	"goa.design/bridge/session"
	"goa.design/bridge/telemetry"
)

// echoFramework serializes/deserializes plain strings as JSON, the
// simplest possible stand-in for a real agent framework's request/response
// types.
type echoFramework struct{}

func (echoFramework) Serialize(req any) ([]byte, error) { return json.Marshal(req) }
func (echoFramework) Deserialize(payload []byte) (any, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func newCoordinator(t *testing.T) *coordinator.Server {
	t.Helper()
	store := inmem.New()
	sessions := session.New(store)
	q := queue.New(store)
	bus := broadcast.NewHub(store, 32, telemetry.Noop())
	return coordinator.New(sessions, store, q, bus, telemetry.Noop())
}

func TestInterceptRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := newCoordinator(t)
	p := pluginbridge.New(pluginbridge.Config{}, coord, echoFramework{})
	defer p.Shutdown()

	done := make(chan struct {
		resp any
		err  error
	})
	go func() {
		resp, err := p.Intercept(ctx, "orch", "REQ1")
		done <- struct {
			resp any
			err  error
		}{resp, err}
	}()

	// Wait for the plugin to attach and submit its request, then answer it
	// as a human/UI would via the same in-process coordinator.
	var sessionID string
	for i := 0; i < 100 && sessionID == ""; i++ {
		sessionID = p.SessionID()
		time.Sleep(5 * time.Millisecond)
	}
	if sessionID == "" {
		t.Fatalf("plugin never attached to a session")
	}

	var turnID string
	for i := 0; i < 100 && turnID == ""; i++ {
		pending := coord.ListPending(sessionID)
		if len(pending) > 0 {
			turnID = pending[0].TurnID
		}
		time.Sleep(5 * time.Millisecond)
	}
	if turnID == "" {
		t.Fatalf("request was never submitted")
	}

	respPayload, err := json.Marshal("RESP1")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := coord.SubmitResponse(ctx, sessionID, turnID, respPayload); err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("Intercept error: %v", result.err)
		}
		if result.resp != "RESP1" {
			t.Fatalf("Intercept response = %v, want RESP1", result.resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Intercept to resolve")
	}
}

func TestInterceptPassThroughOutsideFilter(t *testing.T) {
	ctx := context.Background()
	coord := newCoordinator(t)
	p := pluginbridge.New(pluginbridge.Config{TargetAgents: []agentref.Ident{"orch"}}, coord, echoFramework{})
	defer p.Shutdown()

	_, err := p.Intercept(ctx, "other", "REQ1")
	if !errors.Is(err, pluginbridge.ErrPassThrough) {
		t.Fatalf("Intercept error = %v, want ErrPassThrough", err)
	}
	if got := p.State(); got != pluginbridge.Detached {
		t.Fatalf("State = %q, want %q", got, pluginbridge.Detached)
	}
}

func TestInterceptCancelUnregistersWaiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	coord := newCoordinator(t)
	p := pluginbridge.New(pluginbridge.Config{}, coord, echoFramework{})
	defer p.Shutdown()

	done := make(chan error, 1)
	go func() {
		_, err := p.Intercept(ctx, "orch", "REQ1")
		done <- err
	}()

	var sessionID string
	for i := 0; i < 100 && sessionID == ""; i++ {
		sessionID = p.SessionID()
		time.Sleep(5 * time.Millisecond)
	}
	var turnID string
	for i := 0; i < 100 && turnID == ""; i++ {
		pending := coord.ListPending(sessionID)
		if len(pending) > 0 {
			turnID = pending[0].TurnID
		}
		time.Sleep(5 * time.Millisecond)
	}
	if turnID == "" {
		t.Fatalf("request was never submitted")
	}

	cancel()

	select {
	case err := <-done:
		if bridgeerrors.KindOf(err) != bridgeerrors.KindCancelled {
			t.Fatalf("kind = %q, want %q", bridgeerrors.KindOf(err), bridgeerrors.KindCancelled)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Intercept to observe cancellation")
	}

	// A late response for the cancelled turn must not panic or block.
	respPayload, _ := json.Marshal("late")
	if _, err := coord.SubmitResponse(context.Background(), sessionID, turnID, respPayload); err != nil {
		t.Fatalf("late SubmitResponse: %v", err)
	}
}

func TestInterceptAttachFailureReturnsConnectionLost(t *testing.T) {
	ctx := context.Background()
	coord := newCoordinator(t)
	p := pluginbridge.New(pluginbridge.Config{SessionID: "does-not-exist"}, coord, echoFramework{})
	defer p.Shutdown()

	_, err := p.Intercept(ctx, "orch", "REQ1")
	if err == nil {
		t.Fatalf("expected an error attaching to a nonexistent session")
	}
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindConnectionLost {
		t.Fatalf("kind = %q, want %q", kind, bridgeerrors.KindConnectionLost)
	}
}
