package rendezvous_test

import (
	"errors"
	"testing"
	"time"

	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/pluginbridge/rendezvous"
)

func TestRegisterResolveDelivers(t *testing.T) {
	table := rendezvous.New()
	w, err := table.Register("t1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	go table.Resolve("t1", []byte("RESP"))

	select {
	case r := <-w.Done():
		if r.Err != nil || string(r.Payload) != "RESP" {
			t.Fatalf("Result = %+v, want payload RESP", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for resolve")
	}
}

func TestDuplicateRegisterRejected(t *testing.T) {
	table := rendezvous.New()
	if _, err := table.Register("t1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := table.Register("t1")
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindDuplicateTurn {
		t.Fatalf("kind = %q, want %q", kind, bridgeerrors.KindDuplicateTurn)
	}
}

func TestResolveWithNoWaiterIsNoop(t *testing.T) {
	table := rendezvous.New()
	table.Resolve("missing", []byte("x")) // must not panic
}

func TestDoubleResolveIsIdempotent(t *testing.T) {
	table := rendezvous.New()
	w, _ := table.Register("t1")

	table.Resolve("t1", []byte("first"))
	table.Resolve("t1", []byte("second")) // discarded: no waiter left registered

	r := w.Wait()
	if string(r.Payload) != "first" {
		t.Fatalf("Payload = %q, want %q", r.Payload, "first")
	}
}

func TestFailAllWakesEveryWaiter(t *testing.T) {
	table := rendezvous.New()
	w1, _ := table.Register("t1")
	w2, _ := table.Register("t2")

	cause := errors.New("connection lost")
	table.FailAll(bridgeerrors.Wrap(bridgeerrors.KindConnectionLost, cause, ""))

	for _, w := range []*rendezvous.Waiter{w1, w2} {
		r := w.Wait()
		if bridgeerrors.KindOf(r.Err) != bridgeerrors.KindConnectionLost {
			t.Fatalf("kind = %q, want %q", bridgeerrors.KindOf(r.Err), bridgeerrors.KindConnectionLost)
		}
	}
}
