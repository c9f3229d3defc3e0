package bridgeerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"goa.design/bridge/bridgeerrors"
)

func TestKindOf(t *testing.T) {
	err := bridgeerrors.New(bridgeerrors.KindUnknownTurn, "turn %s not found", "t-1")
	if got := bridgeerrors.KindOf(err); got != bridgeerrors.KindUnknownTurn {
		t.Fatalf("KindOf = %q, want %q", got, bridgeerrors.KindUnknownTurn)
	}

	plain := errors.New("boom")
	if got := bridgeerrors.KindOf(plain); got != bridgeerrors.KindInternal {
		t.Fatalf("KindOf(plain) = %q, want %q", got, bridgeerrors.KindInternal)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := bridgeerrors.Wrap(bridgeerrors.KindStorage, cause, "")

	if err.Message != cause.Error() {
		t.Fatalf("Message = %q, want cause message %q", err.Message, cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := bridgeerrors.New(bridgeerrors.KindDuplicateTurn, "turn t-1 already has a request")
	b := bridgeerrors.New(bridgeerrors.KindDuplicateTurn, "turn t-2 already has a request")

	if !errors.Is(a, b) {
		t.Fatalf("expected errors of the same Kind to match via errors.Is")
	}
	if errors.Is(a, bridgeerrors.ErrUnknownTurn) {
		t.Fatalf("expected errors of different Kind not to match")
	}
}

func TestAsExtractsWrapped(t *testing.T) {
	inner := bridgeerrors.New(bridgeerrors.KindSubscriberTooSlow, "buffer overflow")
	wrapped := fmt.Errorf("notify: %w", inner)

	got, ok := bridgeerrors.As(wrapped)
	if !ok {
		t.Fatalf("As() did not find wrapped *Error")
	}
	if got.Kind != bridgeerrors.KindSubscriberTooSlow {
		t.Fatalf("Kind = %q, want %q", got.Kind, bridgeerrors.KindSubscriberTooSlow)
	}
}

func TestErrorString(t *testing.T) {
	err := bridgeerrors.New(bridgeerrors.KindInternal, "")
	if err.Error() != string(bridgeerrors.KindInternal) {
		t.Fatalf("Error() = %q, want bare kind %q", err.Error(), bridgeerrors.KindInternal)
	}
}
