package session_test

import (
	"context"
	"testing"

	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog/inmem"
	"goa.design/bridge/session"
)

func TestCreateAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	reg := session.New(inmem.New())

	s1, err := reg.Create(ctx, "demo")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s2, err := reg.Create(ctx, "demo")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s1.ID == s2.ID {
		t.Fatalf("expected distinct ids, got %q twice", s1.ID)
	}
}

func TestGetUnknownSession(t *testing.T) {
	ctx := context.Background()
	reg := session.New(inmem.New())

	_, err := reg.Get(ctx, "missing")
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindSessionNotFound {
		t.Fatalf("kind = %q, want %q", kind, bridgeerrors.KindSessionNotFound)
	}
}
