package inmem_test

import (
	"context"
	"testing"

	"goa.design/bridge/bridgeerrors"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/eventlog/inmem"
)

func TestAppendAndReadOrder(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()

	if _, err := store.CreateSession(ctx, "s1", "demo"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, seq, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("REQ1")); err != nil || seq != 1 {
		t.Fatalf("AppendEvent request: seq=%d err=%v", seq, err)
	}
	if _, seq, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("RESP1")); err != nil || seq != 2 {
		t.Fatalf("AppendEvent response: seq=%d err=%v", seq, err)
	}

	var got []eventlog.Event
	if err := store.ReadEventsSince(ctx, "s1", 0, func(e eventlog.Event) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadEventsSince: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].PayloadKind != eventlog.Request || got[1].PayloadKind != eventlog.Response {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Sequence >= got[1].Sequence {
		t.Fatalf("sequence not strictly increasing: %d, %d", got[0].Sequence, got[1].Sequence)
	}
}

func TestAppendDuplicateResponseRejected(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	store.CreateSession(ctx, "s1", "")
	store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("REQ"))

	if _, _, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("A")); err != nil {
		t.Fatalf("first response: %v", err)
	}
	_, _, err := store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("B"))
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindDuplicateResponse {
		t.Fatalf("second response kind = %q, want %q", kind, bridgeerrors.KindDuplicateResponse)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	_, _, err := store.AppendEvent(ctx, "missing", "t1", "orch", eventlog.Request, nil)
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindSessionNotFound {
		t.Fatalf("kind = %q, want %q", kind, bridgeerrors.KindSessionNotFound)
	}
}

func TestCreateSessionDuplicate(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	store.CreateSession(ctx, "s1", "")
	_, err := store.CreateSession(ctx, "s1", "")
	if kind := bridgeerrors.KindOf(err); kind != bridgeerrors.KindDuplicateSession {
		t.Fatalf("kind = %q, want %q", kind, bridgeerrors.KindDuplicateSession)
	}
}

func TestListSessionsPagination(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	for _, id := range []string{"a", "b", "c"} {
		store.CreateSession(ctx, id, "")
	}

	page1, cursor1, err := store.ListSessions(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListSessions page1: %v", err)
	}
	if len(page1) != 2 || cursor1 != "b" {
		t.Fatalf("page1 = %+v cursor=%q", page1, cursor1)
	}

	page2, cursor2, err := store.ListSessions(ctx, cursor1, 2)
	if err != nil {
		t.Fatalf("ListSessions page2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "c" || cursor2 != "" {
		t.Fatalf("page2 = %+v cursor=%q", page2, cursor2)
	}
}

func TestReadEventsSinceResumePoint(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	store.CreateSession(ctx, "s1", "")
	store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("1"))
	store.AppendEvent(ctx, "s1", "t2", "orch", eventlog.Request, []byte("2"))

	var got []eventlog.Event
	store.ReadEventsSince(ctx, "s1", 1, func(e eventlog.Event) error {
		got = append(got, e)
		return nil
	})
	if len(got) != 1 || got[0].TurnID != "t2" {
		t.Fatalf("got = %+v, want only t2", got)
	}
}
