package queue_test

import (
	"context"
	"testing"

	"goa.design/bridge/eventlog"
	"goa.design/bridge/eventlog/inmem"
	"goa.design/bridge/queue"
)

func TestFIFOOrderAndDequeue(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	store.CreateSession(ctx, "s1", "")

	q := queue.New(store)
	q.Enqueue("s1", queue.Entry{TurnID: "t1"})
	q.Enqueue("s1", queue.Entry{TurnID: "t2"})

	if got := q.Head("s1"); got != "t1" {
		t.Fatalf("Head = %q, want t1", got)
	}

	q.Dequeue("s1", "t1")
	if got := q.Head("s1"); got != "t2" {
		t.Fatalf("Head after dequeue t1 = %q, want t2", got)
	}

	q.Dequeue("s1", "t2")
	if got := q.Head("s1"); got != "" {
		t.Fatalf("Head after dequeue all = %q, want empty", got)
	}
}

func TestDequeueAbsentIsNoop(t *testing.T) {
	q := queue.New(inmem.New())
	q.Dequeue("s1", "missing")
	if got := q.Head("s1"); got != "" {
		t.Fatalf("Head = %q, want empty", got)
	}
}

func TestReconstructFromLog(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	store.CreateSession(ctx, "s1", "")
	store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Request, []byte("1"))
	store.AppendEvent(ctx, "s1", "t2", "orch", eventlog.Request, []byte("2"))
	store.AppendEvent(ctx, "s1", "t1", "orch", eventlog.Response, []byte("r1"))

	q := queue.New(store)
	if err := q.Reconstruct(ctx, "s1"); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if got := q.Head("s1"); got != "t2" {
		t.Fatalf("Head after reconstruct = %q, want t2", got)
	}
	pending := q.ListPending("s1")
	if len(pending) != 1 || pending[0].TurnID != "t2" {
		t.Fatalf("ListPending = %+v, want only t2", pending)
	}
}
