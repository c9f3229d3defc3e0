// Package rendezvous is the plugin-side Rendezvous Table (spec.md §4.5):
// it lets the plugin's intercept hook suspend until a response arrives,
// and lets the stream-reader task resolve the correct suspended caller.
// Grounded on the channel/ack idiom in the teacher's
// registry/result_stream.go WaitForResult (subscribe, wait, single
// resolution, idempotent ack-and-discard-late-arrivals), reimplemented as
// a local one-shot channel table rather than a second Redis round trip,
// per spec.md §9's note that this is "a condition variable or a one-shot
// channel" in a multi-threaded setting.
package rendezvous

import (
	"sync"

	"goa.design/bridge/bridgeerrors"
)

// Result is the outcome delivered to a Waiter: either a response payload,
// or a terminal error (never both).
type Result struct {
	Payload []byte
	Err     error
}

// Waiter is a one-shot handle a caller blocks on until Resolve or Fail is
// called for its turn id.
type Waiter struct {
	ch chan Result
}

// Wait blocks until the waiter is resolved or failed. It never times out
// by itself; callers that need cancellation should select on Done()
// alongside ctx.Done() instead (see pluginbridge's Intercept).
func (w *Waiter) Wait() Result {
	return <-w.ch
}

// Done exposes the underlying channel so callers can select on it
// alongside ctx.Done() rather than blocking unconditionally in Wait.
func (w *Waiter) Done() <-chan Result { return w.ch }

// Table correlates turn ids to one-shot Waiters. Register and
// Resolve/Fail may be called from any goroutine; each waiter is resolved
// exactly once.
type Table struct {
	mu      sync.Mutex
	waiters map[string]chan Result
}

// New constructs an empty Table.
func New() *Table {
	return &Table{waiters: make(map[string]chan Result)}
}

// Register creates a one-shot Waiter for turnID. Returns
// bridgeerrors.KindDuplicateTurn if turnID is already registered and not
// yet resolved.
func (t *Table) Register(turnID string) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.waiters[turnID]; exists {
		return nil, bridgeerrors.New(bridgeerrors.KindDuplicateTurn, "turn %q already registered", turnID)
	}
	ch := make(chan Result, 1)
	t.waiters[turnID] = ch
	return &Waiter{ch: ch}, nil
}

// Unregister removes turnID's waiter without resolving it, used when
// SubmitRequest itself fails and the intercept call never suspends.
func (t *Table) Unregister(turnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiters, turnID)
}

// Resolve wakes the registered waiter for turnID with payload. If no
// waiter is registered, or it was already resolved, this is a silent
// no-op (spec.md §4.5).
func (t *Table) Resolve(turnID string, payload []byte) {
	t.deliver(turnID, Result{Payload: payload})
}

// Fail is symmetric to Resolve but delivers err instead of a payload.
func (t *Table) Fail(turnID string, err error) {
	t.deliver(turnID, Result{Err: err})
}

func (t *Table) deliver(turnID string, r Result) {
	t.mu.Lock()
	ch, ok := t.waiters[turnID]
	if ok {
		delete(t.waiters, turnID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	ch <- r
}

// FailAll wakes every outstanding waiter with err. Used on terminal
// disconnect when reconnection will not be attempted.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[string]chan Result)
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- Result{Err: err}
	}
}
