// Package rendezvous types the server-side half of the Rendezvous Table
// (spec.md §4.5). The server's rendezvous bookkeeping is trivial — the
// waiter lives in the plugin, not here — so this package exists only to
// give that fact a type, for symmetry with the component table in
// SPEC_FULL.md.
package rendezvous

// Entry identifies a turn the server has broadcast a request for. The
// server does not track waiters against it; it exists purely as a
// documented correlation key, mirroring how the plugin-side
// pluginbridge/rendezvous.Table tracks the same (SessionID, TurnID) pair
// against an actual waiter.
type Entry struct {
	SessionID string
	TurnID    string
}
