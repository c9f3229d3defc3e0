package pluginbridge

// State is the Plugin Coordinator's attachment state machine (spec.md
// §4.7).
type State string

const (
	// Detached is the initial state: no subscribe stream has been
	// established yet.
	Detached State = "detached"
	// Attaching: a subscribe stream is being established for the first
	// time, or re-established after Start().
	Attaching State = "attaching"
	// Attached: the subscribe stream is established and initial replay has
	// caught up.
	Attached State = "attached"
	// Reattaching: the subscribe stream errored and a new one is being
	// established with resume_from_sequence = last_seen_sequence.
	Reattaching State = "reattaching"
	// Terminal: shutdown was requested, or the reconnection policy was
	// exhausted. FailAll has been invoked; no further attach attempts are
	// made.
	Terminal State = "terminal"
)
