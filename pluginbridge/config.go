package pluginbridge

import (
	"time"

	"goa.design/bridge/agentref"
)

// Config is the plugin's configuration surface, matching spec.md §6's field
// list exactly.
type Config struct {
	// ServerAddress is the network endpoint of the Server Coordinator.
	ServerAddress string
	// SessionID, if present, attaches to an existing session; if empty, a
	// new session is created on Start.
	SessionID string
	// TargetAgents is the set of agent names to intercept. Empty means
	// intercept all (spec.md §4.7 "Selective interception").
	TargetAgents []agentref.Ident
	// ReconnectMaxAttempts bounds the reconnection policy.
	ReconnectMaxAttempts int
	// ReconnectBackoffInitial is the delay before the first reconnect try.
	ReconnectBackoffInitial time.Duration
	// ReconnectBackoffMax caps reconnect backoff growth.
	ReconnectBackoffMax time.Duration
	// SubscribeBufferSize bounds the per-subscription buffer used when this
	// plugin's stream reader task subscribes to its session.
	SubscribeBufferSize int
}

// targetSet returns cfg.TargetAgents as a lookup set; a nil/empty set means
// "intercept all" per spec.md §4.7.
func (c Config) targetSet() map[agentref.Ident]struct{} {
	if len(c.TargetAgents) == 0 {
		return nil
	}
	set := make(map[agentref.Ident]struct{}, len(c.TargetAgents))
	for _, a := range c.TargetAgents {
		set[a] = struct{}{}
	}
	return set
}
