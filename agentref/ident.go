// Package agentref provides a strong type identifier for the free-form agent
// labels that flow through session events.
package agentref

// Ident is the strong type for an agent label (e.g. "orchestrator",
// "svc.researcher"). The coordinator never interprets this value beyond
// routing and display; it is opaque beyond equality comparisons.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }
