package pluginbridge

import "context"

// Framework is the plugin ↔ agent-framework contract (spec.md §6): the
// plugin requires exactly three things from its host.
type Framework interface {
	// Serialize converts a framework request object into the opaque wire
	// payload carried by SubmitRequest. The plugin does not parse the
	// result; it transports it.
	Serialize(req any) ([]byte, error)
	// Deserialize converts an opaque response payload back into the
	// framework's response object.
	Deserialize(payload []byte) (any, error)
}

// Hook is the synchronous hook point invoked by the host framework before
// each model call (spec.md §6, item 1). Implementations are provided by
// Plugin.Hook; hosts wire it into their own before-model-call extension
// point.
type Hook func(ctx context.Context, agentName string, req any) (any, error)

// RequestHandler is the innermost shape of the outbound request path: the
// raw bytes a serializer produced, about to be sent via SubmitRequest.
type RequestHandler func(ctx context.Context, agentName string, payload []byte) ([]byte, error)

// RequestMiddleware wraps a RequestHandler, mirroring the onion composition
// of the teacher's gateway.Server UnaryMiddleware: the first middleware
// registered is the outermost layer. Used to redact or annotate outbound
// payloads before they leave the process (SPEC_FULL.md §6 expansion).
type RequestMiddleware func(next RequestHandler) RequestHandler

// ResponseHandler is the innermost shape of the inbound response path: the
// raw response payload about to be deserialized and returned to the host.
type ResponseHandler func(ctx context.Context, agentName string, payload []byte) ([]byte, error)

// ResponseMiddleware is the response-path analogue of RequestMiddleware.
type ResponseMiddleware func(next ResponseHandler) ResponseHandler
