package grpcjson

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the name negotiated on the wire via the grpc "Content-Type:
// application/grpc+json" convention and registered with
// google.golang.org/grpc/encoding so grpc.Server/grpc.ClientConn marshal
// messages with encoding/json instead of the default proto codec.
const codecName = "json"

// jsonCodec implements encoding.Codec over the plain Go structs in
// messages.go, letting this package exercise google.golang.org/grpc without
// requiring protobuf-generated message types (spec.md §1's declared
// non-goal on code generation).
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallContentSubtype is passed via grpc.CallContentSubtype so the client
// negotiates the json codec registered above instead of grpc-go's default.
func CallContentSubtype() string { return codecName }
