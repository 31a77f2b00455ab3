// Package rpc defines the Bridge gRPC service: its messages, a JSON codec
// and a hand-written service descriptor with client stubs.
//
// The JSON codec stands in for generated protobuf code: messages are plain
// Go structs, and both ends select the codec through the "json"
// content-subtype.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the JSON codec.
const CodecName = "json"

// Codec marshals messages as JSON.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOption selects the JSON codec for client calls.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
