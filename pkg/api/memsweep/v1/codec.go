// Package memsweepv1 defines the memsweepd gRPC API: its messages, service
// description, server registration and client stub. Messages are plain Go
// structs carried by a JSON codec, so no protobuf generation is involved.
//
// Clients select the codec per call:
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithTransportCredentials(insecure.NewCredentials()),
//	    grpc.WithDefaultCallOptions(grpc.CallContentSubtype(memsweepv1.CodecName)))
package memsweepv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the JSON codec.
const CodecName = "json"

// Codec marshals API messages as JSON.
type Codec struct{}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(Codec{})
}
