// Package transport defines the skilltoken.v1.Registry gRPC service: its
// method table, request and response messages, and the JSON codec they
// travel in.
package transport

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "skilltoken.v1.Registry"

	// CodecName is the content subtype clients must request.
	CodecName = "json"

	// MetadataAccount carries the calling account on every request.
	MetadataAccount = "x-skilltoken-account"

	// TrailerCode carries the registry error code on failed calls.
	TrailerCode = "x-skilltoken-code"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }
