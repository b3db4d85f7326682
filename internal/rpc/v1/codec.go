// Package convsyncv1 is the operator API served by convsyncd on its unix
// socket. Messages travel as JSON through a gRPC codec registered under the
// "json" content subtype; the service descriptors are maintained by hand.
//
// codec.go, types.go and service.go stand in for protoc output. Once a
// .proto for this API exists, generate with protoc-gen-go and
// protoc-gen-go-grpc into this package, delete the hand-written types and
// descriptors, and drop the json codec so calls use the default proto codec.
// Until then the generated-style clients add
// grpc.CallContentSubtype(CodecName) to every call.
package convsyncv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype every call must carry.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
