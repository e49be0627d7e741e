package grpc

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec for the
// plain Go structs in types.go. grpc-go's default codec only knows how to
// marshal proto.Message; since this contract has no generated protobuf
// types (see types.go), the server and client are both configured with
// grpc.ForceServerCodec/grpc.ForceCodec to use this one instead, a
// supported substitution point in the public grpc-go API.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "hivemind-json"
}
