package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// protoName is the wire token for the binary protobuf codec, matching the
// "proto" subtype every protocol's Content-Type uses
// (application/grpc+proto, application/connect+proto, and so on).
const protoName = "proto"

// Proto is the binary protobuf Codec.
type Proto struct{}

var _ Codec = Proto{}
var _ StableCodec = Proto{}

func (Proto) Name() string { return protoName }

func (Proto) IsBinary() bool { return true }

func (Proto) Marshal(msg any) ([]byte, error) {
	message, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	return proto.Marshal(message)
}

func (Proto) MarshalAppend(base []byte, msg any) ([]byte, error) {
	message, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	return proto.MarshalOptions{}.MarshalAppend(base, message)
}

func (Proto) MarshalStable(msg any) ([]byte, error) {
	message, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	// Deterministic marshaling doesn't guarantee wire-stability across
	// proto library versions, only within one; that's the same caveat
	// google.golang.org/protobuf itself documents.
	return proto.MarshalOptions{Deterministic: true}.Marshal(message)
}

func (Proto) Unmarshal(data []byte, msg any) error {
	message, ok := msg.(proto.Message)
	if !ok {
		return fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	return proto.Unmarshal(data, message)
}
