package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// jsonName is the wire token for the JSON codec
// (application/grpc+json, application/connect+json, and so on).
const jsonName = "json"

// JSON is the protobuf-JSON Codec, wrapping
// google.golang.org/protobuf/encoding/protojson.
type JSON struct {
	// EmitUnpopulated matches protojson.MarshalOptions.EmitUnpopulated. The
	// zero value leaves it false; setting it to true keeps output stable
	// regardless of which fields happen to be zero-valued.
	EmitUnpopulated bool
}

var _ Codec = JSON{}

func (JSON) Name() string { return jsonName }

func (JSON) IsBinary() bool { return false }

func (j JSON) Marshal(msg any) ([]byte, error) {
	message, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	return protojson.MarshalOptions{EmitUnpopulated: j.EmitUnpopulated}.Marshal(message)
}

func (j JSON) MarshalAppend(base []byte, msg any) ([]byte, error) {
	out, err := j.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(base, out...), nil
}

func (JSON) Unmarshal(data []byte, msg any) error {
	message, ok := msg.(proto.Message)
	if !ok {
		return fmt.Errorf("%T doesn't implement proto.Message", msg)
	}
	return protojson.Unmarshal(data, message)
}
