package connect

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// ErrorDetail is a typed, protocol-agnostic piece of error metadata. On the
// wire it's carried as a google.protobuf.Any: a type URL plus the message's
// serialized bytes. Using the real anypb.Any (already a transitive
// dependency of google.golang.org/protobuf, which every protocol in this
// module depends on for Status) means details round-trip through any
// protobuf-aware peer without this module inventing its own envelope.
type ErrorDetail struct {
	any *anypb.Any
}

// NewErrorDetail packs msg into an ErrorDetail.
func NewErrorDetail(msg proto.Message) (*ErrorDetail, error) {
	any, err := anypb.New(msg)
	if err != nil {
		return nil, NewError(CodeInternal, fmt.Errorf("pack error detail: %w", err))
	}
	return &ErrorDetail{any: any}, nil
}

// newErrorDetailFromAny wraps an already-constructed Any, for details
// extracted off the wire (gRPC's Status.Details or Connect's JSON details
// array).
func newErrorDetailFromAny(any *anypb.Any) *ErrorDetail {
	return &ErrorDetail{any: any}
}

// Type returns the detail's fully-qualified protobuf message name, e.g.
// "google.rpc.QuotaFailure".
func (d *ErrorDetail) Type() string {
	if d == nil || d.any == nil {
		return ""
	}
	typeURL := d.any.GetTypeUrl()
	for i := len(typeURL) - 1; i >= 0; i-- {
		if typeURL[i] == '/' {
			return typeURL[i+1:]
		}
	}
	return typeURL
}

// Bytes returns the detail's raw serialized payload.
func (d *ErrorDetail) Bytes() []byte {
	if d == nil || d.any == nil {
		return nil
	}
	return d.any.GetValue()
}

// Unmarshal decodes the detail into msg if its type matches, reporting
// whether it did.
func (d *ErrorDetail) Unmarshal(msg proto.Message) (bool, error) {
	if d == nil || d.any == nil {
		return false, nil
	}
	if !d.any.MessageIs(msg) {
		return false, nil
	}
	if err := d.any.UnmarshalTo(msg); err != nil {
		return false, NewError(CodeInternal, fmt.Errorf("unmarshal error detail: %w", err))
	}
	return true, nil
}

// asAny exposes the underlying Any for protocols that serialize details
// directly (gRPC's google.rpc.Status.details field).
func (d *ErrorDetail) asAny() *anypb.Any {
	if d == nil {
		return nil
	}
	return d.any
}

// anyFromParts builds an *anypb.Any directly from a type URL and raw value,
// for protocols (Connect's JSON error envelope) that carry a detail's type
// name and bytes separately instead of a ready-made Any.
func anyFromParts(typeURL string, value []byte) *anypb.Any {
	return &anypb.Any{TypeUrl: typeURL, Value: value}
}
