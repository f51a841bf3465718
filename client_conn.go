package connect

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/coreconnect/connect/codec"
	"google.golang.org/protobuf/proto"
)

// Client is a type-safe wrapper around ProtocolClient for a single RPC
// method, generic over its request and response message types. Generated
// service clients construct one Client per method, built on top of
// ProtocolClient.
type Client[Req, Res proto.Message] struct {
	protocol *ProtocolClient
	spec     MethodSpec
	codec    codec.Codec
	newRes   func() Res
}

// NewClient builds a Client bound to one method. newRes must return a
// freshly allocated, zero-valued Res; Go generics can't construct an
// interface-constrained type parameter directly, so the factory is
// supplied by the generated caller (which knows the concrete message type).
func NewClient[Req, Res proto.Message](protocolClient *ProtocolClient, spec MethodSpec, c codec.Codec, newRes func() Res) *Client[Req, Res] {
	return &Client[Req, Res]{protocol: protocolClient, spec: spec, codec: c, newRes: newRes}
}

// CallUnary marshals req, issues the RPC, and unmarshals the response.
func (c *Client[Req, Res]) CallUnary(ctx context.Context, req Req, header Headers) (Res, Headers, error) {
	var zero Res
	body, err := c.codec.Marshal(req)
	if err != nil {
		return zero, NewHeaders(), NewError(CodeInternal, fmt.Errorf("marshal request: %w", err))
	}
	resp, err := c.protocol.CallUnary(ctx, c.spec, header, body)
	if err != nil {
		if resp != nil {
			return zero, resp.Header, err
		}
		return zero, NewHeaders(), err
	}
	res := c.newRes()
	if err := c.codec.Unmarshal(resp.Message, res); err != nil {
		return zero, resp.Header, NewError(CodeInternal, fmt.Errorf("unmarshal response: %w", err))
	}
	return res, resp.Header, nil
}

// CallStream opens a streaming call of whatever shape c.spec.StreamKind
// describes, returning a typed Stream the caller drives with Send/Receive.
func (c *Client[Req, Res]) CallStream(ctx context.Context, header Headers) (*Stream[Req, Res], error) {
	conn, err := c.protocol.CallStream(ctx, c.spec, header)
	if err != nil {
		return nil, err
	}
	return &Stream[Req, Res]{conn: conn, codec: c.codec, newRes: c.newRes}, nil
}

// Stream is the caller-facing handle for one open streaming RPC. Send may
// be called concurrently with Receive, but Receive itself is
// single-consumer, matching ClientStreamConn's own concurrency contract.
type Stream[Req, Res proto.Message] struct {
	conn   *ClientStreamConn
	codec  codec.Codec
	newRes func() Res

	mu      sync.Mutex
	header  Headers
	trailer Headers
}

// Send marshals and sends one request message.
func (s *Stream[Req, Res]) Send(req Req) error {
	body, err := s.codec.Marshal(req)
	if err != nil {
		return NewError(CodeInternal, fmt.Errorf("marshal request: %w", err))
	}
	return s.conn.Send(body)
}

// CloseSend shuts the send half of the stream, signaling that no further
// requests follow.
func (s *Stream[Req, Res]) CloseSend() error {
	return s.conn.CloseSend()
}

// Receive blocks for the next response message. It returns io.EOF once the
// stream completes successfully, or the call's *Error if it completed with
// a non-OK status.
func (s *Stream[Req, Res]) Receive() (Res, error) {
	var zero Res
	for result := range s.conn.Results() {
		switch result.Kind {
		case StreamResultHeaders:
			s.mu.Lock()
			s.header = result.Header
			s.mu.Unlock()
		case StreamResultMessage:
			res := s.newRes()
			if err := s.codec.Unmarshal(result.Message, res); err != nil {
				return zero, NewError(CodeInternal, fmt.Errorf("unmarshal response: %w", err))
			}
			return res, nil
		case StreamResultComplete:
			s.mu.Lock()
			s.trailer = result.Trailer
			s.mu.Unlock()
			if result.Code == CodeOK {
				return zero, io.EOF
			}
			if result.Cause != nil {
				return zero, result.Cause
			}
			return zero, NewError(result.Code, nil)
		}
	}
	return zero, errStreamClosedWithoutTrailers
}

// Header returns the response headers observed so far. It's only
// guaranteed populated after at least one Receive call has returned.
func (s *Stream[Req, Res]) Header() Headers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Trailer returns the stream's trailing metadata. It's only populated once
// Receive has returned io.EOF or a terminal error.
func (s *Stream[Req, Res]) Trailer() Headers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trailer
}

// CloseReceive cancels the stream: it's the caller-facing equivalent of
// ClientStreamConn.Cancel, used when the caller abandons a stream without
// reading it to completion.
func (s *Stream[Req, Res]) CloseReceive() {
	s.conn.Cancel()
}
