package connect

import "context"

// UnaryFunc is one leg of a unary call: either the raw request function
// (before any interceptor has touched it) or a fully-wrapped function that
// also runs every installed interceptor.
type UnaryFunc func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)

// StreamingClientFunc opens a stream, returning the ClientStreamConn whose
// Results channel the caller reads from. The conn also exposes
// Send/CloseSend; see duplex_stream.go.
type StreamingClientFunc func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error)

// UnaryInterceptorFunc wraps a single unary call with before/after logic.
type UnaryInterceptorFunc func(UnaryFunc) UnaryFunc

// StreamingClientInterceptorFunc wraps stream construction.
type StreamingClientInterceptorFunc func(StreamingClientFunc) StreamingClientFunc

// Interceptor is a bidirectional transform applied uniformly to requests
// and responses/streams. A protocol client installs exactly one protocol
// Interceptor (Connect, gRPC, or gRPC-Web) after any user interceptors, so
// the protocol interceptor sits nearest the transport.
type Interceptor interface {
	// WrapUnary returns the function this interceptor contributes to the
	// unary chain.
	WrapUnary(UnaryFunc) UnaryFunc
	// WrapStreamingClient returns the function this interceptor contributes
	// to the streaming chain.
	WrapStreamingClient(StreamingClientFunc) StreamingClientFunc
}

// newUnaryChain composes interceptors so the first interceptor
// added is outermost: it's the first to see the raw request and the last to
// see the final response. Request functions run outermost-first while
// response functions run innermost-first — for a single synchronous
// UnaryFunc wrapper, both halves are satisfied by the same nesting, since
// "before next()" is the request half and "after next()" is the response
// half of one wrapped call.
func newUnaryChain(interceptors []Interceptor, protocol Interceptor, next UnaryFunc) UnaryFunc {
	all := appendProtocol(interceptors, protocol)
	// Iterate in reverse so all[0] ends up outermost.
	for i := len(all) - 1; i >= 0; i-- {
		next = all[i].WrapUnary(next)
	}
	return next
}

// newStreamingClientChain composes streaming interceptors with the same
// outermost-first ordering as newUnaryChain.
func newStreamingClientChain(interceptors []Interceptor, protocol Interceptor, next StreamingClientFunc) StreamingClientFunc {
	all := appendProtocol(interceptors, protocol)
	for i := len(all) - 1; i >= 0; i-- {
		next = all[i].WrapStreamingClient(next)
	}
	return next
}

func appendProtocol(interceptors []Interceptor, protocol Interceptor) []Interceptor {
	all := make([]Interceptor, 0, len(interceptors)+1)
	all = append(all, interceptors...)
	all = append(all, protocol)
	return all
}

// UnaryInterceptorAdapter lets a caller supply a bare UnaryInterceptorFunc
// (ignoring streaming) as a full Interceptor; its streaming half is a
// no-op passthrough.
type UnaryInterceptorAdapter struct {
	Unary UnaryInterceptorFunc
}

func (a UnaryInterceptorAdapter) WrapUnary(next UnaryFunc) UnaryFunc {
	if a.Unary == nil {
		return next
	}
	return a.Unary(next)
}

func (UnaryInterceptorAdapter) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return next
}
