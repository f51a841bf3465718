package connect

import (
	"context"
	"testing"
)

// recordingInterceptor appends its name to trace on both the request half
// (before calling next) and the response half (after next returns), letting
// tests assert outermost-first request / innermost-first response ordering.
type recordingInterceptor struct {
	name  string
	trace *[]string
}

func (r recordingInterceptor) WrapUnary(next UnaryFunc) UnaryFunc {
	return func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		*r.trace = append(*r.trace, r.name+":request")
		res, err := next(ctx, req)
		*r.trace = append(*r.trace, r.name+":response")
		return res, err
	}
}

func (r recordingInterceptor) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error) {
		*r.trace = append(*r.trace, r.name+":open")
		return next(ctx, req)
	}
}

func TestUnaryChainOrdering(t *testing.T) {
	var trace []string
	first := recordingInterceptor{name: "first", trace: &trace}
	second := recordingInterceptor{name: "second", trace: &trace}
	protocol := recordingInterceptor{name: "protocol", trace: &trace}

	terminal := UnaryFunc(func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		trace = append(trace, "transport")
		return &HTTPResponse{Code: CodeOK}, nil
	})

	chain := newUnaryChain([]Interceptor{first, second}, protocol, terminal)
	if _, err := chain(context.Background(), &HTTPRequest{}); err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{
		"first:request", "second:request", "protocol:request",
		"transport",
		"protocol:response", "second:response", "first:response",
	}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q (full trace: %v)", i, trace[i], want[i], trace)
		}
	}
}

func TestAppendProtocolPlacesProtocolLast(t *testing.T) {
	var trace []string
	user := recordingInterceptor{name: "user", trace: &trace}
	protocol := recordingInterceptor{name: "protocol", trace: &trace}

	all := appendProtocol([]Interceptor{user}, protocol)
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[len(all)-1] != Interceptor(protocol) {
		t.Error("protocol interceptor should be last (nearest transport)")
	}
}

func TestUnaryInterceptorAdapterPassthroughWhenNil(t *testing.T) {
	adapter := UnaryInterceptorAdapter{}
	called := false
	terminal := UnaryFunc(func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		called = true
		return &HTTPResponse{Code: CodeOK}, nil
	})
	wrapped := adapter.WrapUnary(terminal)
	if _, err := wrapped(context.Background(), &HTTPRequest{}); err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if !called {
		t.Error("nil Unary field should still invoke the wrapped function")
	}
}

func TestUnaryInterceptorAdapterStreamingIsPassthrough(t *testing.T) {
	adapter := UnaryInterceptorAdapter{}
	terminal := StreamingClientFunc(func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error) {
		return nil, nil
	})
	if got := adapter.WrapStreamingClient(terminal); got == nil {
		t.Error("WrapStreamingClient should return a non-nil function")
	}
}
