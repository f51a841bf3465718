package connect

import (
	"context"
	"errors"
	"strings"

	"github.com/coreconnect/connect/internal/transport"
)

// ProtocolClient dispatches calls for one MethodSpec set against one host,
// over exactly one of the three wire protocols. It's the runtime most
// generated service clients embed one of, per method; most callers reach it
// indirectly through Client[Req, Res] (client_conn.go).
type ProtocolClient struct {
	cfg    *ProtocolClientConfig
	unary  UnaryFunc
	stream StreamingClientFunc
}

// NewProtocolClient builds a ProtocolClient from cfg, installing the
// protocol Interceptor matching cfg.NetworkProtocol after every
// caller-supplied interceptor in cfg.Interceptors.
func NewProtocolClient(cfg *ProtocolClientConfig) *ProtocolClient {
	protocol := newProtocolInterceptor(cfg)

	rawUnary := func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		return doUnary(ctx, cfg.Doer, req)
	}
	rawStream := func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error) {
		return doStream(ctx, cfg.Doer, req)
	}

	return &ProtocolClient{
		cfg:    cfg,
		unary:  newUnaryChain(cfg.Interceptors, protocol, rawUnary),
		stream: newStreamingClientChain(cfg.Interceptors, protocol, rawStream),
	}
}

func newProtocolInterceptor(cfg *ProtocolClientConfig) Interceptor {
	switch cfg.NetworkProtocol {
	case NetworkProtocolGRPC:
		return newGRPCProtocol(cfg)
	case NetworkProtocolGRPCWeb:
		return newGRPCWebProtocol(cfg)
	default:
		return newConnectProtocol(cfg)
	}
}

// URL builds the full request URL for spec against this client's host:
// host, trimmed of any trailing slash, joined to spec.Path with exactly one
// slash between them.
func (c *ProtocolClient) URL(spec MethodSpec) string {
	return c.cfg.Host + "/" + strings.TrimPrefix(spec.Path, "/")
}

// CallUnary issues one unary RPC. A non-nil *Error is returned as the error
// value (never left for the caller to notice only via HTTPResponse.Cause),
// so ordinary Go error-handling idiom works.
func (c *ProtocolClient) CallUnary(ctx context.Context, spec MethodSpec, header Headers, message []byte) (*HTTPResponse, error) {
	req := &HTTPRequest{
		URL:     c.URL(spec),
		Header:  header.Clone(),
		Message: &message,
		Spec:    spec,
	}
	resp, err := c.unary(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Cause != nil {
		return resp, resp.Cause
	}
	return resp, nil
}

// CallStream opens one streaming RPC (client-, server-, or bidi-streaming,
// per spec.StreamKind).
func (c *ProtocolClient) CallStream(ctx context.Context, spec MethodSpec, header Headers) (*ClientStreamConn, error) {
	req := &HTTPRequest{
		URL:    c.URL(spec),
		Header: header.Clone(),
		Spec:   spec,
	}
	return c.stream(ctx, req)
}

// doUnary is the innermost UnaryFunc: it performs one buffered HTTP
// exchange and translates the raw transport response into an HTTPResponse,
// leaving all protocol-specific interpretation (status codes, trailers,
// compression) to the installed protocol Interceptor.
func doUnary(ctx context.Context, doer transport.Doer, req *HTTPRequest) (*HTTPResponse, error) {
	method := req.Method
	if method == "" {
		method = "POST"
	}
	var body []byte
	if req.Message != nil {
		body = *req.Message
	}
	httpResp, respBody, err := transport.UnaryBody(ctx, doer, method, req.URL, req.ContentType, req.Header.HTTP(), body)
	if err != nil {
		return nil, wrap(codeForTransportDialError(err), err)
	}
	return &HTTPResponse{
		StatusCode: httpResp.StatusCode,
		Header:     HeadersFromHTTP(httpResp.Header),
		Message:    respBody,
		Trailer:    HeadersFromHTTP(httpResp.Trailer),
	}, nil
}

// doStream is the innermost StreamingClientFunc: it opens the duplex
// transport call and wraps it, unconfigured, in a ClientStreamConn. The
// protocol Interceptor configures it before returning it to the caller.
func doStream(ctx context.Context, doer transport.Doer, req *HTTPRequest) (*ClientStreamConn, error) {
	method := req.Method
	if method == "" {
		method = "POST"
	}
	call := transport.NewDuplexCall(ctx, doer, method, req.URL, req.ContentType, req.Header.HTTP())
	return newClientStreamConn(ctx, newHTTPDuplexAdapter(call)), nil
}

// codeForTransportDialError maps a failure observed before any HTTP
// response arrived (DNS failure, connection refused, context expiry) onto a
// Code.
func codeForTransportDialError(err error) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeUnavailable
	}
}
