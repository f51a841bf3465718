package connect

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreconnect/connect/codec"
)

// grpcProtocol is the Interceptor installed for NetworkProtocolGRPC. Both
// its unary and streaming calls frame every message with the same 5-byte
// envelope (gRPC has no unframed unary variant, unlike Connect); the two
// differ only in whether the body is buffered in full before decoding.
type grpcProtocol struct {
	codec            codec.Codec
	compression      *compressionPoolRegistry
	compressionNames []string
	reqCompression   *RequestCompressionConfig
}

func newGRPCProtocol(cfg *ProtocolClientConfig) *grpcProtocol {
	registry := cfg.compressionRegistry()
	return &grpcProtocol{
		codec:            cfg.Codec,
		compression:      registry,
		compressionNames: registry.Names(),
		reqCompression:   cfg.RequestCompression,
	}
}

var _ Interceptor = (*grpcProtocol)(nil)

func (p *grpcProtocol) prepareHeader(ctx context.Context, header *Headers) {
	header.Set("Content-Type", "application/grpc+"+p.codec.Name())
	header.Set("TE", "trailers")
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", defaultUserAgent)
	}
	if len(p.compressionNames) > 0 {
		header.Set("Grpc-Accept-Encoding", strings.Join(p.compressionNames, ", "))
	}
	if p.reqCompression != nil {
		header.Set("Grpc-Encoding", p.reqCompression.Pool.Name())
	}
	if deadline, ok := ctx.Deadline(); ok {
		header.Set("Grpc-Timeout", encodeGRPCTimeout(time.Until(deadline)))
	}
}

func (p *grpcProtocol) WrapUnary(next UnaryFunc) UnaryFunc {
	return func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		p.prepareHeader(ctx, &req.Header)
		req.Method = http.MethodPost
		if req.Message != nil {
			var pool *CompressionPool
			minBytes := 0
			if p.reqCompression != nil {
				pool, minBytes = p.reqCompression.Pool, p.reqCompression.MinBytes
			}
			framed, err := pack(*req.Message, pool, minBytes)
			if err != nil {
				return nil, err
			}
			req.Message = &framed
		}

		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		return p.translateUnaryResponse(resp), nil
	}
}

func (p *grpcProtocol) translateUnaryResponse(resp *HTTPResponse) *HTTPResponse {
	if connectErr, ok := p.grpcStatusFrom(resp.Header); ok && connectErr.Code() != CodeOK {
		resp.Code = connectErr.Code()
		resp.Cause = connectErr
		return resp
	}

	var respPool *CompressionPool
	if name := resp.Header.Get("Grpc-Encoding"); name != "" {
		respPool, _ = p.compression.Get(name)
	}
	if len(resp.Message) > 0 {
		_, payload, err := unpackWithHeaderByte(resp.Message, respPool)
		if err != nil {
			resp.Code = CodeInternal
			resp.Cause = wrap(CodeInternal, err)
			return resp
		}
		resp.Message = payload
	}

	if connectErr, ok := p.grpcStatusFrom(resp.Trailer); ok {
		resp.Code = connectErr.Code()
		if connectErr.Code() != CodeOK {
			resp.Cause = connectErr
		}
		return resp
	}

	resp.Code = CodeUnknown
	resp.Cause = errorf(CodeUnknown, "grpc response missing Grpc-Status trailer")
	return resp
}

// grpcStatusFrom extracts the gRPC status triple (Grpc-Status,
// Grpc-Message, Grpc-Status-Details-Bin) from a header or trailer set. The
// bool return reports whether Grpc-Status was present at all, since an
// absent status means "keep looking" (headers on a successful streaming
// response carry no status; trailers do) rather than "status is OK".
func (p *grpcProtocol) grpcStatusFrom(h Headers) (*Error, bool) {
	raw := h.Get("Grpc-Status")
	if raw == "" {
		return nil, false
	}
	code, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return errorf(CodeInternal, "invalid Grpc-Status %q", raw), true
	}

	connectErr := NewError(Code(code), nil)
	if msg := h.Get("Grpc-Message"); msg != "" {
		if decoded, err := percentDecode(msg); err == nil {
			connectErr.message = decoded
		} else {
			connectErr.message = msg
		}
	}
	if details := h.Get("Grpc-Status-Details-Bin"); details != "" {
		if raw, err := decodeBinaryHeader(details); err == nil {
			if status, err := unmarshalStatus(raw); err == nil {
				detailed := errorFromStatus(status)
				connectErr.code = detailed.code
				connectErr.message = detailed.message
				connectErr.details = detailed.details
			}
		}
	}
	connectErr.meta = h
	return connectErr, true
}

func (p *grpcProtocol) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error) {
		p.prepareHeader(ctx, &req.Header)
		req.Method = http.MethodPost

		conn, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		var respPool *CompressionPool
		var headerErr *Error
		headerHasStatus := false
		header, herr := conn.peekHeader()
		if herr == nil {
			if name := header.Get("Grpc-Encoding"); name != "" {
				respPool, _ = p.compression.Get(name)
			}
			headerErr, headerHasStatus = p.grpcStatusFrom(header)
		}

		var reqPool *CompressionPool
		minBytes := 0
		if p.reqCompression != nil {
			reqPool, minBytes = p.reqCompression.Pool, p.reqCompression.MinBytes
		}

		conn.configure(
			func(payload []byte) ([]byte, error) { return pack(payload, reqPool, minBytes) },
			p.decodeStreamFrame(respPool),
			// A "Trailers-Only" response (the server failed before sending any
			// message) carries its status in the initial HEADERS frame, which
			// net/http surfaces as response headers rather than trailers; fall
			// back to the header-derived status when no real trailer is found.
			func(trailer Headers) (StreamResult, bool) {
				if result, ok := p.decodeStreamTrailers(trailer); ok {
					return result, ok
				}
				if !headerHasStatus {
					return StreamResult{}, false
				}
				if headerErr.Code() == CodeOK {
					return StreamResult{Code: CodeOK, Trailer: header}, true
				}
				return StreamResult{Code: headerErr.Code(), Cause: headerErr, Trailer: header}, true
			},
		)
		conn.start()
		return conn, nil
	}
}

func (p *grpcProtocol) decodeStreamFrame(pool *CompressionPool) decodeFrameFunc {
	return func(flags uint8, payload []byte) (StreamResult, bool) {
		body := payload
		if isCompressed(flags) {
			if pool == nil {
				return StreamResult{Code: CodeInternal, Cause: fmt.Errorf("grpc stream: compressed frame without a negotiated encoding")}, true
			}
			decompressed, err := pool.Decompress(payload)
			if err != nil {
				return StreamResult{Code: CodeInternal, Cause: fmt.Errorf("decompress grpc frame: %w", err)}, true
			}
			body = decompressed
		}
		return StreamResult{Kind: StreamResultMessage, Message: body}, false
	}
}

// decodeStreamTrailers is gRPC's only terminal-status source: the status
// triple always rides in real HTTP trailers, delivered once the response
// body reaches EOF.
func (p *grpcProtocol) decodeStreamTrailers(trailer Headers) (StreamResult, bool) {
	connectErr, ok := p.grpcStatusFrom(trailer)
	if !ok {
		return StreamResult{}, false
	}
	if connectErr.Code() == CodeOK {
		return StreamResult{Code: CodeOK, Trailer: trailer}, true
	}
	return StreamResult{Code: connectErr.Code(), Cause: connectErr, Trailer: trailer}, true
}

// encodeGRPCTimeout renders d as a Grpc-Timeout header value: an ASCII
// integer (at most 8 digits) followed by a unit code, picking the finest
// unit that keeps the integer within range, per the gRPC HTTP/2 wire
// specification.
func encodeGRPCTimeout(d time.Duration) string {
	if d <= 0 {
		return "0n"
	}
	const maxValue = 99999999
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"n", time.Nanosecond},
		{"u", time.Microsecond},
		{"m", time.Millisecond},
		{"S", time.Second},
		{"M", time.Minute},
		{"H", time.Hour},
	}
	// Pick the finest unit whose integer value still fits in 8 digits.
	for _, u := range units {
		value := int64(d / u.unit)
		if value <= maxValue {
			return strconv.FormatInt(value, 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d/time.Hour), 10) + "H"
}

// percentDecode reverses gRPC's Grpc-Message percent-encoding. gRPC leaves
// space encoded as %20 rather than "+", so this uses url.PathUnescape
// rather than QueryUnescape.
func percentDecode(s string) (string, error) {
	return url.PathUnescape(s)
}

// decodeBinaryHeader decodes a "-bin" suffixed gRPC header value, which is
// always standard base64, tolerating either padded or unpadded encoders
// since both appear in the wild.
func decodeBinaryHeader(s string) ([]byte, error) {
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
