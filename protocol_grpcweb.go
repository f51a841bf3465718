package connect

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/coreconnect/connect/codec"
)

// grpcWebTrailerFlag marks a gRPC-Web envelope as carrying trailers rather
// than a message, per the grpc-web wire specification; unlike Connect
// streaming's end-stream bit (0b00000010), gRPC-Web reuses the high bit of
// the same flag byte: an envelope with this bit set is a trailer frame,
// never a message. Other flag bits do not select a trailer frame.
const grpcWebTrailerFlag = 0b10000000

// grpcWebProtocol is the Interceptor installed for NetworkProtocolGRPCWeb.
// It reuses gRPC's header and status vocabulary (Grpc-Status, Grpc-Message,
// Grpc-Status-Details-Bin) but carries trailers as a final enveloped frame
// instead of real HTTP trailers, so unary and streaming calls alike are
// framed the same way gRPC's are, just with a different terminal signal.
type grpcWebProtocol struct {
	codec            codec.Codec
	compression      *compressionPoolRegistry
	compressionNames []string
	reqCompression   *RequestCompressionConfig
}

func newGRPCWebProtocol(cfg *ProtocolClientConfig) *grpcWebProtocol {
	registry := cfg.compressionRegistry()
	return &grpcWebProtocol{
		codec:            cfg.Codec,
		compression:      registry,
		compressionNames: registry.Names(),
		reqCompression:   cfg.RequestCompression,
	}
}

var _ Interceptor = (*grpcWebProtocol)(nil)

func (p *grpcWebProtocol) prepareHeader(ctx context.Context, header *Headers) {
	header.Set("Content-Type", "application/grpc-web+"+p.codec.Name())
	header.Set("X-Grpc-Web", "1")
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

func (p *grpcWebProtocol) WrapUnary(next UnaryFunc) UnaryFunc {
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

// translateUnaryResponse walks the enveloped unary body, which is either
// one message frame followed by one trailer frame, or a trailer frame on
// its own (a server that failed before producing a message).
func (p *grpcWebProtocol) translateUnaryResponse(resp *HTTPResponse) *HTTPResponse {
	var respPool *CompressionPool
	if name := resp.Header.Get("Grpc-Encoding"); name != "" {
		respPool, _ = p.compression.Get(name)
	}

	buf := bytes.NewReader(resp.Message)
	reader := newEnvelopeReader(buf, respPool)

	var message []byte
	haveMessage := false
	var trailer Headers

	for i := 0; i < 2; i++ {
		env, err := reader.next()
		if err != nil {
			break
		}
		if env.Flags&grpcWebTrailerFlag != 0 {
			trailer = parseGRPCWebTrailer(env.Payload)
			break
		}
		message = env.Payload
		haveMessage = true
	}

	if haveMessage {
		resp.Message = message
	}
	resp.Trailer = trailer

	if connectErr, ok := p.grpcStatusFrom(trailer); ok {
		resp.Code = connectErr.Code()
		if connectErr.Code() != CodeOK {
			resp.Cause = connectErr
		}
		return resp
	}
	if connectErr, ok := p.grpcStatusFrom(resp.Header); ok {
		resp.Code = connectErr.Code()
		if connectErr.Code() != CodeOK {
			resp.Cause = connectErr
		}
		return resp
	}
	resp.Code = CodeUnknown
	resp.Cause = errorf(CodeUnknown, "grpc-web response closed without a grpc-status trailer frame")
	return resp
}

// grpcStatusFrom extracts the gRPC status triple from a trailer set built
// by parseGRPCWebTrailer (or, for a Trailers-Only response, the response
// headers directly). Identical wire vocabulary to gRPC's
// protocol_grpc.go:grpcProtocol.grpcStatusFrom, duplicated rather than
// shared because the two protocols' Interceptor types are otherwise
// unrelated and neither should import the other.
func (p *grpcWebProtocol) grpcStatusFrom(h Headers) (*Error, bool) {
	raw := h.Get("Grpc-Status")
	if raw == "" {
		return nil, false
	}
	code, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return errorf(CodeInternal, "invalid grpc-status %q", raw), true
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

// parseGRPCWebTrailer decodes a trailer frame's payload: an HTTP/1-style
// header block (each line "Key: Value\r\n"), per the grpc-web wire
// specification's trailer encoding.
func parseGRPCWebTrailer(payload []byte) Headers {
	trailer := NewHeaders()
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(payload)))
	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return trailer
	}
	for key, values := range header {
		for _, v := range values {
			trailer.Add(key, v)
		}
	}
	return trailer
}

func (p *grpcWebProtocol) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
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
		if header, herr := conn.peekHeader(); herr == nil {
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
			func(trailer Headers) (StreamResult, bool) {
				// gRPC-Web's own terminal signal is the trailer envelope
				// frame, handled by decodeStreamFrame; real transport EOF
				// without one ever arriving only carries a usable status for
				// a Trailers-Only response, recovered from the headers
				// peeked above.
				if !headerHasStatus {
					return StreamResult{}, false
				}
				if headerErr.Code() == CodeOK {
					return StreamResult{Code: CodeOK}, true
				}
				return StreamResult{Code: headerErr.Code(), Cause: headerErr}, true
			},
		)
		conn.start()
		return conn, nil
	}
}

func (p *grpcWebProtocol) decodeStreamFrame(pool *CompressionPool) decodeFrameFunc {
	return func(flags uint8, payload []byte) (StreamResult, bool) {
		if flags&grpcWebTrailerFlag != 0 {
			trailer := parseGRPCWebTrailer(payload)
			if connectErr, ok := p.grpcStatusFrom(trailer); ok {
				if connectErr.Code() == CodeOK {
					return StreamResult{Code: CodeOK, Trailer: trailer}, true
				}
				return StreamResult{Code: connectErr.Code(), Cause: connectErr, Trailer: trailer}, true
			}
			return StreamResult{Code: CodeUnknown, Cause: errors.New("grpc-web trailer frame missing grpc-status"), Trailer: trailer}, true
		}

		body := payload
		if isCompressed(flags) {
			if pool == nil {
				return StreamResult{Code: CodeInternal, Cause: errors.New("grpc-web stream: compressed frame without a negotiated encoding")}, true
			}
			decompressed, err := pool.Decompress(payload)
			if err != nil {
				return StreamResult{Code: CodeInternal, Cause: errors.Wrap(err, "decompress grpc-web frame")}, true
			}
			body = decompressed
		}
		return StreamResult{Kind: StreamResultMessage, Message: body}, false
	}
}
