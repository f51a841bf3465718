package connect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreconnect/connect/codec"
)

// connectProtocolVersion is the value Connect-Protocol-Version carries on
// every request, per the Connect wire specification.
const connectProtocolVersion = "1"

// connectProtocol is the Interceptor a ProtocolClient installs when
// NetworkProtocolConnect is selected. It implements both the unary
// (application/{codec}, optional GET encoding) and streaming
// (application/connect+{codec}, enveloped with a JSON end-stream frame)
// variants of the Connect protocol.
type connectProtocol struct {
	codec            codec.Codec
	compression      *compressionPoolRegistry
	compressionNames []string
	reqCompression   *RequestCompressionConfig
	getConfig        GetConfiguration
}

func newConnectProtocol(cfg *ProtocolClientConfig) *connectProtocol {
	registry := cfg.compressionRegistry()
	return &connectProtocol{
		codec:            cfg.Codec,
		compression:      registry,
		compressionNames: registry.Names(),
		reqCompression:   cfg.RequestCompression,
		getConfig:        cfg.GetConfiguration,
	}
}

var _ Interceptor = (*connectProtocol)(nil)

func (p *connectProtocol) WrapUnary(next UnaryFunc) UnaryFunc {
	return func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
		p.prepareUnaryRequest(req)
		if deadline, ok := ctx.Deadline(); ok {
			timeoutMs := time.Until(deadline).Milliseconds()
			if timeoutMs < 0 {
				timeoutMs = 0
			}
			req.Header.Set("Connect-Timeout-Ms", strconv.FormatInt(timeoutMs, 10))
		}
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		return p.translateUnaryResponse(resp), nil
	}
}

func (p *connectProtocol) prepareUnaryRequest(req *HTTPRequest) {
	codecName := p.codec.Name()
	req.Header.Set("Content-Type", "application/"+codecName)
	req.Header.Set("Connect-Protocol-Version", connectProtocolVersion)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if len(p.compressionNames) > 0 {
		req.Header.Set("Accept-Encoding", strings.Join(p.compressionNames, ", "))
	}

	useGET := false
	switch p.getConfig {
	case GetConfigurationAlways:
		useGET = req.Spec.StreamKind == StreamTypeUnary
	case GetConfigurationEnabledIfIdempotent:
		useGET = req.Spec.Idempotent && req.Spec.StreamKind == StreamTypeUnary
	}

	if useGET && req.Message != nil {
		p.encodeGET(req, codecName)
		return
	}
	p.encodePOST(req)
}

func (p *connectProtocol) encodePOST(req *HTTPRequest) {
	req.Method = http.MethodPost
	if req.Message == nil {
		return
	}
	body := *req.Message
	if p.reqCompression != nil && len(body) >= p.reqCompression.MinBytes {
		compressed, err := p.reqCompression.Pool.Compress(body)
		if err == nil {
			body = compressed
			req.Header.Set("Content-Encoding", p.reqCompression.Pool.Name())
		}
	}
	req.Message = &body
}

// encodeGET rewrites req to an idempotent HTTP GET, per the Connect
// protocol's GET-encoding rule: the message travels as a query parameter
// instead of a body, so intermediate caches can key on the full URL.
func (p *connectProtocol) encodeGET(req *HTTPRequest, codecName string) {
	req.Method = http.MethodGet
	body := *req.Message
	query := url.Values{}
	query.Set("connect", "v"+connectProtocolVersion)
	query.Set("encoding", codecName)
	if p.reqCompression != nil && len(body) >= p.reqCompression.MinBytes {
		compressed, err := p.reqCompression.Pool.Compress(body)
		if err == nil {
			body = compressed
			query.Set("compression", p.reqCompression.Pool.Name())
		}
	}
	if p.codec.IsBinary() {
		query.Set("base64", "1")
		query.Set("message", base64.RawURLEncoding.EncodeToString(body))
	} else {
		query.Set("message", string(body))
	}
	req.URL = req.URL + "?" + query.Encode()
	req.Message = nil
}

// translateUnaryResponse promotes Trailer-prefixed headers into the
// response's trailer set, decompresses the body per Content-Encoding, and
// decodes a non-2xx response's JSON error envelope into resp.Cause.
func (p *connectProtocol) translateUnaryResponse(resp *HTTPResponse) *HTTPResponse {
	trailer := NewHeaders()
	header := NewHeaders()
	resp.Header.Range(func(key string, values []string) {
		if strings.HasPrefix(key, "Trailer-") {
			name := strings.TrimPrefix(key, "Trailer-")
			for _, v := range values {
				trailer.Add(name, v)
			}
			return
		}
		for _, v := range values {
			header.Add(key, v)
		}
	})
	resp.Header = header
	resp.Trailer = trailer

	if name := resp.Header.Get("Content-Encoding"); name != "" {
		if pool, ok := p.compression.Get(name); ok {
			if decompressed, err := pool.Decompress(resp.Message); err == nil {
				resp.Message = decompressed
			}
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Code = CodeOK
		return resp
	}

	var wireErr connectWireError
	if err := json.Unmarshal(resp.Message, &wireErr); err != nil || wireErr.Code == "" {
		code := codeFromHTTPStatus(resp.StatusCode)
		resp.Code = code
		resp.Cause = errorf(code, "connect unary error: http status %d", resp.StatusCode)
		return resp
	}
	connectErr := errorFromConnectWire(wireErr)
	connectErr.meta = trailer
	resp.Code = connectErr.Code()
	resp.Cause = connectErr
	return resp
}

func (p *connectProtocol) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return func(ctx context.Context, req *HTTPRequest) (*ClientStreamConn, error) {
		codecName := p.codec.Name()
		req.Header.Set("Content-Type", "application/connect+"+codecName)
		req.Header.Set("Connect-Protocol-Version", connectProtocolVersion)
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", defaultUserAgent)
		}
		if len(p.compressionNames) > 0 {
			req.Header.Set("Connect-Accept-Encoding", strings.Join(p.compressionNames, ", "))
		}
		var reqPool *CompressionPool
		minBytes := 0
		if p.reqCompression != nil {
			reqPool = p.reqCompression.Pool
			minBytes = p.reqCompression.MinBytes
			req.Header.Set("Connect-Content-Encoding", reqPool.Name())
		}
		req.Method = http.MethodPost

		conn, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		var respPool *CompressionPool
		if header, herr := conn.peekHeader(); herr == nil {
			if name := header.Get("Connect-Content-Encoding"); name != "" {
				respPool, _ = p.compression.Get(name)
			}
		}

		conn.configure(
			func(payload []byte) ([]byte, error) { return pack(payload, reqPool, minBytes) },
			p.decodeStreamFrame(respPool),
			p.decodeStreamTrailers,
		)
		conn.start()
		return conn, nil
	}
}

// decodeStreamFrame returns the decodeFrameFunc for one stream, closing
// over the response compression pool negotiated from Connect-Content-Encoding.
func (p *connectProtocol) decodeStreamFrame(pool *CompressionPool) decodeFrameFunc {
	return func(flags uint8, payload []byte) (StreamResult, bool) {
		body := payload
		if isCompressed(flags) {
			if pool == nil {
				return StreamResult{Code: CodeInternal, Cause: errors.New("connect stream: compressed frame without a negotiated encoding")}, true
			}
			decompressed, err := pool.Decompress(payload)
			if err != nil {
				return StreamResult{Code: CodeInternal, Cause: fmt.Errorf("decompress connect frame: %w", err)}, true
			}
			body = decompressed
		}
		if isEndStream(flags) {
			return p.decodeEndStream(body), true
		}
		return StreamResult{Kind: StreamResultMessage, Message: body}, false
	}
}

// decodeEndStream parses Connect streaming's terminal frame: a JSON object
// carrying trailing metadata and, on failure, a wire error envelope
// identical in shape to the unary protocol's error body.
func (p *connectProtocol) decodeEndStream(body []byte) StreamResult {
	var end connectEndStreamMessage
	if err := json.Unmarshal(body, &end); err != nil {
		return StreamResult{Code: CodeInternal, Cause: fmt.Errorf("parse connect end-stream frame: %w", err)}
	}
	trailer := NewHeaders()
	for key, values := range end.Metadata {
		for _, v := range values {
			trailer.Add(key, v)
		}
	}
	if end.Error != nil {
		connectErr := errorFromConnectWire(*end.Error)
		connectErr.meta = trailer
		return StreamResult{Code: connectErr.Code(), Cause: connectErr, Trailer: trailer}
	}
	return StreamResult{Code: CodeOK, Trailer: trailer}
}

// decodeStreamTrailers never fires for Connect: its terminal status travels
// in the end-stream envelope frame decodeStreamFrame handles, not in real
// HTTP trailers.
func (p *connectProtocol) decodeStreamTrailers(Headers) (StreamResult, bool) {
	return StreamResult{}, false
}

// connectWireDetail mirrors one entry of a Connect JSON error envelope's
// "details" array.
type connectWireDetail struct {
	Type  string          `json:"type"`
	Value string          `json:"value"`
	Debug json.RawMessage `json:"debug,omitempty"`
}

// connectWireError mirrors the top-level shape of a Connect JSON error
// envelope: {"code": "...", "message": "...", "details": [...]}.
type connectWireError struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details []connectWireDetail `json:"details,omitempty"`
}

// connectEndStreamMessage mirrors Connect streaming's terminal frame body.
type connectEndStreamMessage struct {
	Error    *connectWireError   `json:"error,omitempty"`
	Metadata map[string][]string `json:"metadata,omitempty"`
}

// errorFromConnectWire builds an *Error from a decoded Connect JSON error
// envelope, reconstructing each detail's google.protobuf.Any directly since
// Connect's wire format carries a type name and base64 value rather than a
// ready-made Any.
func errorFromConnectWire(w connectWireError) *Error {
	err := &Error{
		code:    codeFromConnectString(w.Code),
		message: w.Message,
		meta:    NewHeaders(),
	}
	for _, d := range w.Details {
		value, decodeErr := base64.StdEncoding.DecodeString(d.Value)
		if decodeErr != nil {
			value, decodeErr = base64.RawStdEncoding.DecodeString(d.Value)
			if decodeErr != nil {
				continue
			}
		}
		typeURL := d.Type
		if !strings.Contains(typeURL, "/") {
			typeURL = "type.googleapis.com/" + typeURL
		}
		err.details = append(err.details, newErrorDetailFromAny(anyFromParts(typeURL, value)))
	}
	return err
}

// defaultUserAgent is sent when the caller hasn't already set one.
const defaultUserAgent = "coreconnect-go"
