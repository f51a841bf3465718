package connect

// HTTPRequest is the protocol-agnostic request an interceptor chain builds
// before the protocol client hands it to a transport. One HTTPRequest is
// built per call; for streams it carries no body (the body is produced
// incrementally by the stream's send path).
type HTTPRequest struct {
	URL         string
	ContentType string
	Header      Headers
	// Method is the HTTP method to issue. Left empty, the transport
	// defaults to POST; the Connect protocol interceptor sets this to GET
	// for idempotent unary calls when GET encoding is enabled.
	Method string
	// Message holds the unary request body. The gRPC and gRPC-Web protocol
	// interceptors replace it with its enveloped form; Connect sends it
	// unframed. Streaming calls leave this nil; their bodies are written
	// through ClientStreamConn.Send as messages are sent.
	Message *[]byte
	Spec    MethodSpec
}

// HTTPResponse is built by the protocol client before response interceptors
// run. Interceptors may replace Code, Message, Cause, and Trailer as they
// translate protocol-specific wire signalling (HTTP status, trailers,
// end-stream frames) into the engine's uniform shape.
type HTTPResponse struct {
	Code Code
	// StatusCode is the raw HTTP status the transport observed. Protocol
	// interceptors consult it to decide whether a response represents
	// success (Connect's 2xx-is-success unary rule) or to recover a code
	// when no richer wire signal is available (codeFromHTTPStatus).
	StatusCode int
	Header     Headers
	Message    []byte
	Trailer    Headers
	// TracingInfo is opaque, protocol-specific diagnostic data (for example,
	// the raw HTTP status line) interceptors may attach for logging.
	TracingInfo string
	// Cause, when non-nil, is the *Error a protocol interceptor decoded
	// from the wire (a Connect JSON error envelope, gRPC status trailers,
	// and so on). A nil Cause means the call succeeded.
	Cause error
}
