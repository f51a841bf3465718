package connect

// StreamType describes whether the client, server, neither, or both sides of
// an RPC stream messages.
type StreamType uint8

// The four stream shapes a MethodSpec can describe.
const (
	StreamTypeUnary        StreamType = 0b00
	StreamTypeClientStream StreamType = 0b01
	StreamTypeServerStream StreamType = 0b10
	StreamTypeBidiStream   StreamType = StreamTypeClientStream | StreamTypeServerStream
)

func (s StreamType) String() string {
	switch s {
	case StreamTypeUnary:
		return "unary"
	case StreamTypeClientStream:
		return "client_stream"
	case StreamTypeServerStream:
		return "server_stream"
	case StreamTypeBidiStream:
		return "bidi_stream"
	default:
		return "unknown_stream"
	}
}

// MethodSpec describes one RPC method: its fully-qualified procedure path
// and stream shape. It's immutable once constructed; generated client code
// builds one MethodSpec per method and reuses it for every call.
type MethodSpec struct {
	// Path is "package.Service/Method", with no leading slash. The protocol
	// client joins this onto the configured host to build the final URL.
	Path string
	// StreamKind says whether this method is unary or one of the three
	// streaming shapes.
	StreamKind StreamType
	// Idempotent marks methods safe to retry and, for the Connect protocol,
	// safe to encode as an HTTP GET when GET encoding is enabled.
	Idempotent bool
}

// IsClientStream reports whether the caller sends more than one message.
func (m MethodSpec) IsClientStream() bool {
	return m.StreamKind&StreamTypeClientStream != 0
}

// IsServerStream reports whether the server sends more than one message.
func (m MethodSpec) IsServerStream() bool {
	return m.StreamKind&StreamTypeServerStream != 0
}
