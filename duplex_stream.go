package connect

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"
)

// StreamResultKind tags which variant a StreamResult holds.
type StreamResultKind uint8

const (
	// StreamResultHeaders carries the stream's response headers. Delivered
	// exactly once, before any StreamResultMessage.
	StreamResultHeaders StreamResultKind = iota
	// StreamResultMessage carries one decoded, decompressed application
	// message. Delivered zero or more times, in wire order.
	StreamResultMessage
	// StreamResultComplete is terminal: it appears exactly once, and no
	// further StreamResults follow it.
	StreamResultComplete
)

// StreamResult is the tagged variant the receive path of a stream delivers.
// Exactly one field group is meaningful, selected by Kind.
type StreamResult struct {
	Kind StreamResultKind

	// Valid when Kind == StreamResultHeaders.
	Header Headers

	// Valid when Kind == StreamResultMessage.
	Message []byte

	// Valid when Kind == StreamResultComplete.
	Code    Code
	Cause   error
	Trailer Headers
}

// rawDuplex is the byte-oriented transport handle a protocol's stream
// interceptor frames and deframes. internal/transport.DuplexCall implements
// this.
type rawDuplex interface {
	io.Writer
	io.Reader
	CloseSend() error
	Header() (Headers, error)
	StatusCode() (int, error)
	Trailer() Headers
	Cancel()
}

// decodeFrameFunc turns one envelope's flags and (already decompressed)
// payload into a StreamResult. The bool return reports whether this frame
// was terminal (Connect streaming's end-stream frame, gRPC-Web's trailer
// frame); if true, the pump stops reading after emitting the result.
type decodeFrameFunc func(flags uint8, payload []byte) (StreamResult, bool)

// decodeTrailersFunc is consulted when the underlying byte stream reaches
// EOF without a protocol-level terminal frame ever having been seen (gRPC,
// whose status lives in real HTTP trailers rather than an envelope). The
// bool return reports whether real status was found.
type decodeTrailersFunc func(trailer Headers) (StreamResult, bool)

// encodeMessageFunc frames one outbound application message (envelope,
// optionally compressed) for the wire.
type encodeMessageFunc func(payload []byte) ([]byte, error)

var errStreamClosedWithoutTrailers = errors.New("stream closed without a terminal status frame or trailer")

// ClientStreamConn is the client's view of one bidirectional stream, after
// protocol framing has been installed by the protocol interceptor. Send may
// be called concurrently with reading from Results, but not with itself;
// Results is a single-consumer channel.
type ClientStreamConn struct {
	ctx    context.Context
	cancel context.CancelFunc
	raw    rawDuplex
	state  *streamState

	results chan StreamResult
	sendMu  sync.Mutex

	canceled atomic.Bool

	encode         encodeMessageFunc
	decodeFrame    decodeFrameFunc
	decodeTrailers decodeTrailersFunc
}

// newClientStreamConn wraps a raw byte transport. The conn is inert until
// configure followed by start is called; the base transport layer
// constructs it, and the protocol interceptor configures and starts it once
// it has installed protocol-specific headers.
func newClientStreamConn(ctx context.Context, raw rawDuplex) *ClientStreamConn {
	ctx, cancel := context.WithCancel(ctx)
	return &ClientStreamConn{
		ctx:     ctx,
		cancel:  cancel,
		raw:     raw,
		state:   newStreamState(),
		results: make(chan StreamResult, 8),
	}
}

// configure installs the protocol-specific encode/decode functions. Must be
// called before start, and only once.
func (c *ClientStreamConn) configure(encode encodeMessageFunc, decodeFrame decodeFrameFunc, decodeTrailers decodeTrailersFunc) {
	c.encode = encode
	c.decodeFrame = decodeFrame
	c.decodeTrailers = decodeTrailers
}

// start launches the receive pump. Must be called exactly once, after
// configure.
func (c *ClientStreamConn) start() {
	go c.receivePump()
}

// peekHeader exposes the raw transport's response headers ahead of the
// receive pump starting, letting a protocol interceptor negotiate
// per-message decompression before calling configure. Safe to call more
// than once; the underlying transport caches its response.
func (c *ClientStreamConn) peekHeader() (Headers, error) {
	return c.raw.Header()
}

// Results returns the channel StreamResults are delivered on. The channel is
// closed after the terminal StreamResultComplete has been sent.
func (c *ClientStreamConn) Results() <-chan StreamResult {
	return c.results
}

// Send frames and writes one outbound application message. Per spec, a
// serialization failure is surfaced to the caller without closing the
// stream; a transport write failure maps to CodeUnavailable.
func (c *ClientStreamConn) Send(payload []byte) error {
	if c.state.isLocalClosed() {
		return errorf(CodeFailedPrecondition, "send called after CloseSend")
	}
	framed, err := c.encode(payload)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.raw.Write(framed); err != nil {
		return wrap(CodeUnavailable, err)
	}
	return nil
}

// CloseSend shuts the send half. Calling it more than once is a no-op.
func (c *ClientStreamConn) CloseSend() error {
	if !c.state.closeLocal() {
		return nil
	}
	if err := c.raw.CloseSend(); err != nil {
		return wrap(CodeUnavailable, err)
	}
	return nil
}

// Cancel aborts the stream: it moves both halves to closed, aborts the
// transport, and (if the stream hasn't already terminated) the receive pump
// ends with StreamResultComplete{Code: CodeCanceled} once its next read
// fails. Results already queued on Results before that are still delivered
// ahead of it.
func (c *ClientStreamConn) Cancel() {
	c.canceled.Store(true)
	c.state.closeLocal()
	c.state.closeRemote()
	c.raw.Cancel()
	c.cancel()
}

// ReceiveClose is an alias for Cancel from the caller's perspective: per
// spec §4.8, receiveClose() and external cancellation have identical
// effects.
func (c *ClientStreamConn) ReceiveClose() {
	c.Cancel()
}

func (c *ClientStreamConn) receivePump() {
	defer close(c.results)

	header, err := c.raw.Header()
	if err != nil {
		c.finish(StreamResult{Kind: StreamResultComplete, Code: codeForTransportError(err), Cause: err, Trailer: NewHeaders()})
		return
	}
	c.results <- StreamResult{Kind: StreamResultHeaders, Header: header}

	reader := newRawEnvelopeReader(c.raw)
	for {
		env, err := reader.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				trailer := c.raw.Trailer()
				if result, ok := c.decodeTrailers(trailer); ok {
					c.finish(result)
					return
				}
				if c.canceled.Load() {
					c.finish(StreamResult{Kind: StreamResultComplete, Code: CodeCanceled, Trailer: trailer})
					return
				}
				c.finish(StreamResult{Kind: StreamResultComplete, Code: CodeUnknown, Cause: errStreamClosedWithoutTrailers, Trailer: trailer})
				return
			}
			if c.canceled.Load() {
				c.finish(StreamResult{Kind: StreamResultComplete, Code: CodeCanceled, Trailer: NewHeaders()})
				return
			}
			c.finish(StreamResult{Kind: StreamResultComplete, Code: CodeInternal, Cause: err, Trailer: NewHeaders()})
			return
		}

		result, isTerminal := c.decodeFrame(env.flags, env.payload)
		if isTerminal {
			c.finish(result)
			return
		}
		if !c.state.isTerminated() {
			c.results <- result
		}
	}
}

// finish delivers the terminal StreamResultComplete at most once, per the
// "Complete appears exactly once" invariant.
func (c *ClientStreamConn) finish(result StreamResult) {
	if !c.state.markTerminated() {
		return
	}
	c.state.closeRemote()
	result.Kind = StreamResultComplete
	c.results <- result
}

func codeForTransportError(err error) Code {
	if connectErr, ok := AsError(err); ok {
		return connectErr.Code()
	}
	return CodeUnavailable
}

// rawEnvelope mirrors EnvelopedMessage but skips the CompressionPool-based
// decompression envelope.go's envelopeReader performs: per-message
// decompression in streaming mode depends on the protocol's negotiated
// encoding, which only the protocol's decodeFrame function knows, so the
// generic pump reads raw frames and lets decodeFrame decompress.
type rawEnvelope struct {
	flags   uint8
	payload []byte
}

type rawEnvelopeReader struct {
	r io.Reader
}

func newRawEnvelopeReader(r io.Reader) *rawEnvelopeReader {
	return &rawEnvelopeReader{r: r}
}

func (r *rawEnvelopeReader) next() (rawEnvelope, error) {
	var header [envelopeHeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return rawEnvelope{}, NewError(CodeInternal, errors.New("incomplete envelope header"))
		}
		return rawEnvelope{}, err
	}
	length := binary.BigEndian.Uint32(header[1:5])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return rawEnvelope{}, NewError(CodeInternal, errors.New("incomplete envelope body"))
		}
	}
	return rawEnvelope{flags: header[0], payload: payload}, nil
}
