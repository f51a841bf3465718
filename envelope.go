package connect

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Envelope flag bits shared by all three protocols. Only bit 0 is uniform;
// protocols disagree on which bit marks the end of a stream: Connect
// streaming uses bit 1 (tested by isEndStream below), gRPC-Web uses the
// high bit (grpcWebTrailerFlag in protocol_grpcweb.go).
const (
	flagCompressed = 0b00000001
)

const envelopeHeaderLen = 5 // 1 flag byte + 4-byte big-endian length

// EnvelopedMessage is one length-prefixed frame on the wire: a flag byte, a
// big-endian uint32 length, and the payload.
type EnvelopedMessage struct {
	Flags   uint8
	Payload []byte
}

// isCompressed reports whether flag bit 0 (the compression bit) is set.
func isCompressed(flags uint8) bool {
	return flags&flagCompressed != 0
}

// isEndStream reports whether flag bit 1 is set, which is how Connect's
// streaming protocol marks its terminal metadata frame. gRPC-Web marks its
// terminal trailer frame with a different bit (0x80); see
// grpcWebTrailerFlag in protocol_grpcweb.go.
func isEndStream(flags uint8) bool {
	return flags&0b00000010 != 0
}

// pack frames payload as flags(1) ∥ length(4, big-endian) ∥ body. If pool is
// non-nil and len(payload) is at least minBytes, the payload is compressed
// and the compression flag bit is set.
func pack(payload []byte, pool *CompressionPool, minBytes int) ([]byte, error) {
	flags := uint8(0)
	body := payload
	if pool != nil && len(payload) >= minBytes {
		compressed, err := pool.Compress(payload)
		if err != nil {
			return nil, NewError(CodeInternal, fmt.Errorf("compress envelope: %w", err))
		}
		body = compressed
		flags |= flagCompressed
	}
	out := make([]byte, envelopeHeaderLen+len(body))
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out, nil
}

// packWithFlags is like pack but lets the caller set additional protocol-
// specific flag bits (for example, gRPC-Web's trailer flag) on an already
// fully-formed payload; it never compresses.
func packWithFlags(payload []byte, flags uint8) []byte {
	out := make([]byte, envelopeHeaderLen+len(payload))
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

// unpackWithHeaderByte reads one 5-byte-prefixed frame out of buf and
// returns the flags and (decompressed, if flagged and pool is non-nil)
// payload. buf must contain exactly one frame's worth of bytes, including
// its 5-byte header.
func unpackWithHeaderByte(buf []byte, pool *CompressionPool) (uint8, []byte, error) {
	if len(buf) < envelopeHeaderLen {
		return 0, nil, NewError(CodeInternal, fmt.Errorf("envelope too short: %d bytes", len(buf)))
	}
	flags := buf[0]
	length := binary.BigEndian.Uint32(buf[1:5])
	if uint32(len(buf)-envelopeHeaderLen) != length {
		return 0, nil, NewError(CodeInternal, fmt.Errorf("envelope length mismatch: header says %d, got %d", length, len(buf)-envelopeHeaderLen))
	}
	payload := buf[5:]
	if isCompressed(flags) {
		if pool == nil {
			return 0, nil, NewError(CodeInternal, fmt.Errorf("protocol error: compressed envelope but no compression negotiated"))
		}
		decompressed, err := pool.Decompress(payload)
		if err != nil {
			return 0, nil, NewError(CodeInternal, fmt.Errorf("decompress envelope: %w", err))
		}
		return flags, decompressed, nil
	}
	return flags, payload, nil
}

// envelopeReader pulls successive EnvelopedMessage frames off a byte stream.
// It's the streaming counterpart to unpackWithHeaderByte, generalized from
// the one-shot 5-byte read used for gRPC-Web unary responses.
type envelopeReader struct {
	r    *bufio.Reader
	pool *CompressionPool
}

func newEnvelopeReader(r io.Reader, pool *CompressionPool) *envelopeReader {
	return &envelopeReader{r: bufio.NewReader(r), pool: pool}
}

// next reads one frame. It returns io.EOF (unwrapped) when the underlying
// reader is exhausted exactly at a frame boundary.
func (er *envelopeReader) next() (EnvelopedMessage, error) {
	var header [envelopeHeaderLen]byte
	if _, err := io.ReadFull(er.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return EnvelopedMessage{}, NewError(CodeInternal, fmt.Errorf("incomplete envelope header: %w", err))
		}
		return EnvelopedMessage{}, err // io.EOF passes through
	}
	flags := header[0]
	length := binary.BigEndian.Uint32(header[1:5])
	payload := make([]byte, length)
	if _, err := io.ReadFull(er.r, payload); err != nil {
		return EnvelopedMessage{}, NewError(CodeInternal, fmt.Errorf("incomplete envelope body: %w", err))
	}
	if isCompressed(flags) {
		if er.pool == nil {
			return EnvelopedMessage{}, NewError(CodeInternal, fmt.Errorf("protocol error: compressed envelope but no compression negotiated"))
		}
		decompressed, err := er.pool.Decompress(payload)
		if err != nil {
			return EnvelopedMessage{}, NewError(CodeInternal, fmt.Errorf("decompress envelope: %w", err))
		}
		payload = decompressed
	}
	return EnvelopedMessage{Flags: flags, Payload: payload}, nil
}

// envelopeWriter frames and writes successive messages to an io.Writer,
// compressing per-message according to pool/minBytes exactly like pack.
type envelopeWriter struct {
	w        io.Writer
	pool     *CompressionPool
	minBytes int
}

func newEnvelopeWriter(w io.Writer, pool *CompressionPool, minBytes int) *envelopeWriter {
	return &envelopeWriter{w: w, pool: pool, minBytes: minBytes}
}

func (ew *envelopeWriter) write(payload []byte) error {
	framed, err := pack(payload, ew.pool, ew.minBytes)
	if err != nil {
		return err
	}
	_, err = ew.w.Write(framed)
	return err
}
