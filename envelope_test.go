package connect

import (
	"bytes"
	"io"
	"testing"
)

func TestPackUnpackRoundTripUncompressed(t *testing.T) {
	payload := []byte("hello world")
	framed, err := pack(payload, nil, 0)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	flags, got, err := unpackWithHeaderByte(framed, nil)
	if err != nil {
		t.Fatalf("unpackWithHeaderByte: %v", err)
	}
	if isCompressed(flags) {
		t.Error("expected uncompressed flag")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestPackCompressesAboveMinBytes(t *testing.T) {
	pool := NewGzipCompressionPool()
	payload := bytes.Repeat([]byte("x"), 100)

	framed, err := pack(payload, pool, 10)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	flags, got, err := unpackWithHeaderByte(framed, pool)
	if err != nil {
		t.Fatalf("unpackWithHeaderByte: %v", err)
	}
	if !isCompressed(flags) {
		t.Error("expected compressed flag to be set")
	}
	if !bytes.Equal(got, payload) {
		t.Error("decompressed payload doesn't match original")
	}
}

func TestPackSkipsCompressionBelowMinBytes(t *testing.T) {
	pool := NewGzipCompressionPool()
	payload := []byte("short")

	framed, err := pack(payload, pool, 1024)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	flags, _, err := unpackWithHeaderByte(framed, pool)
	if err != nil {
		t.Fatalf("unpackWithHeaderByte: %v", err)
	}
	if isCompressed(flags) {
		t.Error("payload smaller than minBytes should not be compressed")
	}
}

func TestEnvelopeReaderReadsMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	writer := newEnvelopeWriter(&buf, nil, 0)
	if err := writer.write([]byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.write([]byte("two")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := newEnvelopeReader(&buf, nil)
	first, err := reader.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(first.Payload) != "one" {
		t.Errorf("first payload = %q, want one", first.Payload)
	}
	second, err := reader.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(second.Payload) != "two" {
		t.Errorf("second payload = %q, want two", second.Payload)
	}
	if _, err := reader.next(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestIsEndStreamBit(t *testing.T) {
	if isEndStream(0b00000001) {
		t.Error("compression bit alone should not report end-stream")
	}
	if !isEndStream(0b00000010) {
		t.Error("bit 1 should report end-stream")
	}
}
