package connect

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakeRawDuplex is an in-memory rawDuplex for exercising ClientStreamConn
// without a real network transport.
type fakeRawDuplex struct {
	body       *bytes.Reader
	header     Headers
	headerErr  error
	trailer    Headers
	statusCode int

	written   bytes.Buffer
	closeSent bool
	canceled  bool
}

func newFakeRawDuplex(frames [][]byte, trailer Headers) *fakeRawDuplex {
	var body bytes.Buffer
	for _, frame := range frames {
		body.Write(frame)
	}
	return &fakeRawDuplex{
		body:       bytes.NewReader(body.Bytes()),
		header:     NewHeaders(),
		trailer:    trailer,
		statusCode: 200,
	}
}

func frame(flags uint8, payload string) []byte {
	out := make([]byte, envelopeHeaderLen+len(payload))
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

func (f *fakeRawDuplex) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakeRawDuplex) Read(p []byte) (int, error)  { return f.body.Read(p) }
func (f *fakeRawDuplex) CloseSend() error            { f.closeSent = true; return nil }
func (f *fakeRawDuplex) Header() (Headers, error)    { return f.header, f.headerErr }
func (f *fakeRawDuplex) StatusCode() (int, error)    { return f.statusCode, nil }
func (f *fakeRawDuplex) Trailer() Headers            { return f.trailer }
func (f *fakeRawDuplex) Cancel()                     { f.canceled = true }

func passthroughEncode(payload []byte) ([]byte, error) {
	return pack(payload, nil, 0)
}

func drainResults(t *testing.T, conn *ClientStreamConn) []StreamResult {
	t.Helper()
	var got []StreamResult
	for {
		select {
		case res, ok := <-conn.Results():
			if !ok {
				return got
			}
			got = append(got, res)
			if res.Kind == StreamResultComplete {
				return got
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for stream results")
		}
	}
}

func TestClientStreamConnDeliversHeaderMessageThenComplete(t *testing.T) {
	trailer := NewHeaders()
	trailer.Set("Grpc-Status", "0")
	raw := newFakeRawDuplex([][]byte{frame(0, "hello")}, trailer)

	conn := newClientStreamConn(context.Background(), raw)
	decodeFrame := func(flags uint8, payload []byte) (StreamResult, bool) {
		return StreamResult{Kind: StreamResultMessage, Message: payload}, false
	}
	decodeTrailers := func(tr Headers) (StreamResult, bool) {
		if tr.Get("Grpc-Status") == "0" {
			return StreamResult{Kind: StreamResultComplete, Code: CodeOK, Trailer: tr}, true
		}
		return StreamResult{}, false
	}
	conn.configure(passthroughEncode, decodeFrame, decodeTrailers)
	conn.start()

	results := drainResults(t, conn)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (header, message, complete): %+v", len(results), results)
	}
	if results[0].Kind != StreamResultHeaders {
		t.Errorf("results[0].Kind = %v, want StreamResultHeaders", results[0].Kind)
	}
	if results[1].Kind != StreamResultMessage || string(results[1].Message) != "hello" {
		t.Errorf("results[1] = %+v, want message %q", results[1], "hello")
	}
	if results[2].Kind != StreamResultComplete || results[2].Code != CodeOK {
		t.Errorf("results[2] = %+v, want Complete/CodeOK", results[2])
	}
}

func TestClientStreamConnNoTrailerStatusReportsUnknown(t *testing.T) {
	raw := newFakeRawDuplex(nil, NewHeaders())
	conn := newClientStreamConn(context.Background(), raw)
	conn.configure(
		passthroughEncode,
		func(flags uint8, payload []byte) (StreamResult, bool) { return StreamResult{}, false },
		func(tr Headers) (StreamResult, bool) { return StreamResult{}, false },
	)
	conn.start()

	results := drainResults(t, conn)
	last := results[len(results)-1]
	if last.Kind != StreamResultComplete {
		t.Fatalf("last result kind = %v, want StreamResultComplete", last.Kind)
	}
	if !errors.Is(last.Cause, errStreamClosedWithoutTrailers) {
		t.Errorf("Cause = %v, want errStreamClosedWithoutTrailers", last.Cause)
	}
}

func TestClientStreamConnSendAfterCloseSendFails(t *testing.T) {
	raw := newFakeRawDuplex(nil, NewHeaders())
	conn := newClientStreamConn(context.Background(), raw)
	conn.configure(passthroughEncode, nil, nil)

	if err := conn.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	if !raw.closeSent {
		t.Error("expected underlying CloseSend to be invoked")
	}
	err := conn.Send([]byte("too late"))
	if err == nil {
		t.Fatal("expected Send after CloseSend to fail")
	}
	if CodeOf(err) != CodeFailedPrecondition {
		t.Errorf("CodeOf(err) = %v, want CodeFailedPrecondition", CodeOf(err))
	}
}

func TestClientStreamConnCloseSendIsIdempotent(t *testing.T) {
	raw := newFakeRawDuplex(nil, NewHeaders())
	conn := newClientStreamConn(context.Background(), raw)
	conn.configure(passthroughEncode, nil, nil)

	if err := conn.CloseSend(); err != nil {
		t.Fatalf("first CloseSend: %v", err)
	}
	raw.closeSent = false // reset to prove the second call is a no-op
	if err := conn.CloseSend(); err != nil {
		t.Fatalf("second CloseSend: %v", err)
	}
	if raw.closeSent {
		t.Error("second CloseSend should not reach the underlying transport")
	}
}

func TestClientStreamConnCancelMarksCanceled(t *testing.T) {
	raw := newFakeRawDuplex(nil, NewHeaders())
	conn := newClientStreamConn(context.Background(), raw)
	conn.Cancel()
	if !raw.canceled {
		t.Error("Cancel should invoke the underlying transport's Cancel")
	}
}

func TestStreamStateTransitionsAreMonotonic(t *testing.T) {
	s := newStreamState()
	if s.isClosed() {
		t.Fatal("new stream state should not report closed")
	}
	if !s.closeLocal() {
		t.Error("first closeLocal should return true")
	}
	if s.closeLocal() {
		t.Error("second closeLocal should return false")
	}
	if !s.closeRemote() {
		t.Error("first closeRemote should return true")
	}
	if !s.isClosed() {
		t.Error("stream should report closed once both halves closed")
	}
	if !s.markTerminated() {
		t.Error("first markTerminated should return true")
	}
	if s.markTerminated() {
		t.Error("second markTerminated should return false")
	}
}
