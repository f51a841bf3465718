package connect

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/coreconnect/connect/codec"
	"google.golang.org/protobuf/types/known/structpb"
)

func newStructResponse(t *testing.T, status int, fields map[string]any, header http.Header) *http.Response {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	body, err := codec.Proto{}.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return newFakeResponse(status, string(body), header)
}

func newStructClient(doer fakeDoer) *Client[*structpb.Struct, *structpb.Struct] {
	cfg := NewProtocolClientConfig("http://example.com", NetworkProtocolConnect, WithDoer(doer))
	protocolClient := NewProtocolClient(cfg)
	spec := MethodSpec{Path: "acme.v1.Service/Echo", StreamKind: StreamTypeUnary}
	return NewClient[*structpb.Struct, *structpb.Struct](protocolClient, spec, codec.Proto{}, func() *structpb.Struct {
		return new(structpb.Struct)
	})
}

func TestClientCallUnaryRoundTrip(t *testing.T) {
	doer := fakeDoer{resp: newStructResponse(t, 200, map[string]any{"greeting": "hi"}, nil)}
	client := newStructClient(doer)

	req, err := structpb.NewStruct(map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}

	res, _, err := client.CallUnary(context.Background(), req, NewHeaders())
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if got := res.Fields["greeting"].GetStringValue(); got != "hi" {
		t.Errorf("greeting = %q, want hi", got)
	}
}

func TestClientCallUnaryPropagatesError(t *testing.T) {
	doer := fakeDoer{resp: newFakeResponse(404, `{"code":"not_found","message":"gone"}`, nil)}
	client := newStructClient(doer)

	req, err := structpb.NewStruct(map[string]any{})
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	_, header, err := client.CallUnary(context.Background(), req, NewHeaders())
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if CodeOf(err) != CodeNotFound {
		t.Errorf("CodeOf(err) = %v, want CodeNotFound", CodeOf(err))
	}
	_ = header
}

// streamBodyDoer serves a fixed byte stream as the response body of any
// request it receives, simulating a streaming Connect response.
type streamBodyDoer struct {
	body []byte
}

func (d streamBodyDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(d.body)),
		Trailer:    make(http.Header),
	}, nil
}

func TestClientCallStreamDeliversMessageThenEOF(t *testing.T) {
	respStruct, err := structpb.NewStruct(map[string]any{"greeting": "hi"})
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	msgBody, err := codec.Proto{}.Marshal(respStruct)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msgFrame, err := pack(msgBody, nil, 0)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	endFrame := packWithFlags([]byte(`{}`), 0b00000010)

	body := append(append([]byte{}, msgFrame...), endFrame...)
	doer := streamBodyDoer{body: body}

	cfg := NewProtocolClientConfig("http://example.com", NetworkProtocolConnect, WithDoer(doer))
	protocolClient := NewProtocolClient(cfg)
	spec := MethodSpec{Path: "acme.v1.Service/Echo", StreamKind: StreamTypeServerStream}
	client := NewClient[*structpb.Struct, *structpb.Struct](protocolClient, spec, codec.Proto{}, func() *structpb.Struct {
		return new(structpb.Struct)
	})

	stream, err := client.CallStream(context.Background(), NewHeaders())
	if err != nil {
		t.Fatalf("CallStream: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	res, err := stream.Receive()
	if err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	if got := res.Fields["greeting"].GetStringValue(); got != "hi" {
		t.Errorf("greeting = %q, want hi", got)
	}

	_, err = stream.Receive()
	if err != io.EOF {
		t.Errorf("second Receive error = %v, want io.EOF", err)
	}
}
