package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUnaryBodySendsBodyAndReturnsResponse(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("server: read body: %v", err)
		}
		gotBody = string(data)
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("response body"))
	}))
	defer server.Close()

	resp, body, err := UnaryBody(context.Background(), server.Client(), http.MethodPost, server.URL, "application/proto", make(http.Header), []byte("request body"))
	if err != nil {
		t.Fatalf("UnaryBody: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Reply") != "yes" {
		t.Errorf("X-Reply header = %q, want yes", resp.Header.Get("X-Reply"))
	}
	if string(body) != "response body" {
		t.Errorf("body = %q, want %q", body, "response body")
	}
	if gotBody != "request body" {
		t.Errorf("server saw body %q, want %q", gotBody, "request body")
	}
}

func TestUnaryBodyPropagatesDoerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close() // closed server: any request against it fails to dial

	_, _, err := UnaryBody(context.Background(), server.Client(), http.MethodPost, server.URL, "", make(http.Header), nil)
	if err == nil {
		t.Fatal("expected an error dialing a closed server")
	}
}

func TestDuplexCallStreamsRequestBodyAndReadsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("server: read body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}))
	defer server.Close()

	call := NewDuplexCall(context.Background(), server.Client(), http.MethodPost, server.URL, "application/proto", make(http.Header))
	go func() {
		_, _ = call.Write([]byte("hello"))
		_ = call.CloseSend()
	}()

	status, err := call.StatusCode()
	if err != nil {
		t.Fatalf("StatusCode: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", status)
	}

	echoed, err := io.ReadAll(call)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(echoed) != "hello" {
		t.Errorf("echoed = %q, want hello", echoed)
	}
}

func TestDuplexCallCancelUnblocksHeader(t *testing.T) {
	blockCh := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blockCh
	}))
	defer server.Close()
	defer close(blockCh)

	call := NewDuplexCall(context.Background(), server.Client(), http.MethodGet, server.URL, "", make(http.Header))
	call.Cancel()

	if _, err := call.Header(); err == nil {
		t.Error("expected Header to report an error after Cancel")
	}
}
