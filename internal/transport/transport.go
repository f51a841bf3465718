// Package transport provides the concrete HTTP transport the engine talks
// to. The engine's own logic depends only on the Doer interface; this
// package supplies a usable default built from net/http and
// golang.org/x/net/http2.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"

	"golang.org/x/net/http2"
)

// Doer is the transport-level interface the engine expects HTTP clients to
// implement. The standard library's *http.Client implements Doer.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewDefault returns a Doer that supports HTTP/2, including cleartext h2c,
// for callers who don't already have a configured *http.Client.
func NewDefault() Doer {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
}

// NewDefaultTLS returns a Doer that negotiates HTTP/2 over TLS using the
// standard library's automatic protocol negotiation.
func NewDefaultTLS(tlsConfig *tls.Config) Doer {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			ForceAttemptHTTP2: true,
		},
	}
}

// DuplexCall is a bidirectional byte stream built from a single
// *http.Request/*http.Response exchange: writes to the call become the
// request body (via an io.Pipe), and reads come from the response body once
// it's available. A responseReady channel lets Send start before the
// response arrives.
type DuplexCall struct {
	ctx    context.Context
	cancel context.CancelFunc
	doer   Doer

	writer *io.PipeWriter
	reader *io.PipeReader

	responseReady chan struct{}
	response      *http.Response
	responseErr   error
}

// NewDuplexCall starts an HTTP request against url with the given method,
// content type, and headers. The request body streams from whatever is
// written to the returned DuplexCall; the request is issued in the
// background, and Header/Read block until a response arrives.
func NewDuplexCall(ctx context.Context, doer Doer, method, url, contentType string, header http.Header) *DuplexCall {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	call := &DuplexCall{
		ctx:           ctx,
		cancel:        cancel,
		doer:          doer,
		writer:        pw,
		reader:        pr,
		responseReady: make(chan struct{}),
	}

	req, err := http.NewRequestWithContext(ctx, method, url, pr)
	if err != nil {
		call.setResponseError(fmt.Errorf("construct request: %w", err))
		close(call.responseReady)
		return call
	}
	req.Header = header
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	go call.run(req)
	return call
}

func (c *DuplexCall) run(req *http.Request) {
	defer close(c.responseReady)
	resp, err := c.doer.Do(req)
	if err != nil {
		c.setResponseError(err)
		return
	}
	c.response = resp
}

func (c *DuplexCall) setResponseError(err error) {
	c.responseErr = err
	c.reader.CloseWithError(err)
}

// Write sends payload as (more) request body bytes.
func (c *DuplexCall) Write(payload []byte) (int, error) {
	return c.writer.Write(payload)
}

// CloseSend shuts the write half of the request body.
func (c *DuplexCall) CloseSend() error {
	return c.writer.Close()
}

// Header blocks until the response arrives and returns its headers.
func (c *DuplexCall) Header() (http.Header, error) {
	<-c.responseReady
	if c.responseErr != nil {
		return nil, c.responseErr
	}
	return c.response.Header, nil
}

// StatusCode blocks until the response arrives and returns its HTTP status.
func (c *DuplexCall) StatusCode() (int, error) {
	<-c.responseReady
	if c.responseErr != nil {
		return 0, c.responseErr
	}
	return c.response.StatusCode, nil
}

// Read reads response body bytes, blocking until the response is available.
func (c *DuplexCall) Read(p []byte) (int, error) {
	<-c.responseReady
	if c.responseErr != nil {
		return 0, c.responseErr
	}
	return c.response.Body.Read(p)
}

// Trailer returns HTTP trailers. Only meaningful once Read has returned
// io.EOF, per net/http's trailer contract.
func (c *DuplexCall) Trailer() http.Header {
	<-c.responseReady
	if c.response == nil {
		return make(http.Header)
	}
	return c.response.Trailer
}

// Cancel aborts the in-flight request, unblocking any pending Read/Write and
// Header calls with an error.
func (c *DuplexCall) Cancel() {
	c.cancel()
}

// Close releases the response body, if any.
func (c *DuplexCall) Close() error {
	<-c.responseReady
	if c.response != nil {
		_, _ = io.Copy(io.Discard, c.response.Body)
		return c.response.Body.Close()
	}
	return nil
}

// UnaryBody performs one request/response exchange with a fully-buffered
// request body, returning the fully-buffered response body. Used by the
// unary dispatch path, which never needs the pipe-based duplex machinery.
func UnaryBody(ctx context.Context, doer Doer, method, url, contentType string, header http.Header, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("construct request: %w", err)
	}
	req.Header = header
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, buf, nil
}

