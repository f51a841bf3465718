package connect

import "github.com/coreconnect/connect/internal/transport"

// httpDuplexAdapter adapts internal/transport.DuplexCall, which speaks
// net/http's http.Header, to the rawDuplex interface protocol interceptors
// configure a ClientStreamConn with.
type httpDuplexAdapter struct {
	call *transport.DuplexCall
}

func newHTTPDuplexAdapter(call *transport.DuplexCall) *httpDuplexAdapter {
	return &httpDuplexAdapter{call: call}
}

func (a *httpDuplexAdapter) Write(p []byte) (int, error) { return a.call.Write(p) }

func (a *httpDuplexAdapter) Read(p []byte) (int, error) { return a.call.Read(p) }

func (a *httpDuplexAdapter) CloseSend() error { return a.call.CloseSend() }

func (a *httpDuplexAdapter) Cancel() { a.call.Cancel() }

func (a *httpDuplexAdapter) Header() (Headers, error) {
	h, err := a.call.Header()
	if err != nil {
		return Headers{}, err
	}
	return HeadersFromHTTP(h), nil
}

func (a *httpDuplexAdapter) StatusCode() (int, error) {
	return a.call.StatusCode()
}

func (a *httpDuplexAdapter) Trailer() Headers {
	return HeadersFromHTTP(a.call.Trailer())
}
