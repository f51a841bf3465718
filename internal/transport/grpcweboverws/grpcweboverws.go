// Package grpcweboverws implements the engine's transport.Doer by tunneling
// a gRPC-Web request/response exchange over a websocket connection, for
// gateways that front gRPC-Web with a websocket bridge instead of accepting
// raw HTTP (the improbable-eng/grpc-web websocket transport convention).
package grpcweboverws

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// sendFrame and closeFrame are the improbable-eng websocket bridge's
// single-byte frame type prefixes: 0x00 precedes a chunk of request body,
// 0x01 alone signals the client half-closing its send side.
const (
	sendFrame  = byte(0x00)
	closeFrame = byte(0x01)
)

// Dialer tunnels gRPC-Web calls over a websocket connection, implementing
// internal/transport.Doer so it can be installed via connect.WithDoer the
// same way any other Doer is.
type Dialer struct {
	WSDialer *websocket.Dialer
}

// NewDialer returns a Dialer with the same handshake defaults as the
// reference websocket transport (45s handshake timeout, environment proxy).
func NewDialer() *Dialer {
	return &Dialer{
		WSDialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}
}

// Do opens one websocket connection per request, sends req's headers as a
// CRLF header block followed by one body frame and a close frame, then
// reads back a header block and the raw gRPC-Web enveloped body, closing
// the connection once the caller finishes reading the response body.
func (d *Dialer) Do(req *http.Request) (*http.Response, error) {
	wsURL := *req.URL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}

	handshake := http.Header{}
	handshake.Set("Sec-WebSocket-Protocol", "grpc-websockets")

	conn, _, err := d.WSDialer.Dial(wsURL.String(), handshake)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %q", wsURL.String())
	}

	if err := sendRequest(conn, req); err != nil {
		conn.Close()
		return nil, err
	}

	header, body, err := readResponseHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Trailer:    make(http.Header),
		Body:       &streamReadCloser{conn: conn, pending: body},
	}, nil
}

func sendRequest(conn *websocket.Conn, req *http.Request) error {
	var headerBlock bytes.Buffer
	h := req.Header
	if h == nil {
		h = make(http.Header)
	}
	if err := h.Write(&headerBlock); err != nil {
		return errors.Wrap(err, "encode request header block")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, headerBlock.Bytes()); err != nil {
		return errors.Wrap(err, "write header frame")
	}

	if req.Body != nil {
		defer req.Body.Close()
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			return errors.Wrap(err, "read request body")
		}
		frame := append([]byte{sendFrame}, payload...)
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return errors.Wrap(err, "write body frame")
		}
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{closeFrame}); err != nil {
		return errors.Wrap(err, "write close-send frame")
	}
	return nil
}

// readResponseHeader reads the bridge's leading header-block frame and
// returns it parsed, along with an empty pending reader: body frames are
// read later, one websocket message at a time, by streamReadCloser.
func readResponseHeader(conn *websocket.Conn) (http.Header, *bytes.Reader, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read response header frame")
	}
	return parseHeaderBlock(msg), bytes.NewReader(nil), nil
}

func parseHeaderBlock(block []byte) http.Header {
	h := make(http.Header)
	scanner := bufio.NewScanner(bytes.NewReader(block))
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.Index(line, ": ")
		if i == -1 {
			continue
		}
		h.Add(strings.ToLower(line[:i]), line[i+2:])
	}
	return h
}

// streamReadCloser presents the websocket connection's remaining binary
// messages as one contiguous io.ReadCloser: the engine's gRPC-Web envelope
// reader consumes it exactly like any other HTTP response body, unaware
// that the bytes arrived as discrete websocket frames underneath.
type streamReadCloser struct {
	conn    *websocket.Conn
	pending *bytes.Reader
	done    bool
}

func (s *streamReadCloser) Read(p []byte) (int, error) {
	for {
		if s.pending.Len() > 0 {
			return s.pending.Read(p)
		}
		if s.done {
			return 0, io.EOF
		}
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok && closeErr.Code == websocket.CloseNormalClosure {
				s.done = true
				return 0, io.EOF
			}
			return 0, errors.Wrap(err, "read response frame")
		}
		s.pending = bytes.NewReader(msg)
	}
}

func (s *streamReadCloser) Close() error {
	return s.conn.Close()
}
