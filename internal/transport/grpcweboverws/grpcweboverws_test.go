package grpcweboverws

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// newEchoServer accepts one websocket connection, reads the header block and
// the single body frame the Dialer sends, and writes back a response header
// block followed by echoedBody as one binary message before closing
// normally, mimicking a minimal improbable-eng-style gRPC-Web bridge.
func newEchoServer(t *testing.T, respHeader string, echoedBody []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("read header frame: %v", err)
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("read body frame: %v", err)
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("read close frame: %v", err)
			return
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(respHeader)); err != nil {
			t.Errorf("write response header: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, echoedBody); err != nil {
			t.Errorf("write response body: %v", err)
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	return server
}

func TestGRPCWebOverWebsocketRoundTrip(t *testing.T) {
	body := []byte{0x00, 0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	server := newEchoServer(t, "grpc-status: 0\r\n", body)
	defer server.Close()

	dialer := NewDialer()
	wsURL := "http" + strings.TrimPrefix(server.URL, "http")
	req, err := http.NewRequest(http.MethodPost, wsURL, strings.NewReader("request payload"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/grpc-web+proto")

	resp, err := dialer.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("grpc-status"); got != "0" {
		t.Errorf("grpc-status header = %q, want 0", got)
	}

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("body = %v, want %v", got, body)
	}
}
