package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/telephony"
)

func dialDuplex(t *testing.T, srv *Server, callID string) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + callID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) duplexMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg duplexMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestDuplexSession(t *testing.T) {
	srv, mem := newTestServer(t, Config{}, telephony.NewSimulated(nil))
	c := seedCall(t, mem)
	conn, teardown := dialDuplex(t, srv, c.ID)
	defer teardown()

	if msg := readMessage(t, conn); msg.Type != "config" || !msg.AutoReconnect {
		t.Fatalf("expected config handshake, got %+v", msg)
	}
	if msg := readMessage(t, conn); msg.Type != "response" || msg.AgentText == "" {
		t.Fatalf("expected opening line, got %+v", msg)
	}

	err := conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"speech","turn_id":"t1","text":"I am driving right now"}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.TurnID != "t1" || msg.EndCall || msg.AgentText == "" {
		t.Fatalf("expected follow-up question, got %+v", msg)
	}

	err = conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"speech","turn_id":"t2","text":"I'm at I-10 near Indio, CA, arriving at 5pm, status driving"}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, conn)
	if !msg.EndCall || !strings.Contains(msg.AgentText, "I-10 near Indio") {
		t.Fatalf("expected closing decision, got %+v", msg)
	}

	waitForStatus(t, srv, c.ID, call.StatusCompleted)
}

func TestDuplexKeepalive(t *testing.T) {
	srv, mem := newTestServer(t, Config{}, telephony.NewSimulated(nil))
	c := seedCall(t, mem)
	conn, teardown := dialDuplex(t, srv, c.ID)
	defer teardown()

	readMessage(t, conn) // config
	readMessage(t, conn) // opening

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping_pong","turn_id":"k1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "pong" || msg.TurnID != "k1" {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestDuplexDisconnectEndsCall(t *testing.T) {
	srv, mem := newTestServer(t, Config{}, telephony.NewSimulated(nil))
	c := seedCall(t, mem)
	conn, teardown := dialDuplex(t, srv, c.ID)

	readMessage(t, conn) // config
	readMessage(t, conn) // opening
	teardown()

	waitForStatus(t, srv, c.ID, call.StatusCompleted)
}

func TestDuplexUnknownCallRejected(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, telephony.NewSimulated(nil))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure for unknown call")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

// waitForStatus polls the store briefly: the teardown path runs after the
// websocket read loop returns, so the status write can race the assertion.
func waitForStatus(t *testing.T, srv *Server, callID string, want call.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c, err := srv.store.GetCall(context.Background(), callID)
		if err == nil && c.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	c, _ := srv.store.GetCall(context.Background(), callID)
	t.Fatalf("status never reached %s, last seen %s", want, c.Status)
}
