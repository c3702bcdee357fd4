package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/convoy/pkg/dialog"
)

// duplexMessage is one outbound websocket frame.
type duplexMessage struct {
	Type          string `json:"type"`
	TurnID        string `json:"turn_id,omitempty"`
	AgentText     string `json:"agent_text,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	EndCall       bool   `json:"end_call,omitempty"`
	Escalated     bool   `json:"escalated,omitempty"`
	AutoReconnect bool   `json:"auto_reconnect,omitempty"`
	CallDetails   bool   `json:"call_details,omitempty"`
}

// handleDuplex runs the realtime channel: events in, decisions out, on one
// long-lived connection per call.
func (s *Server) handleDuplex(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if _, err := s.store.GetCall(r.Context(), callID); err != nil {
		writeError(w, http.StatusNotFound, "unknown call")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := newDuplexSession(conn, s.cfg.KeepaliveInterval)
	defer sess.close()

	ctx := context.Background()

	// Handshake: channel capabilities first, then the opening line.
	_ = sess.send(duplexMessage{Type: "config", AutoReconnect: true, CallDetails: true})
	_, _ = s.engine.HandleTurn(ctx, dialog.Event{Kind: dialog.EventCallStarted, CallID: callID})
	opening := s.engine.OpeningLine(ctx, callID)
	_ = sess.send(duplexMessage{Type: "response", AgentText: opening, Outcome: string(dialog.OutcomeContinued)})

	ended := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		events, err := ParseEvents(msg)
		if err != nil {
			s.logger.Warn("duplex event dropped", "call_id", callID, "error", err.Error())
			continue
		}
		for _, ev := range events {
			if ev.CallID == "" {
				ev.CallID = callID
			}
			if ev.Kind == dialog.EventKeepalive {
				_ = sess.send(duplexMessage{Type: "pong", TurnID: ev.TurnID})
				continue
			}
			resp, err := s.engine.HandleTurn(ctx, ev)
			if err != nil {
				s.logger.Error("duplex turn failed", "call_id", callID, "error", err.Error())
				continue
			}
			if resp.Duplicate {
				continue
			}
			if resp.AgentText != "" || resp.EndCall {
				_ = sess.send(duplexMessage{
					Type:      "response",
					TurnID:    ev.TurnID,
					AgentText: resp.AgentText,
					Outcome:   string(resp.Outcome),
					EndCall:   resp.EndCall,
					Escalated: resp.Escalated,
				})
			}
			if ev.Kind == dialog.EventCallEnded {
				ended = true
			}
			if resp.EndCall {
				ended = true
				sess.closeGracefully()
			}
		}
		if ended {
			break
		}
	}

	// Disconnect without a proper ending is still an ending.
	if !ended {
		_, _ = s.engine.HandleTurn(ctx, dialog.Event{Kind: dialog.EventCallEnded, CallID: callID})
	}
}

// duplexSession serializes writes and keeps the connection alive with pings
// that never block turn handling.
type duplexSession struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func newDuplexSession(conn *websocket.Conn, keepalive time.Duration) *duplexSession {
	s := &duplexSession{
		conn:   conn,
		sendCh: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.writeLoop(keepalive)
	return s
}

func (s *duplexSession) send(msg duplexMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- b:
		return nil
	case <-s.done:
		return websocket.ErrCloseSent
	}
}

func (s *duplexSession) writeLoop(keepalive time.Duration) {
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			_ = s.conn.WriteMessage(websocket.TextMessage, msg)
		case <-ticker.C:
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-s.done:
			return
		}
	}
}

// closeGracefully drains pending frames and sends a normal close.
func (s *duplexSession) closeGracefully() {
	s.once.Do(func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && len(s.sendCh) > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	})
}

func (s *duplexSession) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	_ = s.conn.Close()
}
