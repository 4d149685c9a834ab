package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pavan954/NOVACHAT/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI may be served from another origin than the socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

var errSendBufferFull = errors.New("send buffer full")

// wsConn adapts one websocket connection to the engine's Conn contract:
// Send is a non-blocking enqueue, and a dedicated write pump drains the
// buffer so a slow reader never stalls the engine.
type wsConn struct {
	conn   *websocket.Conn
	send   chan any
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.ChatConfig
	log    *zap.Logger
}

func newWSConn(conn *websocket.Conn, cfg config.ChatConfig, log *zap.Logger) *wsConn {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 54 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &wsConn{
		conn:   conn,
		send:   make(chan any, cfg.SendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		log:    log,
	}
}

// Send enqueues an event for the write pump. It never blocks: a full buffer
// or closed connection reports an error that the engine swallows, and the
// event is simply dropped for this recipient.
func (c *wsConn) Send(event any) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.send <- event:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWS upgrades the connection and runs its read loop. Teardown is
// funneled through the session's idempotent Close, whichever side breaks
// first.
func (s *ChatServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	wc := newWSConn(conn, s.cfg.Chat, s.log)
	go wc.writePump()

	session := s.engine.Connect(wc)
	defer func() {
		session.Close()
		wc.cancel()
	}()

	if limit := s.cfg.Chat.MaxMessageSize; limit > 0 {
		conn.SetReadLimit(limit)
	}
	pongTimeout := s.cfg.Chat.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err), zap.String("identity", session.Key()))
			}
			return
		}
		session.HandleRaw(raw)
	}
}
