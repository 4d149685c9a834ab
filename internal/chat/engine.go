package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures observability and test hooks for an Engine.
type Options struct {
	Metrics *Metrics
	Now     func() time.Time
}

// Engine owns the shared chat state. One mutex is the mutual-exclusion
// domain for every registry and history mutation, so name uniqueness and
// append order cannot be violated by interleaving. Outbound pushes are
// enqueued while that lock is held: Conn.Send never blocks, and per-
// connection ordering (replay first, live traffic after) follows from the
// lock's serialization.
type Engine struct {
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	registry *Registry
	history  *History
}

// NewEngine wires an engine with its dependencies.
func NewEngine(log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		log:      log,
		metrics:  opts.Metrics,
		now:      now,
		registry: NewRegistry(),
		history:  NewHistory(),
	}
}

// Connect registers a provisional identity for a fresh connection, pushes
// the current roster to everyone, and returns the session that will drive
// the connection's lifecycle.
func (e *Engine) Connect(conn Conn) *Session {
	s := &Session{engine: e, conn: conn, state: StateConnecting}

	e.mu.Lock()
	s.key = e.registry.RegisterProvisional(conn)
	s.state = StateAwaitingName
	e.pushRoster()
	e.mu.Unlock()

	e.metrics.incSession()
	e.log.Info("connection accepted", zap.String("identity", s.key))
	return s
}

// Roster returns a point-in-time copy of the live roster.
func (e *Engine) Roster() []RosterEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Snapshot()
}

// HistoryFor returns the replay payload for an identity key.
func (e *Engine) HistoryFor(key string) HistoryPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.For(key)
}

// claim handles a name-claim event. On success the session turns Active and
// receives, in order: an ephemeral welcome, nothing of its own join notice
// (that goes to everyone else), the refreshed roster, and the one-time
// history replay. Rejections leave the session in AwaitingName for a retry.
func (e *Engine) claim(s *Session, requested string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch s.state {
	case StateActive:
		// Identity mutates exactly once per connection.
		e.deliver(s.conn, SystemNotice("Your name is already set.", e.now()))
		return
	case StateClosed, StateConnecting:
		return
	}

	name, err := e.registry.Claim(s.conn, requested)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, ErrInvalidName):
			e.metrics.recordClaim("invalid")
			reason = "Username must be 3-15 characters: letters, numbers, and underscores only."
		case errors.Is(err, ErrNameTaken):
			e.metrics.recordClaim("taken")
			reason = fmt.Sprintf("Username %q is already taken. Please choose another name.", requested)
		default:
			e.log.Warn("name claim failed", zap.String("requested", requested), zap.Error(err))
			return
		}
		e.deliver(s.conn, SystemNotice(reason, e.now()))
		e.log.Info("name claim rejected",
			zap.String("identity", s.key),
			zap.String("requested", requested),
			zap.Error(err))
		return
	}

	prev := s.key
	s.key = name
	s.state = StateActive
	e.metrics.recordClaim("ok")

	now := e.now()
	e.deliver(s.conn, SystemNotice(fmt.Sprintf("Welcome to the chat, %s!", name), now))

	join := SystemNotice(fmt.Sprintf("%s has joined the chat", name), now)
	e.history.AppendBroadcast(join)
	e.metrics.recordMessage("system")
	e.fanOut(join, s.conn)

	e.pushRoster()

	payload := e.history.For(name)
	e.metrics.observeReplay(len(payload.Broadcast))
	e.deliver(s.conn, HistoryEvent{Type: TypeChatHistory, History: payload})

	e.log.Info("name claimed", zap.String("identity", name), zap.String("was", prev))
}

// route dispatches a message event from an active session. Broadcasts go to
// every live connection including the sender; directed messages are stored
// regardless of recipient liveness and delivered only when the recipient is
// connected.
func (e *Engine) route(s *Session, content, recipient string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.state != StateActive {
		e.log.Debug("dropping message from unnamed session", zap.String("identity", s.key))
		return
	}

	now := e.now()
	if recipient == "" {
		msg := BroadcastMessage(s.key, content, now)
		e.history.AppendBroadcast(msg)
		e.metrics.recordMessage("broadcast")
		e.fanOut(msg, nil)
		return
	}

	msg := PrivateMessage(s.key, recipient, content, now)
	e.history.AppendPrivate(s.key, recipient, msg)
	e.metrics.recordMessage("private")

	target, online := e.registry.Find(recipient)
	if !online {
		// Stored for the recipient's next replay; the sender gets one
		// ephemeral notice and no delivered copy.
		notice := SystemNotice(fmt.Sprintf("%s is offline. Your message was saved and will be delivered with their history.", recipient), now)
		e.deliver(s.conn, notice)
		return
	}

	e.deliver(target, msg)
	if target != s.conn {
		e.deliver(s.conn, msg)
	}
}

// disconnect tears down a session. Safe to invoke from multiple signals;
// only the first call past the Closed check does any work. Leave
// announcements happen only for sessions that reached Active.
func (e *Engine) disconnect(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosed

	ident, ok := e.registry.Remove(s.conn)
	if !ok {
		return
	}
	e.metrics.decSession()

	if wasActive {
		leave := SystemNotice(fmt.Sprintf("%s has left the chat", ident.DisplayName), e.now())
		e.history.AppendBroadcast(leave)
		e.metrics.recordMessage("system")
		e.fanOut(leave, nil)
	}
	e.pushRoster()

	e.log.Info("connection closed",
		zap.String("identity", ident.Key),
		zap.Bool("named", wasActive))
}

// pushRoster recomputes the roster and pushes it to every live connection.
// Callers hold e.mu.
func (e *Engine) pushRoster() {
	e.fanOut(RosterEvent{Type: TypeUserList, Users: e.registry.Snapshot()}, nil)
}

// fanOut delivers an event to every live connection, optionally skipping
// one. Callers hold e.mu.
func (e *Engine) fanOut(event any, except Conn) {
	for _, conn := range e.registry.Conns() {
		if conn == except {
			continue
		}
		e.deliver(conn, event)
	}
}

// deliver pushes one event to one connection. Failures are swallowed here
// so a dead or saturated recipient never aborts the broader operation.
// Callers hold e.mu.
func (e *Engine) deliver(conn Conn, event any) {
	if err := conn.Send(event); err != nil {
		e.metrics.recordDeliveryFailure()
		e.log.Warn("delivery dropped", zap.Error(err))
	}
}
