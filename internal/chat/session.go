package chat

import (
	"go.uber.org/zap"
)

// State enumerates the per-connection lifecycle. Transitions are guarded in
// the engine so an illegal state/message combination is rejected early
// instead of desyncing shared state.
type State int

const (
	StateConnecting State = iota
	StateAwaitingName
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingName:
		return "awaiting_name"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection through
// connecting -> awaiting_name -> active -> closed. State and key are
// guarded by the engine's lock; the transport may call HandleRaw from its
// read loop and Close from any goroutine.
type Session struct {
	engine *Engine
	conn   Conn

	// guarded by engine.mu
	state State
	key   string
}

// Key returns the session's current identity key (guest placeholder until a
// name is claimed).
func (s *Session) Key() string {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.key
}

// State reports the session's lifecycle state.
func (s *Session) State() State {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.state
}

// HandleRaw decodes one inbound frame and dispatches it. Malformed frames
// are counted and dropped; they never tear the session down.
func (s *Session) HandleRaw(raw []byte) {
	evt, err := ParseInbound(raw)
	if err != nil {
		s.engine.metrics.recordMalformed()
		s.engine.log.Warn("dropping malformed frame", zap.String("identity", s.Key()), zap.Error(err))
		return
	}
	s.Handle(evt)
}

// Handle dispatches a decoded event. Claim outcomes are reported to the
// client and logged inside the engine, so nothing surfaces to the transport.
func (s *Session) Handle(evt InboundEvent) {
	switch evt.Type {
	case TypeSetUsername:
		s.engine.claim(s, evt.Username)
	case TypeMessage:
		s.engine.route(s, evt.Content, evt.Recipient)
	}
}

// Close runs the closed-state cleanup: remove from the registry and, only if
// the session had claimed a name, announce the leave and refresh the roster.
// Idempotent under concurrent teardown signals.
func (s *Session) Close() {
	s.engine.disconnect(s)
}
