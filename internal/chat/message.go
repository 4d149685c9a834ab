// Package chat implements the session and message-routing engine: identity
// registration and uniqueness, broadcast and private routing, replayable
// history, and presence announcements. Transport concerns stay behind the
// Conn interface.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Wire frame type tags shared with the browser client.
const (
	TypeSystem      = "system"
	TypeMessage     = "message"
	TypeUserList    = "userList"
	TypeChatHistory = "chatHistory"
	TypeSetUsername = "setUsername"
)

// SystemSender labels server-authored notices on the wire.
const SystemSender = "System"

// Message is one chat frame as stored and delivered. The Type tag
// discriminates system notices from user messages; IsPrivate and Recipient
// are only set on directed messages. Timestamp is always server-assigned.
type Message struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	IsPrivate bool      `json:"isPrivate,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemNotice builds a server-authored broadcast notice.
func SystemNotice(content string, ts time.Time) Message {
	return Message{Type: TypeSystem, Content: content, Sender: SystemSender, Timestamp: ts}
}

// BroadcastMessage builds a user message visible to all participants.
func BroadcastMessage(sender, content string, ts time.Time) Message {
	return Message{Type: TypeMessage, Content: content, Sender: sender, Timestamp: ts}
}

// PrivateMessage builds a directed message visible to sender and recipient only.
func PrivateMessage(sender, recipient, content string, ts time.Time) Message {
	return Message{
		Type:      TypeMessage,
		Content:   content,
		Sender:    sender,
		Recipient: recipient,
		IsPrivate: true,
		Timestamp: ts,
	}
}

// RosterEntry is one live participant in a userList frame.
type RosterEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RosterEvent pushes the current participant list to a connection.
type RosterEvent struct {
	Type  string        `json:"type"`
	Users []RosterEntry `json:"users"`
}

// HistoryPayload is the one-time replay sent to a freshly named session:
// the full broadcast log plus every private log the identity participates in,
// keyed by the other participant.
type HistoryPayload struct {
	Broadcast []Message            `json:"publicMessages"`
	Private   map[string][]Message `json:"privateMessages"`
}

// HistoryEvent wraps the replay payload for the wire.
type HistoryEvent struct {
	Type    string         `json:"type"`
	History HistoryPayload `json:"history"`
}

// ErrMalformedEvent marks an inbound payload that does not parse into a
// known event shape. Sessions log and drop these; they are never fatal.
var ErrMalformedEvent = errors.New("malformed event")

// InboundEvent is a decoded client frame: either a name claim or a message
// send. An empty Recipient on a message send means broadcast.
type InboundEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// ParseInbound decodes a raw client frame, rejecting unknown event types.
func ParseInbound(raw []byte) (InboundEvent, error) {
	var evt InboundEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch evt.Type {
	case TypeSetUsername, TypeMessage:
		return evt, nil
	default:
		return InboundEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, evt.Type)
	}
}
