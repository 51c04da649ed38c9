package models

import (
	"encoding/json"
	"time"
)

// Event types exchanged over the chat websocket.
const (
	EventJoinChat       = "join_chat"
	EventGetChatHistory = "get_chat_history"
	EventSendMessage    = "send_message"
	EventPing           = "ping"

	EventOnlineUsers      = "online_users"
	EventUserDisconnected = "user_disconnected"
	EventChatHistory      = "chat_history"
	EventNewMessage       = "new_message"
	EventError            = "error"
	EventPong             = "pong"
)

// Event is an outbound websocket frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InboundEvent is a client frame; Data is decoded once Type is known.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinChatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type ChatHistoryRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// SendMessageRequest is a chat submission. Timestamp is the client's clock and is never used for ordering.
type SendMessageRequest struct {
	ReceiverID string     `json:"receiver_id" validate:"required"`
	Content    string     `json:"content" validate:"required"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func OnlineUsersEvent(userIDs []string) Event {
	return Event{Type: EventOnlineUsers, Data: userIDs}
}

func UserDisconnectedEvent(userID string) Event {
	return Event{Type: EventUserDisconnected, Data: userID}
}

func ChatHistoryEvent(messages []MessageView) Event {
	if messages == nil {
		messages = []MessageView{}
	}
	return Event{Type: EventChatHistory, Data: messages}
}

func NewMessageEvent(msg MessageView) Event {
	return Event{Type: EventNewMessage, Data: msg}
}

func ErrorEvent(payload ErrorPayload) Event {
	return Event{Type: EventError, Data: payload}
}
