package models

import (
	"encoding/json"
	"time"
)

// Frame is a single websocket message sent by the client.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is a single websocket message sent to the client.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	ServerEventAuthenticated      = "authenticated"
	ServerEventJoinedChat         = "joined-chat"
	ServerEventLeftChat           = "left-chat"
	ServerEventError              = "error"
	ServerEventNewMessage         = "new-message"
	ServerEventMessageEdited      = "message-edited"
	ServerEventMessageDeleted     = "message-deleted"
	ServerEventUserTyping         = "user-typing"
	ServerEventUserStoppedTyping  = "user-stopped-typing"
	ServerEventReactionAdded      = "reaction-added"
	ServerEventReactionRemoved    = "reaction-removed"
	ServerEventMessagesRead       = "messages-read"
	ServerEventFriendStatusChange = "friend-status-change"
)

type AuthenticatedPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type ChatPayload struct {
	ChatID string `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type MessagePayload struct {
	Message MessageView `json:"message"`
	ChatID  string      `json:"chatId"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

type ReadPayload struct {
	UserID    string    `json:"userId"`
	ChatID    string    `json:"chatId"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusPayload struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
