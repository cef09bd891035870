package ws

import (
	"encoding/json"
	"fmt"

	"palaver/internal/models"
)

// Client event names.
const (
	EventAuthenticate   = "authenticate"
	EventJoinChat       = "join-chat"
	EventLeaveChat      = "leave-chat"
	EventSendMessage    = "send-message"
	EventEditMessage    = "edit-message"
	EventDeleteMessage  = "delete-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventAddReaction    = "add-reaction"
	EventRemoveReaction = "remove-reaction"
	EventMarkRead       = "mark-read"
)

// InboundEvent is one of the event types below. The set is closed:
// only types in this file implement it.
type InboundEvent interface {
	Name() string
	inbound()
}

type Authenticate struct {
	UserID string `json:"userId"`
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type SendMessage struct {
	ChatID  string                `json:"chatId"`
	Content models.MessageContent `json:"content"`
	ReplyTo string                `json:"replyTo,omitempty"`
}

type EditMessage struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId"`
}

type TypingStart struct {
	ChatID string `json:"chatId"`
}

type TypingStop struct {
	ChatID string `json:"chatId"`
}

type AddReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type RemoveReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type MarkRead struct {
	ChatID string `json:"chatId"`
}

func (Authenticate) Name() string   { return EventAuthenticate }
func (JoinChat) Name() string       { return EventJoinChat }
func (LeaveChat) Name() string      { return EventLeaveChat }
func (SendMessage) Name() string    { return EventSendMessage }
func (EditMessage) Name() string    { return EventEditMessage }
func (DeleteMessage) Name() string  { return EventDeleteMessage }
func (TypingStart) Name() string    { return EventTypingStart }
func (TypingStop) Name() string     { return EventTypingStop }
func (AddReaction) Name() string    { return EventAddReaction }
func (RemoveReaction) Name() string { return EventRemoveReaction }
func (MarkRead) Name() string       { return EventMarkRead }

func (Authenticate) inbound()   {}
func (JoinChat) inbound()       {}
func (LeaveChat) inbound()      {}
func (SendMessage) inbound()    {}
func (EditMessage) inbound()    {}
func (DeleteMessage) inbound()  {}
func (TypingStart) inbound()    {}
func (TypingStop) inbound()     {}
func (AddReaction) inbound()    {}
func (RemoveReaction) inbound() {}
func (MarkRead) inbound()       {}

// Decode turns a client frame into its typed event.
// Unknown event names and malformed payloads yield a ValidationFailed client error.
func Decode(f models.Frame) (InboundEvent, error) {
	var ev InboundEvent
	var err error
	switch f.Event {
	case EventAuthenticate:
		ev, err = decodeAs[Authenticate](f.Data)
	case EventJoinChat:
		ev, err = decodeAs[JoinChat](f.Data)
	case EventLeaveChat:
		ev, err = decodeAs[LeaveChat](f.Data)
	case EventSendMessage:
		ev, err = decodeAs[SendMessage](f.Data)
	case EventEditMessage:
		ev, err = decodeAs[EditMessage](f.Data)
	case EventDeleteMessage:
		ev, err = decodeAs[DeleteMessage](f.Data)
	case EventTypingStart:
		ev, err = decodeAs[TypingStart](f.Data)
	case EventTypingStop:
		ev, err = decodeAs[TypingStop](f.Data)
	case EventAddReaction:
		ev, err = decodeAs[AddReaction](f.Data)
	case EventRemoveReaction:
		ev, err = decodeAs[RemoveReaction](f.Data)
	case EventMarkRead:
		ev, err = decodeAs[MarkRead](f.Data)
	default:
		return nil, invalid(fmt.Sprintf("Unknown event %q", f.Event))
	}
	if err != nil {
		return nil, invalid(fmt.Sprintf("Malformed %s payload", f.Event))
	}
	return ev, nil
}

func decodeAs[T InboundEvent](data json.RawMessage) (InboundEvent, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
