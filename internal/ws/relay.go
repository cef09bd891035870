package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"palaver/internal/content"
	"palaver/internal/metrics"
	"palaver/internal/models"

	"github.com/google/uuid"
)

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Session is the relay state of one connection. It is only touched
// by the goroutine processing that connection's events.
type Session struct {
	Peer  Peer
	state SessionState
	user  models.User
	extID string
}

func NewSession(p Peer) *Session {
	return &Session{Peer: p}
}

func (s *Session) State() SessionState { return s.state }

// UserID is empty until the session is authenticated.
func (s *Session) UserID() string { return s.user.ID }

// Relay validates client events, applies them to storage and fans the results out.
type Relay struct {
	store    Store
	registry *Registry
	rooms    *Rooms
	bridge   *Bridge
	presence *Presence
	metrics  *metrics.Metrics
	locks    *userLocks
	now      func() time.Time
}

func NewRelay(store Store, registry *Registry, rooms *Rooms, bridge *Bridge, presence *Presence, m *metrics.Metrics) *Relay {
	return &Relay{
		store:    store,
		registry: registry,
		rooms:    rooms,
		bridge:   bridge,
		presence: presence,
		metrics:  m,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// HandleFrame decodes and dispatches a raw client frame.
func (r *Relay) HandleFrame(s *Session, f models.Frame) {
	ev, err := Decode(f)
	if err != nil {
		if f.Event == EventMarkRead {
			return
		}
		// Client-chosen names are not used as metric labels.
		r.reply(s, "invalid", err)
		return
	}
	r.Dispatch(s, ev)
}

// Dispatch runs the handler of ev. Failures are reported to the caller as
// an error event; nothing a handler does can terminate the connection.
func (r *Relay) Dispatch(s *Session, ev InboundEvent) {
	name := ev.Name()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic in event handler", "event", name, "conn_id", s.Peer.ID(), "panic", p, "stack", string(debug.Stack()))
			r.reply(s, name, fmt.Errorf("panic: %v", p))
		}
	}()

	if s.state == StateDisconnected {
		return
	}

	var err error
	switch ev := ev.(type) {
	case Authenticate:
		err = r.authenticate(s, ev)
	case JoinChat:
		err = r.joinChat(s, ev)
	case LeaveChat:
		err = r.leaveChat(s, ev)
	case SendMessage:
		err = r.sendMessage(s, ev)
	case EditMessage:
		err = r.editMessage(s, ev)
	case DeleteMessage:
		err = r.deleteMessage(s, ev)
	case TypingStart:
		err = r.typing(s, ev.ChatID, models.ServerEventUserTyping)
	case TypingStop:
		err = r.typing(s, ev.ChatID, models.ServerEventUserStoppedTyping)
	case AddReaction:
		err = r.addReaction(s, ev)
	case RemoveReaction:
		err = r.removeReaction(s, ev)
	case MarkRead:
		r.markRead(s, ev)
	default:
		err = invalid(fmt.Sprintf("Unsupported event %q", name))
	}
	r.reply(s, name, err)
}

// reply records the outcome and reports a failure to the caller only.
func (r *Relay) reply(s *Session, name string, err error) {
	if err == nil {
		r.metrics.Events.WithLabelValues(name, "ok").Inc()
		return
	}

	var ce *ClientError
	if !errors.As(err, &ce) {
		slog.Error("event failed", "event", name, "conn_id", s.Peer.ID(), "user_id", s.UserID(), "error", err)
		ce = &ClientError{Kind: KindInternal, Message: failedMessage(name)}
	}
	r.metrics.Events.WithLabelValues(name, string(ce.Kind)).Inc()
	s.Peer.Send(event(models.ServerEventError, models.ErrorPayload{Message: ce.Message, Code: string(ce.Kind)}))
}

func failedMessage(name string) string {
	if name == "" {
		return "Request failed"
	}
	words := strings.ReplaceAll(name, "-", " ")
	return strings.ToUpper(words[:1]) + words[1:] + " failed"
}

func (r *Relay) broadcast(chatID string, ev models.ServerEvent, exclude string) int {
	n := r.rooms.Broadcast(chatID, ev, exclude)
	r.metrics.Deliveries.WithLabelValues(ev.Event).Add(float64(n))
	return n
}

func (r *Relay) authenticate(s *Session, ev Authenticate) error {
	if ev.UserID == "" {
		return invalid("userId is required")
	}

	user, err := r.store.FindUserByExternalID(ev.UserID)
	if err != nil {
		return classify(err, "User")
	}

	if s.state == StateAuthenticated && s.user.ID != user.ID {
		r.release(s)
	}

	unlock := r.locks.Lock(user.ID)
	defer unlock()

	now := r.now()
	s.state = StateAuthenticated
	s.user = user
	s.extID = ev.UserID

	prev, replaced := r.registry.Register(user.ID, Entry{Peer: s.Peer, ExternalID: ev.UserID, User: user, Since: now})
	if replaced && prev.Peer.ID() != s.Peer.ID() {
		slog.Info("registry entry replaced", "user_id", user.ID, "conn_id", s.Peer.ID(), "previous_conn_id", prev.Peer.ID())
	}
	r.metrics.OnlineUsers.Set(float64(r.registry.Len()))

	if s.user, err = r.store.SetUserOnlineStatus(user.ID, true, now); err != nil {
		s.user = user
		return fmt.Errorf("failed to mark user %s online: %w", user.ID, err)
	}

	if res := r.bridge.SyncRooms(s.Peer, user.ID); res.Err != nil {
		slog.Warn("room sync failed", "user_id", user.ID, "conn_id", s.Peer.ID(), "error", res.Err)
	} else {
		slog.Debug("rooms synced", "user_id", user.ID, "conn_id", s.Peer.ID(), "chats", len(res.ChatIDs))
	}

	if res := r.presence.NotifyStatusChange(user.ID, true, now, s.Peer.ID()); res.Err != nil {
		slog.Warn("presence notify failed", "user_id", user.ID, "error", res.Err)
	}

	s.Peer.Send(event(models.ServerEventAuthenticated, models.AuthenticatedPayload{
		UserID:  user.ID,
		Message: "Authentication successful",
	}))
	return nil
}

// Disconnect tears the session down. Calling it more than once is harmless.
func (r *Relay) Disconnect(s *Session) {
	if s.state == StateAuthenticated {
		r.release(s)
	} else {
		r.rooms.UnsubscribeAll(s.Peer.ID())
	}
	s.state = StateDisconnected
}

// release undoes authenticate: the session leaves its rooms and, unless a newer
// connection has taken over the user, the user goes offline.
func (r *Relay) release(s *Session) {
	userID := s.user.ID
	s.state = StateUnauthenticated
	s.user = models.User{}
	s.extID = ""

	r.rooms.UnsubscribeAll(s.Peer.ID())

	unlock := r.locks.Lock(userID)
	defer unlock()

	if !r.registry.Remove(userID, s.Peer.ID()) {
		slog.Debug("connection superseded, keeping user online", "user_id", userID, "conn_id", s.Peer.ID())
		return
	}
	r.metrics.OnlineUsers.Set(float64(r.registry.Len()))

	now := r.now()
	if _, err := r.store.SetUserOnlineStatus(userID, false, now); err != nil {
		slog.Error("failed to mark user offline", "user_id", userID, "error", err)
	}
	if res := r.presence.NotifyStatusChange(userID, false, now, s.Peer.ID()); res.Err != nil {
		slog.Warn("presence notify failed", "user_id", userID, "error", res.Err)
	}
}

func (r *Relay) joinChat(s *Session, ev JoinChat) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.ChatID == "" {
		return invalid("chatId is required")
	}
	return r.bridge.JoinRoom(s.Peer, ev.ChatID, s.user.ID)
}

func (r *Relay) leaveChat(s *Session, ev LeaveChat) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.ChatID == "" {
		return invalid("chatId is required")
	}
	r.bridge.LeaveRoom(s.Peer, ev.ChatID)
	return nil
}

func (r *Relay) sendMessage(s *Session, ev SendMessage) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.ChatID == "" {
		return invalid("chatId is required")
	}

	chat, err := r.store.FindChatByID(ev.ChatID)
	if err != nil {
		return classify(err, "Chat")
	}
	if !chat.IsParticipant(s.user.ID) {
		return accessDenied("Not a participant of this chat")
	}
	if chat.Type == models.ChatTypeDirect {
		if err := r.checkNotBlocked(chat, s.user.ID); err != nil {
			return err
		}
	}

	body, err := content.Prepare(ev.Content)
	if err != nil {
		return classify(err, "Message")
	}

	if ev.ReplyTo != "" {
		target, err := r.store.FindMessageByID(ev.ReplyTo)
		if err != nil {
			return classify(err, "Reply target")
		}
		if target.ChatID != chat.ID {
			return invalid("Reply target belongs to another chat")
		}
	}

	now := r.now()
	msg, err := r.store.CreateMessage(models.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  s.user.ID,
		Content:   body,
		ReplyTo:   ev.ReplyTo,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return classify(err, "Chat")
	}

	r.broadcast(chat.ID, event(models.ServerEventNewMessage, models.MessagePayload{
		Message: r.populate(msg),
		ChatID:  chat.ID,
	}), "")
	return nil
}

func (r *Relay) editMessage(s *Session, ev EditMessage) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.MessageID == "" {
		return invalid("messageId is required")
	}

	now := r.now()
	msg, err := r.store.UpdateMessage(ev.MessageID, func(m *models.Message) error {
		if m.SenderID != s.user.ID {
			return accessDenied("Only the sender can edit a message")
		}
		if m.Deleted {
			return invalid("Message is deleted")
		}
		body, err := content.Prepare(models.MessageContent{Text: ev.Text, Type: m.Content.Type, File: m.Content.File})
		if err != nil {
			return err
		}
		m.Content = body
		m.Edited = true
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return classify(err, "Message")
	}

	r.broadcast(msg.ChatID, event(models.ServerEventMessageEdited, models.MessagePayload{
		Message: r.populate(msg),
		ChatID:  msg.ChatID,
	}), "")
	return nil
}

func (r *Relay) deleteMessage(s *Session, ev DeleteMessage) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.MessageID == "" {
		return invalid("messageId is required")
	}

	current, err := r.store.FindMessageByID(ev.MessageID)
	if err != nil {
		return classify(err, "Message")
	}
	if current.SenderID != s.user.ID {
		chat, err := r.store.FindChatByID(current.ChatID)
		if err != nil {
			return classify(err, "Chat")
		}
		if p, ok := chat.Participant(s.user.ID); !ok || p.Role != models.RoleAdmin {
			return accessDenied("Only the sender or a chat admin can delete a message")
		}
	}

	now := r.now()
	msg, err := r.store.UpdateMessage(ev.MessageID, func(m *models.Message) error {
		m.Deleted = true
		m.Content = models.MessageContent{Type: m.Content.Type}
		m.Reactions = nil
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return classify(err, "Message")
	}

	r.broadcast(msg.ChatID, event(models.ServerEventMessageDeleted, models.MessageDeletedPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
	}), "")
	return nil
}

// checkNotBlocked rejects a direct message to a user who has blocked the sender.
func (r *Relay) checkNotBlocked(chat models.Chat, senderID string) error {
	for _, userID := range chat.ParticipantIDs() {
		if userID == senderID {
			continue
		}
		other, err := r.store.FindUserByID(userID)
		if err != nil {
			return classify(err, "User")
		}
		if other.HasBlocked(senderID) {
			return accessDenied("You cannot message this user")
		}
	}
	return nil
}

// typing is a stateless forward to the rest of the room.
func (r *Relay) typing(s *Session, chatID, name string) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if chatID == "" {
		return invalid("chatId is required")
	}
	r.broadcast(chatID, event(name, models.TypingPayload{UserID: s.user.ID, ChatID: chatID}), s.Peer.ID())
	return nil
}

// addReaction does not check that the caller participates in the message's chat.
func (r *Relay) addReaction(s *Session, ev AddReaction) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.MessageID == "" || ev.Emoji == "" {
		return invalid("messageId and emoji are required")
	}

	msg, err := r.store.UpsertReaction(ev.MessageID, s.user.ID, ev.Emoji, r.now())
	if err != nil {
		return classify(err, "Message")
	}

	r.broadcast(msg.ChatID, event(models.ServerEventReactionAdded, models.ReactionPayload{
		MessageID: msg.ID,
		UserID:    s.user.ID,
		Emoji:     ev.Emoji,
	}), "")
	return nil
}

func (r *Relay) removeReaction(s *Session, ev RemoveReaction) error {
	if s.state != StateAuthenticated {
		return errNotAuthenticated
	}
	if ev.MessageID == "" || ev.Emoji == "" {
		return invalid("messageId and emoji are required")
	}

	msg, removed, err := r.store.RemoveReaction(ev.MessageID, s.user.ID, ev.Emoji)
	if err != nil {
		return classify(err, "Message")
	}
	if !removed {
		return nil
	}

	r.broadcast(msg.ChatID, event(models.ServerEventReactionRemoved, models.ReactionPayload{
		MessageID: msg.ID,
		UserID:    s.user.ID,
		Emoji:     ev.Emoji,
	}), "")
	return nil
}

// markRead never reports anything back to the caller.
func (r *Relay) markRead(s *Session, ev MarkRead) {
	if s.state != StateAuthenticated || ev.ChatID == "" {
		return
	}

	now := r.now()
	if err := r.store.UpdateParticipantLastRead(ev.ChatID, s.user.ID, now); err != nil {
		slog.Debug("mark-read ignored", "chat_id", ev.ChatID, "user_id", s.user.ID, "error", err)
		return
	}

	r.broadcast(ev.ChatID, event(models.ServerEventMessagesRead, models.ReadPayload{
		UserID:    s.user.ID,
		ChatID:    ev.ChatID,
		Timestamp: now,
	}), s.Peer.ID())
}

// populate attaches the sender's public profile and the replied-to message.
// Lookup failures leave the corresponding field empty.
func (r *Relay) populate(msg models.Message) models.MessageView {
	view := models.MessageView{Message: msg, Sender: r.publicUser(msg.SenderID)}

	if msg.ReplyTo != "" {
		reply, err := r.store.FindMessageByID(msg.ReplyTo)
		if err != nil {
			slog.Warn("failed to load replied-to message", "message_id", msg.ReplyTo, "error", err)
			return view
		}
		view.Reply = &models.ReplyView{
			ID:     reply.ID,
			Text:   reply.Content.Text,
			Sender: r.publicUser(reply.SenderID),
		}
	}
	return view
}

func (r *Relay) publicUser(userID string) models.PublicUser {
	if e, ok := r.registry.Lookup(userID); ok {
		return e.User.Public()
	}
	u, err := r.store.FindUserByID(userID)
	if err != nil {
		slog.Warn("failed to load user", "user_id", userID, "error", err)
		return models.PublicUser{ID: userID}
	}
	return u.Public()
}
