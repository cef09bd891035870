package ws

import (
	"fmt"

	"palaver/internal/models"
)

// SyncResult reports which rooms a connection was subscribed to on authenticate.
// Err is set when memberships could not be loaded; it is logged, never returned to the client.
type SyncResult struct {
	ChatIDs []string
	Err     error
}

// Bridge keeps room subscriptions in line with persisted chat membership.
type Bridge struct {
	rooms    *Rooms
	registry *Registry
	store    ChatStore
}

func NewBridge(rooms *Rooms, registry *Registry, store ChatStore) *Bridge {
	return &Bridge{rooms: rooms, registry: registry, store: store}
}

// SyncRooms subscribes the peer to every chat the user participates in.
func (b *Bridge) SyncRooms(p Peer, userID string) SyncResult {
	chats, err := b.store.FindChatsByParticipant(userID)
	if err != nil {
		return SyncResult{Err: fmt.Errorf("failed to load chats of user %s: %w", userID, err)}
	}

	res := SyncResult{ChatIDs: make([]string, 0, len(chats))}
	for _, c := range chats {
		b.rooms.Subscribe(c.ID, p)
		res.ChatIDs = append(res.ChatIDs, c.ID)
	}
	return res
}

// JoinRoom subscribes the peer to a chat the user participates in
// and confirms to the caller.
func (b *Bridge) JoinRoom(p Peer, chatID, userID string) error {
	chat, err := b.store.FindChatByID(chatID)
	if err != nil {
		return classify(err, "Chat")
	}
	if !chat.IsParticipant(userID) {
		return accessDenied("Not a participant of this chat")
	}

	b.rooms.Subscribe(chatID, p)
	p.Send(event(models.ServerEventJoinedChat, models.ChatPayload{ChatID: chatID}))
	return nil
}

// LeaveRoom always succeeds, even for rooms the peer never joined.
func (b *Bridge) LeaveRoom(p Peer, chatID string) {
	b.rooms.Unsubscribe(chatID, p.ID())
	p.Send(event(models.ServerEventLeftChat, models.ChatPayload{ChatID: chatID}))
}

// SubscribeParticipants subscribes the current connections of a chat's participants,
// used when a chat is created while its members are online. Returns the number subscribed.
func (b *Bridge) SubscribeParticipants(chat models.Chat) int {
	n := 0
	for _, userID := range chat.ParticipantIDs() {
		e, ok := b.registry.Lookup(userID)
		if !ok {
			continue
		}
		if b.rooms.Subscribe(chat.ID, e.Peer) {
			n++
		}
	}
	return n
}

func event(name string, data any) models.ServerEvent {
	return models.ServerEvent{Event: name, Data: data}
}
