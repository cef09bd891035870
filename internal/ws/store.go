package ws

import (
	"time"

	"palaver/internal/models"
)

// UserStore is the part of storage the presence notifier needs.
type UserStore interface {
	FindUserByID(id string) (models.User, error)
}

// ChatStore is the part of storage the room bridge needs.
type ChatStore interface {
	FindChatByID(chatID string) (models.Chat, error)
	FindChatsByParticipant(userID string) ([]models.Chat, error)
}

// Store is everything the relay reads and writes.
// *storage.BboltStorage implements it.
type Store interface {
	UserStore
	ChatStore
	FindUserByExternalID(externalID string) (models.User, error)
	SetUserOnlineStatus(userID string, online bool, at time.Time) (models.User, error)
	CreateMessage(message models.Message) (models.Message, error)
	FindMessageByID(messageID string) (models.Message, error)
	UpdateMessage(messageID string, fn func(*models.Message) error) (models.Message, error)
	UpsertReaction(messageID, userID, emoji string, at time.Time) (models.Message, error)
	RemoveReaction(messageID, userID, emoji string) (models.Message, bool, error)
	UpdateParticipantLastRead(chatID, userID string, at time.Time) error
}
