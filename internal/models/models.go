package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrValidation   = errors.New("validation failed")
)

type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User represents a user in the system.
// ExternalID is the identifier issued by the identity provider.
type User struct {
	ID          string   `json:"id"`
	ExternalID  string   `json:"externalId"`
	UserName    string   `json:"userName"`
	DisplayName string   `json:"displayName"`
	AvatarURL   string   `json:"avatarUrl"`
	Presence    Presence `json:"presence"`
	Friends     []string `json:"friends,omitempty"`
	Blocked     []string `json:"blocked,omitempty"`
}

// Presence represents the online status of a user.
type Presence struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// PublicUser is the part of a user that other users are allowed to see.
type PublicUser struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

func (u User) IsFriend(userID string) bool {
	return slices.Contains(u.Friends, userID)
}

func (u User) HasBlocked(userID string) bool {
	return slices.Contains(u.Blocked, userID)
}

// Participant is a membership entry of a user within a chat.
type Participant struct {
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	LastRead time.Time `json:"lastRead"`
}

// Chat represents a direct or group conversation.
type Chat struct {
	ID            string        `json:"id"`
	Type          ChatType      `json:"type"`
	Name          string        `json:"name,omitempty"`
	Participants  []Participant `json:"participants"`
	LastMessageID string        `json:"lastMessageId,omitempty"`
	LastActivity  time.Time     `json:"lastActivity"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (c Chat) Participant(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c Chat) IsParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

func (c Chat) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Validate checks chat invariants: participant ids are unique
// and a direct chat has exactly two participants.
func (c Chat) Validate() error {
	switch c.Type {
	case ChatTypeDirect, ChatTypeGroup:
	default:
		return fmt.Errorf("%w: unknown chat type %q", ErrValidation, c.Type)
	}

	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID == "" {
			return fmt.Errorf("%w: participant without user id", ErrValidation)
		}
		if _, dup := seen[p.UserID]; dup {
			return fmt.Errorf("%w: duplicate participant %s", ErrValidation, p.UserID)
		}
		seen[p.UserID] = struct{}{}

		switch p.Role {
		case RoleAdmin, RoleMember:
		default:
			return fmt.Errorf("%w: unknown role %q for participant %s", ErrValidation, p.Role, p.UserID)
		}
	}

	if c.Type == ChatTypeDirect && len(c.Participants) != 2 {
		return fmt.Errorf("%w: direct chat must have exactly two participants, got %d", ErrValidation, len(c.Participants))
	}
	if len(c.Participants) == 0 {
		return fmt.Errorf("%w: chat has no participants", ErrValidation)
	}

	return nil
}

type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeImage    ContentType = "image"
	ContentTypeFile     ContentType = "file"
)

// FileRef points to an uploaded file. The relay never sees file bytes.
type FileRef struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type MessageContent struct {
	Text string      `json:"text"`
	Type ContentType `json:"type"`
	HTML string      `json:"html,omitempty"`
	File *FileRef    `json:"file,omitempty"`
}

// Reaction is a single emoji reaction. A (UserID, Emoji) pair appears at most once per message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message represents a chat message.
type Message struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	ChatID    string         `json:"chatId"`
	SenderID  string         `json:"senderId"`
	Content   MessageContent `json:"content"`
	ReplyTo   string         `json:"replyTo,omitempty"`
	Reactions []Reaction     `json:"reactions"`
	Deleted   bool           `json:"deleted"`
	Edited    bool           `json:"edited"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// UpsertReaction replaces any existing reaction with the same user and emoji.
func (m *Message) UpsertReaction(userID, emoji string, at time.Time) {
	m.RemoveReaction(userID, emoji)
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
}

// RemoveReaction reports whether a reaction was removed.
func (m *Message) RemoveReaction(userID, emoji string) bool {
	n := len(m.Reactions)
	m.Reactions = slices.DeleteFunc(m.Reactions, func(r Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
	return len(m.Reactions) != n
}

// MessageView is a message populated for delivery to clients.
// Reply replaces the bare replyTo id in the JSON form.
type MessageView struct {
	Message
	Sender PublicUser `json:"sender"`
	Reply  *ReplyView `json:"replyTo,omitempty"`
}

// ReplyView is the short form of a replied-to message.
type ReplyView struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Sender PublicUser `json:"sender"`
}
