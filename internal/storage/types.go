package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"palaver/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string   `msgpack:"id"`
	ExternalID  string   `msgpack:"externalId"`
	UserName    string   `msgpack:"userName"`
	DisplayName string   `msgpack:"displayName"`
	AvatarURL   string   `msgpack:"avatarUrl"`
	Online      bool     `msgpack:"online"`
	LastSeen    int64    `msgpack:"lastSeen"`
	Friends     []string `msgpack:"friends"`
	Blocked     []string `msgpack:"blocked"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func newDBUser(u models.User) *DBUser {
	return &DBUser{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Online:      u.Presence.Online,
		LastSeen:    toNanos(u.Presence.LastSeen),
		Friends:     u.Friends,
		Blocked:     u.Blocked,
	}
}

func (u *DBUser) model() models.User {
	return models.User{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Presence: models.Presence{
			Online:   u.Online,
			LastSeen: fromNanos(u.LastSeen),
		},
		Friends: u.Friends,
		Blocked: u.Blocked,
	}
}

type DBParticipant struct {
	UserID   string `msgpack:"userId"`
	Role     string `msgpack:"role"`
	LastRead int64  `msgpack:"lastRead"`
}

type DBChat struct {
	ID            string          `msgpack:"id"`
	Type          string          `msgpack:"type"`
	Name          string          `msgpack:"name"`
	Participants  []DBParticipant `msgpack:"participants"`
	LastMessageID string          `msgpack:"lastMessageId"`
	LastActivity  int64           `msgpack:"lastActivity"`
	CreatedAt     int64           `msgpack:"createdAt"`
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

func newDBChat(c models.Chat) *DBChat {
	dbChat := &DBChat{
		ID:            c.ID,
		Type:          string(c.Type),
		Name:          c.Name,
		LastMessageID: c.LastMessageID,
		LastActivity:  toNanos(c.LastActivity),
		CreatedAt:     toNanos(c.CreatedAt),
		Participants:  make([]DBParticipant, len(c.Participants)),
	}
	for i, p := range c.Participants {
		dbChat.Participants[i] = DBParticipant{
			UserID:   p.UserID,
			Role:     string(p.Role),
			LastRead: toNanos(p.LastRead),
		}
	}
	return dbChat
}

func (c *DBChat) model() models.Chat {
	chat := models.Chat{
		ID:            c.ID,
		Type:          models.ChatType(c.Type),
		Name:          c.Name,
		LastMessageID: c.LastMessageID,
		LastActivity:  fromNanos(c.LastActivity),
		CreatedAt:     fromNanos(c.CreatedAt),
		Participants:  make([]models.Participant, len(c.Participants)),
	}
	for i, p := range c.Participants {
		chat.Participants[i] = models.Participant{
			UserID:   p.UserID,
			Role:     models.Role(p.Role),
			LastRead: fromNanos(p.LastRead),
		}
	}
	return chat
}

type DBFile struct {
	URL      string `msgpack:"url"`
	Name     string `msgpack:"name"`
	MimeType string `msgpack:"mimeType"`
	Size     int64  `msgpack:"size"`
}

type DBReaction struct {
	UserID    string `msgpack:"userId"`
	Emoji     string `msgpack:"emoji"`
	CreatedAt int64  `msgpack:"createdAt"`
}

type DBMessage struct {
	ID          string       `msgpack:"id"`
	Seq         int64        `msgpack:"seq"`
	ChatID      string       `msgpack:"chatId"`
	SenderID    string       `msgpack:"senderId"`
	Text        string       `msgpack:"text"`
	ContentType string       `msgpack:"contentType"`
	HTML        string       `msgpack:"html"`
	File        *DBFile      `msgpack:"file"`
	ReplyTo     string       `msgpack:"replyTo"`
	Reactions   []DBReaction `msgpack:"reactions"`
	Deleted     bool         `msgpack:"deleted"`
	Edited      bool         `msgpack:"edited"`
	CreatedAt   int64        `msgpack:"createdAt"`
	UpdatedAt   int64        `msgpack:"updatedAt"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func newDBMessage(m models.Message) *DBMessage {
	dbMessage := &DBMessage{
		ID:          m.ID,
		Seq:         m.Seq,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Text:        m.Content.Text,
		ContentType: string(m.Content.Type),
		HTML:        m.Content.HTML,
		ReplyTo:     m.ReplyTo,
		Deleted:     m.Deleted,
		Edited:      m.Edited,
		CreatedAt:   toNanos(m.CreatedAt),
		UpdatedAt:   toNanos(m.UpdatedAt),
	}
	if f := m.Content.File; f != nil {
		dbMessage.File = &DBFile{URL: f.URL, Name: f.Name, MimeType: f.MimeType, Size: f.Size}
	}
	if len(m.Reactions) > 0 {
		dbMessage.Reactions = make([]DBReaction, len(m.Reactions))
		for i, r := range m.Reactions {
			dbMessage.Reactions[i] = DBReaction{UserID: r.UserID, Emoji: r.Emoji, CreatedAt: toNanos(r.CreatedAt)}
		}
	}
	return dbMessage
}

func (m *DBMessage) model() models.Message {
	msg := models.Message{
		ID:       m.ID,
		Seq:      m.Seq,
		ChatID:   m.ChatID,
		SenderID: m.SenderID,
		Content: models.MessageContent{
			Text: m.Text,
			Type: models.ContentType(m.ContentType),
			HTML: m.HTML,
		},
		ReplyTo:   m.ReplyTo,
		Reactions: make([]models.Reaction, len(m.Reactions)),
		Deleted:   m.Deleted,
		Edited:    m.Edited,
		CreatedAt: fromNanos(m.CreatedAt),
		UpdatedAt: fromNanos(m.UpdatedAt),
	}
	if f := m.File; f != nil {
		msg.Content.File = &models.FileRef{URL: f.URL, Name: f.Name, MimeType: f.MimeType, Size: f.Size}
	}
	for i, r := range m.Reactions {
		msg.Reactions[i] = models.Reaction{UserID: r.UserID, Emoji: r.Emoji, CreatedAt: fromNanos(r.CreatedAt)}
	}
	return msg
}

// DBMessageRef locates a message inside its chat bucket.
type DBMessageRef struct {
	ID     string `msgpack:"id"`
	ChatID string `msgpack:"chatId"`
	Seq    int64  `msgpack:"seq"`
}

func (r *DBMessageRef) Key() []byte {
	return []byte(r.ID)
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

func decodeSeq(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

// Timestamps are stored as unix nanoseconds, zero meaning "never".
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
