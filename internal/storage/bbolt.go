package storage

import (
	"errors"
	"fmt"
	"time"

	"palaver/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers       = []byte("users")
	bucketExternalIDs = []byte("external_ids")
	bucketChats       = []byte("chats")
	bucketMessages    = []byte("messages")
	bucketMessageRefs = []byte("message_refs")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketExternalIDs, bucketChats, bucketMessages, bucketMessageRefs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser creates or updates a user by external id. It is the first sign-in sync:
// profile fields are overwritten, presence and relations are preserved.
func (s *BboltStorage) UpsertUser(user models.User) (models.User, error) {
	if user.ExternalID == "" {
		return models.User{}, fmt.Errorf("%w: external id is required", models.ErrValidation)
	}

	var result models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		ext := tx.Bucket(bucketExternalIDs)

		var dbUser DBUser
		if id := ext.Get([]byte(user.ExternalID)); id != nil {
			if err := getUser(tx, string(id), &dbUser); err != nil {
				return err
			}
			dbUser.UserName = user.UserName
			dbUser.DisplayName = user.DisplayName
			dbUser.AvatarURL = user.AvatarURL
		} else {
			user.ID = uuid.NewString()
			dbUser = *newDBUser(user)
			if err := ext.Put([]byte(user.ExternalID), []byte(user.ID)); err != nil {
				return err
			}
		}

		if err := putUser(tx, &dbUser); err != nil {
			return err
		}
		result = dbUser.model()
		return nil
	})
	return result, err
}

func (s *BboltStorage) FindUserByID(id string) (models.User, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getUser(tx, id, &dbUser)
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.model(), nil
}

func (s *BboltStorage) FindUserByExternalID(externalID string) (models.User, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketExternalIDs).Get([]byte(externalID))
		if id == nil {
			return fmt.Errorf("user with external id %s: %w", externalID, models.ErrNotFound)
		}
		return getUser(tx, string(id), &dbUser)
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.model(), nil
}

// SetUserOnlineStatus flips the persisted online flag and refreshes last seen.
func (s *BboltStorage) SetUserOnlineStatus(userID string, online bool, at time.Time) (models.User, error) {
	var result models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var dbUser DBUser
		if err := getUser(tx, userID, &dbUser); err != nil {
			return err
		}
		dbUser.Online = online
		dbUser.LastSeen = toNanos(at)
		if err := putUser(tx, &dbUser); err != nil {
			return err
		}
		result = dbUser.model()
		return nil
	})
	return result, err
}

// AddFriend links two users symmetrically. Adding an existing friend is a no-op.
func (s *BboltStorage) AddFriend(userID, friendID string) error {
	if userID == friendID {
		return fmt.Errorf("%w: user cannot befriend themselves", models.ErrValidation)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		var a, b DBUser
		if err := getUser(tx, userID, &a); err != nil {
			return err
		}
		if err := getUser(tx, friendID, &b); err != nil {
			return err
		}
		a.Friends = appendUnique(a.Friends, friendID)
		b.Friends = appendUnique(b.Friends, userID)
		if err := putUser(tx, &a); err != nil {
			return err
		}
		return putUser(tx, &b)
	})
}

func (s *BboltStorage) AddBlock(userID, blockedID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var u DBUser
		if err := getUser(tx, userID, &u); err != nil {
			return err
		}
		if err := getUser(tx, blockedID, &DBUser{}); err != nil {
			return err
		}
		u.Blocked = appendUnique(u.Blocked, blockedID)
		return putUser(tx, &u)
	})
}

// CreateChat validates and stores a new chat. All participants must exist.
func (s *BboltStorage) CreateChat(chat models.Chat) (models.Chat, error) {
	if err := chat.Validate(); err != nil {
		return models.Chat{}, err
	}

	now := s.now()
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = now
	chat.LastActivity = now

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketChats).Get([]byte(chat.ID)) != nil {
			return fmt.Errorf("%w: chat %s already exists", models.ErrValidation, chat.ID)
		}
		for _, p := range chat.Participants {
			if err := getUser(tx, p.UserID, &DBUser{}); err != nil {
				return err
			}
		}
		return putChat(tx, newDBChat(chat))
	})
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// SaveChat stores the chat as is, replacing any previous version.
func (s *BboltStorage) SaveChat(chat models.Chat) error {
	if err := chat.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putChat(tx, newDBChat(chat))
	})
}

func (s *BboltStorage) FindChatByID(chatID string) (models.Chat, error) {
	var dbChat DBChat
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getChat(tx, chatID, &dbChat)
	})
	if err != nil {
		return models.Chat{}, err
	}
	return dbChat.model(), nil
}

// FindChatsByParticipant returns every chat the user participates in.
func (s *BboltStorage) FindChatsByParticipant(userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChats)
		return b.ForEach(func(k, v []byte) error {
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to unmarshal chat %s: %w", k, err)
			}
			for _, p := range dbChat.Participants {
				if p.UserID == userID {
					chats = append(chats, dbChat.model())
					break
				}
			}
			return nil
		})
	})
	return chats, err
}

// UpdateParticipantLastRead sets lastRead of the user's participant entry.
func (s *BboltStorage) UpdateParticipantLastRead(chatID, userID string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var dbChat DBChat
		if err := getChat(tx, chatID, &dbChat); err != nil {
			return err
		}
		for i := range dbChat.Participants {
			if dbChat.Participants[i].UserID == userID {
				dbChat.Participants[i].LastRead = toNanos(at)
				return putChat(tx, &dbChat)
			}
		}
		return fmt.Errorf("user %s in chat %s: %w", userID, chatID, models.ErrAccessDenied)
	})
}

// CreateMessage stores a new message and moves the chat's last message
// pointer and last activity to it, in one transaction.
func (s *BboltStorage) CreateMessage(message models.Message) (models.Message, error) {
	if message.ChatID == "" {
		return models.Message{}, errors.New("message missing chatID")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var dbChat DBChat
		if err := getChat(tx, message.ChatID, &dbChat); err != nil {
			return err
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ChatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}
		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate message seq: %w", err)
		}
		message.Seq = int64(seq)

		if err := putMessage(tx, newDBMessage(message)); err != nil {
			return err
		}

		dbChat.LastMessageID = message.ID
		dbChat.LastActivity = toNanos(message.CreatedAt)
		return putChat(tx, &dbChat)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *BboltStorage) FindMessageByID(messageID string) (models.Message, error) {
	var dbMsg DBMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getMessage(tx, messageID, &dbMsg)
	})
	if err != nil {
		return models.Message{}, err
	}
	return dbMsg.model(), nil
}

// UpdateMessage loads a message, applies fn and stores the result atomically.
// An error returned by fn aborts the update and is returned unchanged.
func (s *BboltStorage) UpdateMessage(messageID string, fn func(*models.Message) error) (models.Message, error) {
	var result models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var dbMsg DBMessage
		if err := getMessage(tx, messageID, &dbMsg); err != nil {
			return err
		}
		msg := dbMsg.model()
		if err := fn(&msg); err != nil {
			return err
		}
		// Identity fields are not editable.
		msg.ID, msg.ChatID, msg.Seq = dbMsg.ID, dbMsg.ChatID, dbMsg.Seq
		if err := putMessage(tx, newDBMessage(msg)); err != nil {
			return err
		}
		result = msg
		return nil
	})
	return result, err
}

// UpsertReaction adds a reaction, replacing an existing one with the same user and emoji.
func (s *BboltStorage) UpsertReaction(messageID, userID, emoji string, at time.Time) (models.Message, error) {
	return s.UpdateMessage(messageID, func(m *models.Message) error {
		m.UpsertReaction(userID, emoji, at)
		return nil
	})
}

// RemoveReaction reports whether the (user, emoji) reaction existed.
func (s *BboltStorage) RemoveReaction(messageID, userID, emoji string) (models.Message, bool, error) {
	var removed bool
	msg, err := s.UpdateMessage(messageID, func(m *models.Message) error {
		removed = m.RemoveReaction(userID, emoji)
		return nil
	})
	return msg, removed, err
}

// ListMessages returns messages of a chat with from <= seq <= to, oldest first.
func (s *BboltStorage) ListMessages(chatID string, from, to int64) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat
		}

		c := chatBucket.Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil && decodeSeq(k) <= to; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.model())
		}
		return nil
	})
	return messages, err
}

// CountUnread counts visible messages from other senders created after the user's lastRead.
func (s *BboltStorage) CountUnread(chatID, userID string) (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		var dbChat DBChat
		if err := getChat(tx, chatID, &dbChat); err != nil {
			return err
		}

		lastRead := int64(-1)
		for _, p := range dbChat.Participants {
			if p.UserID == userID {
				lastRead = p.LastRead
			}
		}
		if lastRead < 0 {
			return fmt.Errorf("user %s in chat %s: %w", userID, chatID, models.ErrAccessDenied)
		}

		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if !dbMsg.Deleted && dbMsg.SenderID != userID && dbMsg.CreatedAt > lastRead {
				count++
			}
			return nil
		})
	})
	return count, err
}

func getUser(tx *bbolt.Tx, id string, dbUser *DBUser) error {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	return nil
}

func putUser(tx *bbolt.Tx, dbUser *DBUser) error {
	return put(tx.Bucket(bucketUsers), dbUser)
}

func getChat(tx *bbolt.Tx, id string, dbChat *DBChat) error {
	data := tx.Bucket(bucketChats).Get([]byte(id))
	if data == nil {
		return fmt.Errorf("chat %s: %w", id, models.ErrNotFound)
	}
	if err := dbChat.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("failed to unmarshal chat %s: %w", id, err)
	}
	return nil
}

func putChat(tx *bbolt.Tx, dbChat *DBChat) error {
	return put(tx.Bucket(bucketChats), dbChat)
}

func getMessage(tx *bbolt.Tx, id string, dbMsg *DBMessage) error {
	refData := tx.Bucket(bucketMessageRefs).Get([]byte(id))
	if refData == nil {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	var ref DBMessageRef
	if err := ref.UnmarshalBinary(refData); err != nil {
		return fmt.Errorf("failed to unmarshal message ref %s: %w", id, err)
	}

	chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChatID))
	if chatBucket == nil {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	data := chatBucket.Get(seqKey(ref.Seq))
	if data == nil {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("failed to unmarshal message %s: %w", id, err)
	}
	return nil
}

func putMessage(tx *bbolt.Tx, dbMsg *DBMessage) error {
	chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(dbMsg.ChatID))
	if err != nil {
		return fmt.Errorf("failed to create chat bucket: %w", err)
	}
	if err := put(chatBucket, dbMsg); err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return put(tx.Bucket(bucketMessageRefs), &DBMessageRef{ID: dbMsg.ID, ChatID: dbMsg.ChatID, Seq: dbMsg.Seq})
}

func put(b *bbolt.Bucket, item Storeable) error {
	data, err := item.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(item.Key(), data)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
