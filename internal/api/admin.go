package api

import (
	"fmt"
	"net/http"

	"palaver/internal/content"
	"palaver/internal/models"
)

// AdminStore is the storage used by the admin API.
type AdminStore interface {
	UpsertUser(user models.User) (models.User, error)
	AddFriend(userID, friendID string) error
	AddBlock(userID, blockedID string) error
	CreateChat(chat models.Chat) (models.Chat, error)
	FindChatByID(chatID string) (models.Chat, error)
	FindUserByID(id string) (models.User, error)
	SaveChat(chat models.Chat) error
	CountUnread(chatID, userID string) (int, error)
}

// Realtime is the part of the websocket hub the admin API talks to.
type Realtime interface {
	ChatChanged(chat models.Chat) int
	Online() []string
}

type AdminHandler struct {
	store AdminStore
	hub   Realtime
}

func NewAdminHandler(store AdminStore, hub Realtime) *AdminHandler {
	return &AdminHandler{store: store, hub: hub}
}

type SyncUserRequest struct {
	ExternalID  string `json:"externalId"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type SyncUserResponse struct {
	APIResponse
	User models.User `json:"user"`
}

// SyncUserHandler creates or updates the user identified by the external id.
func (h *AdminHandler) SyncUserHandler(w http.ResponseWriter, r *http.Request) {
	var req SyncUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.ExternalID == "" {
		writeError(w, fmt.Errorf("%w: externalId is required", models.ErrValidation), "Sync user")
		return
	}
	if req.UserName == "" {
		req.UserName = content.UsernameFrom(req.ExternalID)
	} else if err := content.ValidateUsername(req.UserName); err != nil {
		writeError(w, fmt.Errorf("%w: %v", models.ErrValidation, err), "Sync user")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.UserName
	}

	user, err := h.store.UpsertUser(models.User{
		ExternalID:  req.ExternalID,
		UserName:    req.UserName,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeError(w, err, "Sync user")
		return
	}

	writeJSON(w, http.StatusOK, SyncUserResponse{
		APIResponse: APIResponse{Success: true},
		User:        user,
	})
}

type RelationRequest struct {
	UserID    string `json:"userId"`
	FriendID  string `json:"friendId,omitempty"`
	BlockedID string `json:"blockedId,omitempty"`
}

func (h *AdminHandler) AddFriendHandler(w http.ResponseWriter, r *http.Request) {
	var req RelationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.store.AddFriend(req.UserID, req.FriendID); err != nil {
		writeError(w, err, "Add friend")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true})
}

func (h *AdminHandler) AddBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req RelationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.store.AddBlock(req.UserID, req.BlockedID); err != nil {
		writeError(w, err, "Add block")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true})
}

type CreateChatRequest struct {
	Type         models.ChatType `json:"type"`
	Name         string          `json:"name,omitempty"`
	Participants []struct {
		UserID string      `json:"userId"`
		Role   models.Role `json:"role,omitempty"`
	} `json:"participants"`
}

type CreateChatResponse struct {
	APIResponse
	Chat models.Chat `json:"chat"`
	// Subscribed is the number of live connections joined to the new room.
	Subscribed int `json:"subscribed"`
}

func (h *AdminHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	chat := models.Chat{Type: req.Type, Name: req.Name}
	for _, p := range req.Participants {
		role := p.Role
		if role == "" {
			role = models.RoleMember
		}
		chat.Participants = append(chat.Participants, models.Participant{UserID: p.UserID, Role: role})
	}

	created, err := h.store.CreateChat(chat)
	if err != nil {
		writeError(w, err, "Create chat")
		return
	}

	writeJSON(w, http.StatusOK, CreateChatResponse{
		APIResponse: APIResponse{Success: true},
		Chat:        created,
		Subscribed:  h.hub.ChatChanged(created),
	})
}

type AddParticipantRequest struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role,omitempty"`
}

// AddParticipantHandler adds a user to an existing chat. A direct chat
// cannot grow, which Chat.Validate enforces on save.
func (h *AdminHandler) AddParticipantHandler(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	if _, err := h.store.FindUserByID(req.UserID); err != nil {
		writeError(w, err, "Add participant")
		return
	}
	chat, err := h.store.FindChatByID(r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Add participant")
		return
	}
	if chat.IsParticipant(req.UserID) {
		writeError(w, fmt.Errorf("%w: user %s already participates", models.ErrValidation, req.UserID), "Add participant")
		return
	}

	chat.Participants = append(chat.Participants, models.Participant{UserID: req.UserID, Role: req.Role})
	if err := h.store.SaveChat(chat); err != nil {
		writeError(w, err, "Add participant")
		return
	}

	writeJSON(w, http.StatusOK, CreateChatResponse{
		APIResponse: APIResponse{Success: true},
		Chat:        chat,
		Subscribed:  h.hub.ChatChanged(chat),
	})
}

type OnlineResponse struct {
	Users []string `json:"users"`
}

func (h *AdminHandler) OnlineHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OnlineResponse{Users: h.hub.Online()})
}

type UnreadResponse struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Unread int    `json:"unread"`
}

func (h *AdminHandler) UnreadHandler(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, fmt.Errorf("%w: userId is required", models.ErrValidation), "Count unread")
		return
	}

	n, err := h.store.CountUnread(chatID, userID)
	if err != nil {
		writeError(w, err, "Count unread")
		return
	}
	writeJSON(w, http.StatusOK, UnreadResponse{ChatID: chatID, UserID: userID, Unread: n})
}
