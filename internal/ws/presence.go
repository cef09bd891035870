package ws

import (
	"fmt"
	"time"

	"palaver/internal/models"
)

// PresenceResult reports how many friends were told about a status change.
type PresenceResult struct {
	Notified int
	Err      error
}

// Presence tells a user's connected friends when the user goes online or offline.
type Presence struct {
	registry *Registry
	users    UserStore
}

func NewPresence(registry *Registry, users UserStore) *Presence {
	return &Presence{registry: registry, users: users}
}

// NotifyStatusChange sends friend-status-change to every friend present in the
// registry, skipping the connection with id exclude. Friends who are offline or
// who have blocked the user get nothing.
func (p *Presence) NotifyStatusChange(userID string, online bool, lastSeen time.Time, exclude string) PresenceResult {
	user, err := p.users.FindUserByID(userID)
	if err != nil {
		return PresenceResult{Err: fmt.Errorf("failed to load friends of user %s: %w", userID, err)}
	}

	ev := event(models.ServerEventFriendStatusChange, models.StatusPayload{
		UserID:   userID,
		IsOnline: online,
		LastSeen: lastSeen,
	})

	var res PresenceResult
	for _, friendID := range user.Friends {
		e, ok := p.registry.Lookup(friendID)
		if !ok || e.Peer.ID() == exclude {
			continue
		}
		// The registry snapshot is as old as the friend's connection;
		// relations may have changed since.
		friend, err := p.users.FindUserByID(friendID)
		if err != nil {
			res.Err = fmt.Errorf("failed to load friend %s: %w", friendID, err)
			continue
		}
		if !friend.IsFriend(userID) || friend.HasBlocked(userID) {
			continue
		}
		if e.Peer.Send(ev) {
			res.Notified++
		}
	}
	return res
}
