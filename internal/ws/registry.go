package ws

import (
	"sort"
	"time"

	"palaver/internal/models"

	"github.com/c-pro/geche"
)

// Peer is a live connection that events can be queued to.
type Peer interface {
	ID() string
	// Send queues the event without blocking and reports whether it was accepted.
	Send(models.ServerEvent) bool
}

// Entry is the registry record of an authenticated user.
type Entry struct {
	Peer       Peer
	ExternalID string
	User       models.User
	Since      time.Time
}

// Registry maps user ids to their current connection.
// There is at most one entry per user; the latest registration wins.
type Registry struct {
	entries *geche.Locker[string, Entry]
}

func NewRegistry() *Registry {
	return &Registry{
		entries: geche.NewLocker[string, Entry](geche.NewMapCache[string, Entry]()),
	}
}

// Register stores the entry for userID, returning the entry it replaced, if any.
func (r *Registry) Register(userID string, e Entry) (Entry, bool) {
	tx := r.entries.Lock()
	defer tx.Unlock()

	prev, err := tx.Get(userID)
	tx.Set(userID, e)
	return prev, err == nil
}

func (r *Registry) Lookup(userID string) (Entry, bool) {
	tx := r.entries.RLock()
	defer tx.Unlock()

	e, err := tx.Get(userID)
	return e, err == nil
}

// Remove deletes the user's entry only while it still belongs to connID,
// so teardown of a replaced connection leaves the newer one registered.
func (r *Registry) Remove(userID, connID string) bool {
	tx := r.entries.Lock()
	defer tx.Unlock()

	e, err := tx.Get(userID)
	if err != nil || e.Peer.ID() != connID {
		return false
	}
	_ = tx.Del(userID)
	return true
}

// Online returns the sorted ids of registered users.
func (r *Registry) Online() []string {
	tx := r.entries.RLock()
	defer tx.Unlock()

	snapshot := tx.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	tx := r.entries.RLock()
	defer tx.Unlock()
	return tx.Len()
}
