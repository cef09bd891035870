package ws

import (
	"sort"
	"sync"

	"palaver/internal/models"
)

// Rooms maps chat ids to the connections subscribed to them,
// with a reverse index so a closing connection can leave everything at once.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Peer     // chatID -> connID -> peer
	joined  map[string]map[string]struct{} // connID -> chatIDs
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Peer),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Subscribe adds the peer to the room and reports whether it was not there yet.
func (r *Rooms) Subscribe(chatID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.members[chatID]
	if room == nil {
		room = make(map[string]Peer)
		r.members[chatID] = room
	}
	if _, ok := room[p.ID()]; ok {
		return false
	}
	room[p.ID()] = p

	chats := r.joined[p.ID()]
	if chats == nil {
		chats = make(map[string]struct{})
		r.joined[p.ID()] = chats
	}
	chats[chatID] = struct{}{}
	return true
}

// Unsubscribe removes the connection from the room. Leaving a room
// the connection never joined is a no-op.
func (r *Rooms) Unsubscribe(chatID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(chatID, connID)
}

// UnsubscribeAll removes the connection from every room and returns their ids.
func (r *Rooms) UnsubscribeAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	chatIDs := make([]string, 0, len(r.joined[connID]))
	for chatID := range r.joined[connID] {
		chatIDs = append(chatIDs, chatID)
	}
	for _, chatID := range chatIDs {
		r.unsubscribeLocked(chatID, connID)
	}
	sort.Strings(chatIDs)
	return chatIDs
}

func (r *Rooms) unsubscribeLocked(chatID, connID string) bool {
	room := r.members[chatID]
	if _, ok := room[connID]; !ok {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.members, chatID)
	}

	chats := r.joined[connID]
	delete(chats, chatID)
	if len(chats) == 0 {
		delete(r.joined, connID)
	}
	return true
}

func (r *Rooms) Subscribed(chatID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[chatID][connID]
	return ok
}

// Targets returns the room's peers except the one with id exclude.
func (r *Rooms) Targets(chatID, exclude string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fanout(r.members[chatID], exclude)
}

// Broadcast queues ev to every peer of the room except exclude and
// returns how many peers accepted it. Peers are sent to outside the lock.
func (r *Rooms) Broadcast(chatID string, ev models.ServerEvent, exclude string) int {
	delivered := 0
	for _, p := range r.Targets(chatID, exclude) {
		if p.Send(ev) {
			delivered++
		}
	}
	return delivered
}

// fanout selects broadcast targets from a room, ordered by connection id.
func fanout(members map[string]Peer, exclude string) []Peer {
	peers := make([]Peer, 0, len(members))
	for id, p := range members {
		if id == exclude {
			continue
		}
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID() < peers[j].ID()
	})
	return peers
}
