package ws

import (
	"palaver/internal/metrics"
	"palaver/internal/models"
)

// Hub wires the realtime components together. It is built once by main
// and shared by the websocket server and the admin API.
type Hub struct {
	Registry *Registry
	Rooms    *Rooms
	Bridge   *Bridge
	Presence *Presence
	Relay    *Relay
}

func NewHub(store Store, m *metrics.Metrics) *Hub {
	registry := NewRegistry()
	rooms := NewRooms()
	bridge := NewBridge(rooms, registry, store)
	presence := NewPresence(registry, store)

	return &Hub{
		Registry: registry,
		Rooms:    rooms,
		Bridge:   bridge,
		Presence: presence,
		Relay:    NewRelay(store, registry, rooms, bridge, presence, m),
	}
}

// ChatChanged mirrors a chat created or extended outside the socket layer to live
// connections. It returns how many connections were newly subscribed.
func (h *Hub) ChatChanged(chat models.Chat) int {
	return h.Bridge.SubscribeParticipants(chat)
}

func (h *Hub) Online() []string {
	return h.Registry.Online()
}
