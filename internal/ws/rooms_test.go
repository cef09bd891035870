package ws

import (
	"slices"
	"testing"

	"palaver/internal/models"
)

func peerIDs(peers []Peer) []string {
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.ID()
	}
	return ids
}

func TestFanout(t *testing.T) {
	members := map[string]Peer{
		"c3": newMockPeer("c3"),
		"c1": newMockPeer("c1"),
		"c2": newMockPeer("c2"),
	}

	tests := []struct {
		name    string
		members map[string]Peer
		exclude string
		want    []string
	}{
		{"Everyone", members, "", []string{"c1", "c2", "c3"}},
		{"Without sender", members, "c2", []string{"c1", "c3"}},
		{"Unknown exclude", members, "c9", []string{"c1", "c2", "c3"}},
		{"Empty room", nil, "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := peerIDs(fanout(tt.members, tt.exclude)); !slices.Equal(got, tt.want) {
				t.Errorf("fanout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRooms_SubscribeIdempotent(t *testing.T) {
	r := NewRooms()
	p := newMockPeer("c1")

	if !r.Subscribe("chat1", p) {
		t.Error("first subscribe reported existing membership")
	}
	if r.Subscribe("chat1", p) {
		t.Error("second subscribe reported a new membership")
	}
	if got := r.Broadcast("chat1", models.ServerEvent{Event: "x"}, ""); got != 1 {
		t.Errorf("expected one delivery, got %d", got)
	}
}

func TestRooms_Lifecycle(t *testing.T) {
	r := NewRooms()
	p1 := newMockPeer("c1")
	p2 := newMockPeer("c2")

	r.Subscribe("chat1", p1)
	r.Subscribe("chat2", p1)
	r.Subscribe("chat1", p2)

	if !r.Subscribed("chat1", "c2") {
		t.Error("c2 not subscribed to chat1")
	}
	if !r.Subscribed("chat2", "c1") || r.Subscribed("chat2", "c2") {
		t.Error("chat2 membership wrong")
	}

	// Leaving a room never joined is a no-op.
	if r.Unsubscribe("chat2", "c2") {
		t.Error("unsubscribe from a room never joined reported success")
	}

	n := r.Broadcast("chat1", models.ServerEvent{Event: "ping"}, "c1")
	if n != 1 || len(p1.take()) != 0 || len(p2.take()) != 1 {
		t.Errorf("broadcast excluding c1 reached the wrong peers (n=%d)", n)
	}

	left := r.UnsubscribeAll("c1")
	if !slices.Equal(left, []string{"chat1", "chat2"}) {
		t.Errorf("UnsubscribeAll = %v", left)
	}
	if r.Subscribed("chat1", "c1") || r.Subscribed("chat2", "c1") {
		t.Error("c1 still subscribed after UnsubscribeAll")
	}
	if len(r.Targets("chat2", "")) != 0 {
		t.Error("empty room still has targets")
	}
	if len(r.UnsubscribeAll("c1")) != 0 {
		t.Error("second UnsubscribeAll returned rooms")
	}
}

func TestRooms_BroadcastCountsAccepted(t *testing.T) {
	r := NewRooms()
	ok := newMockPeer("c1")
	full := newMockPeer("c2")
	full.full = true

	r.Subscribe("chat1", ok)
	r.Subscribe("chat1", full)

	if got := r.Broadcast("chat1", models.ServerEvent{Event: "x"}, ""); got != 1 {
		t.Errorf("expected 1 accepted delivery, got %d", got)
	}
}
