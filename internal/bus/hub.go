// Package bus fans room events out to in-process subscribers. Delivery
// is best-effort: a subscriber that falls behind loses events rather
// than blocking publishers, matching the at-least-once, unordered
// semantics of the cross-context change signal it mirrors.
package bus

import (
	"sync"

	"chat-engine/internal/models"
)

const subscriberBuffer = 32

// Hub maintains active room subscriptions.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[int]chan models.RoomEvent
	next  int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[int]chan models.RoomEvent)}
}

// Subscribe registers a listener for one room's events.
func (h *Hub) Subscribe(room string) (<-chan models.RoomEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[int]chan models.RoomEvent)
	}
	id := h.next
	h.next++
	ch := make(chan models.RoomEvent, subscriberBuffer)
	h.rooms[room][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.rooms[room]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// Publish delivers an event to every subscriber of its room.
func (h *Hub) Publish(event models.RoomEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.rooms[event.Room] {
		select {
		case ch <- event:
		default: // slow subscriber, drop
		}
	}
}

// Rooms lists rooms that currently have subscribers.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
