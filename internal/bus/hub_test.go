package bus

import (
	"testing"

	"chat-engine/internal/models"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("R1")
	defer cancel()

	hub.Publish(models.RoomEvent{Type: models.EventMessage, Room: "R1"})

	select {
	case ev := <-ch:
		if ev.Type != models.EventMessage || ev.Room != "R1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("R1")
	defer cancel()

	hub.Publish(models.RoomEvent{Type: models.EventMessage, Room: "R2"})

	select {
	case ev := <-ch:
		t.Fatalf("event for another room leaked: %+v", ev)
	default:
	}
}

func TestHubCancelRemovesRoom(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("R1")
	if len(hub.Rooms()) != 1 {
		t.Fatalf("expected room to be created")
	}

	cancel()
	if len(hub.Rooms()) != 0 {
		t.Fatalf("expected room to be removed")
	}
}
