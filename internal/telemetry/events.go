package telemetry

import (
	"context"
	"time"
)

// Publisher is satisfied by the rabbitmq package.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Chat event names emitted by the engine.
const (
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventMessageSent    = "message_sent"
	EventMessageDeleted = "message_deleted"
)

// Emitter publishes chat lifecycle events. A nil Emitter or nil
// publisher is a valid no-op.
type Emitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

// Envelope is the wire shape of an emitted chat event.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Room          string `json:"room"`
	Username      string `json:"username"`
	MessageID     string `json:"message_id,omitempty"`
}

func NewEmitter(publisher Publisher, routingKey, service, environment string) *Emitter {
	return &Emitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one chat event. Failures are swallowed; telemetry must
// never affect messaging.
func (e *Emitter) Emit(ctx context.Context, eventType, room, username, messageID string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Room:          room,
		Username:      username,
		MessageID:     messageID,
	}
	_ = e.publisher.Publish(ctx, e.routingKey, envelope)
}
