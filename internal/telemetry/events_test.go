package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/mocks"
)

func TestEmitBuildsEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewEmitter(publisher, "chat.events", "chat-engine", "test")

	publisher.On("Publish", mock.Anything, "chat.events", mock.MatchedBy(func(event any) bool {
		env, ok := event.(Envelope)
		if !ok {
			return false
		}
		return env.SchemaVersion == 1 &&
			env.EventType == EventMessageSent &&
			env.Service == "chat-engine" &&
			env.Environment == "test" &&
			env.Room == "general" &&
			env.Username == "alice" &&
			env.MessageID == "m1" &&
			env.OccurredAt != ""
	})).Return(nil).Once()

	emitter.Emit(context.Background(), EventMessageSent, "general", "alice", "m1")
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewEmitter(publisher, "chat.events", "chat-engine", "test")

	publisher.On("Publish", mock.Anything, "chat.events", mock.Anything).Return(assert.AnError).Once()

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventRoomJoined, "general", "alice", "")
	})
	publisher.AssertExpectations(t)
}

func TestEmitNilReceiverAndPublisher(t *testing.T) {
	var emitter *Emitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventRoomLeft, "general", "alice", "")
	})

	emitter = NewEmitter(nil, "chat.events", "chat-engine", "test")
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventRoomLeft, "general", "alice", "")
	})
}
