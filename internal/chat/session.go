package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-engine/internal/attach"
	"chat-engine/internal/models"
	"chat-engine/internal/notify"
	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
	"chat-engine/internal/roomstate"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/voice"
)

// ErrNothingToSend is returned by Send when both the text is blank and
// no attachments are staged. The room state is left untouched.
var ErrNothingToSend = errors.New("nothing to send")

// ErrRecordingUnavailable is returned when no capture device is wired.
var ErrRecordingUnavailable = errors.New("voice recording is not available")

// Session is one tab's presence in one room: the current user plus the
// volatile per-tab state (staged attachments, recorder, settings).
// Exactly one user and room per session, for the session's lifetime.
type Session struct {
	id       string
	engine   *Engine
	username string
	room     string
	profile  models.UserProfile
	stager   *attach.Stager
	voice    *voice.Controller
	deduper  *notify.Deduper

	mu       sync.Mutex
	settings models.Settings
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Username returns the session's user.
func (s *Session) Username() string { return s.username }

// Room returns the session's room code.
func (s *Session) Room() string { return s.room }

// Profile returns the presence profile created at join.
func (s *Session) Profile() models.UserProfile { return s.profile }

// Settings returns the current session settings.
func (s *Session) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the session settings.
func (s *Session) UpdateSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Stager exposes the session's attachment staging list.
func (s *Session) Stager() *attach.Stager { return s.stager }

// Voice exposes the capture controller, or an error when no capture
// device is available to this host.
func (s *Session) Voice() (*voice.Controller, error) {
	if s.voice == nil {
		return nil, ErrRecordingUnavailable
	}
	return s.voice, nil
}

// Send appends a message built from text and the staged attachments.
// Blank text with nothing staged is a no-op. On success the staged
// list and the sender's typing flag are cleared.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	// Take, don't snapshot-and-clear: attachments staged while the send
	// is in flight must survive for the next send.
	staged := s.stager.Take()
	if strings.TrimSpace(text) == "" && len(staged) == 0 {
		return models.Message{}, ErrNothingToSend
	}

	e := s.engine
	now := e.now()
	msgType := models.MessageTypeText
	if len(staged) > 0 {
		msgType = models.MessageTypeFile
	}
	connection := "online"
	if !e.signals.Online() {
		connection = "offline"
	}

	msg := models.Message{
		ID:          uuid.NewString(),
		From:        s.username,
		Text:        text,
		Time:        now.Format("15:04"),
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Attachments: staged,
		Type:        msgType,
		Metadata: models.Metadata{
			Device:     presence.DetectDevice(e.signals.UserAgent()),
			Connection: connection,
			Battery:    e.signals.BatteryLevel(),
		},
	}

	if err := e.rooms.AppendMessage(ctx, s.room, msg); err != nil {
		s.stager.Restage(staged...)
		return models.Message{}, err
	}

	// The message is already durable; a typing flag that fails to clear
	// here expires on its own.
	_ = e.typing.ClearTyping(ctx, s.room, s.username)
	e.publishTyping(ctx, s.room)

	observability.IncMessageSent(msgType)
	e.emitter.Emit(ctx, telemetry.EventMessageSent, s.room, s.username, msg.ID)
	e.hub.Publish(models.RoomEvent{Type: models.EventMessage, Room: s.room, Message: &msg})
	return msg, nil
}

// Delete permanently removes a message, subject to the engine's delete
// policy. There is no soft-delete and no archive.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	e := s.engine
	msgs, err := e.rooms.Messages(ctx, s.room)
	if err != nil {
		return err
	}
	var target *models.Message
	for i := range msgs {
		if msgs[i].ID == messageID {
			target = &msgs[i]
			break
		}
	}
	if target == nil {
		return roomstate.ErrMessageNotFound
	}
	if err := e.delete(s.username, *target); err != nil {
		return err
	}
	if err := e.rooms.RemoveMessage(ctx, s.room, messageID); err != nil {
		return err
	}

	e.emitter.Emit(ctx, telemetry.EventMessageDeleted, s.room, s.username, messageID)
	e.hub.Publish(models.RoomEvent{Type: models.EventDeleted, Room: s.room, MessageID: messageID})
	return nil
}

// TogglePin flips a message's pinned flag, moving its eviction deadline
// between 1h and 24h as of the next pass.
func (s *Session) TogglePin(ctx context.Context, messageID string) error {
	e := s.engine
	err := e.rooms.UpdateMessage(ctx, s.room, messageID, func(m *models.Message) {
		m.Pinned = !m.Pinned
	})
	if err != nil {
		return err
	}
	e.hub.Publish(models.RoomEvent{Type: models.EventPinned, Room: s.room, MessageID: messageID})
	return nil
}

// Search filters the room's messages by a case-insensitive substring
// match on text or sender. Pure read, no persistence effect.
func (s *Session) Search(ctx context.Context, query string) ([]models.Message, error) {
	msgs, err := s.engine.rooms.Messages(ctx, s.room)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	matched := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Text), q) || strings.Contains(strings.ToLower(m.From), q) {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// Messages returns the room's messages in send order.
func (s *Session) Messages(ctx context.Context) ([]models.Message, error) {
	return s.engine.rooms.Messages(ctx, s.room)
}

// Members returns the room's presence set.
func (s *Session) Members(ctx context.Context) ([]models.UserProfile, error) {
	return s.engine.presence.Members(ctx, s.room)
}

// Typing marks this user as composing; the flag self-expires after the
// debounce window unless renewed.
func (s *Session) Typing(ctx context.Context) error {
	if err := s.engine.typing.MarkTyping(ctx, s.room, s.username); err != nil {
		return err
	}
	s.engine.publishTyping(ctx, s.room)
	return nil
}

// StopTyping clears this user's composing flag immediately.
func (s *Session) StopTyping(ctx context.Context) error {
	if err := s.engine.typing.ClearTyping(ctx, s.room, s.username); err != nil {
		return err
	}
	s.engine.publishTyping(ctx, s.room)
	return nil
}

// Typists returns who is composing in the room right now.
func (s *Session) Typists(ctx context.Context) ([]string, error) {
	return s.engine.typing.Typists(ctx, s.room)
}

// Heartbeat bumps this user's lastActive presence field.
func (s *Session) Heartbeat(ctx context.Context) error {
	return s.engine.presence.Heartbeat(ctx, s.room, s.username)
}

// Leave removes the user from the room, clears their typing flag and
// closes the session. The session must not be used afterwards.
func (s *Session) Leave(ctx context.Context) error {
	e := s.engine
	_ = e.typing.ClearTyping(ctx, s.room, s.username)
	if err := e.presence.Leave(ctx, s.room, s.username); err != nil {
		return err
	}
	s.stager.ClearAll()
	e.drop(s.id)
	e.emitter.Emit(ctx, telemetry.EventRoomLeft, s.room, s.username, "")
	e.publishPresence(ctx, s.room)
	return nil
}
