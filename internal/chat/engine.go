// Package chat composes the room chat engine: sessions, message
// lifecycle, presence, typing, notifications and eviction over a shared
// document store.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-engine/internal/attach"
	"chat-engine/internal/bus"
	"chat-engine/internal/env"
	"chat-engine/internal/models"
	"chat-engine/internal/notify"
	"chat-engine/internal/presence"
	"chat-engine/internal/roomstate"
	"chat-engine/internal/store"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/typing"
	"chat-engine/internal/voice"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDeleteForbidden = errors.New("only the sender may delete this message")
)

// DeletePolicy authorizes a delete request. The default allows any
// caller holding a valid message id.
type DeletePolicy func(requester string, msg models.Message) error

// AllowAnyDelete performs no ownership check.
func AllowAnyDelete(string, models.Message) error { return nil }

// SenderOnlyDelete restricts deletion to the message's sender.
func SenderOnlyDelete(requester string, msg models.Message) error {
	if msg.From != requester {
		return ErrDeleteForbidden
	}
	return nil
}

// Config wires an Engine's collaborators.
type Config struct {
	Adapter  store.Adapter
	Notifier notify.Notifier
	Signals  env.Signals
	Recorder voice.Recorder
	Emitter  *telemetry.Emitter
	Delete   DeletePolicy
	Presence presence.Config
}

// Engine owns one process's view of the shared chat state and the
// sessions opened in it.
type Engine struct {
	adapter  store.Adapter
	rooms    *roomstate.Store
	presence *presence.Manager
	typing   *typing.Coordinator
	hub      *bus.Hub
	notifier notify.Notifier
	signals  env.Signals
	recorder voice.Recorder
	emitter  *telemetry.Emitter
	delete   DeletePolicy
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine builds an Engine over cfg.Adapter. Nil optional
// collaborators degrade their feature rather than failing.
func NewEngine(cfg Config) *Engine {
	if cfg.Signals == nil {
		cfg.Signals = env.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = deniedNotifier{}
	}
	if cfg.Delete == nil {
		cfg.Delete = AllowAnyDelete
	}

	rooms := roomstate.NewStore(cfg.Adapter)
	e := &Engine{
		adapter:  cfg.Adapter,
		rooms:    rooms,
		presence: presence.NewManager(rooms, cfg.Signals, cfg.Presence),
		typing:   typing.NewCoordinator(rooms),
		hub:      bus.NewHub(),
		notifier: cfg.Notifier,
		signals:  cfg.Signals,
		recorder: cfg.Recorder,
		emitter:  cfg.Emitter,
		delete:   cfg.Delete,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}

	e.typing.OnExpire = func(room, _ string) {
		e.publishTyping(context.Background(), room)
	}
	return e
}

// SetClock overrides the time source for the engine and its room store.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.rooms.SetClock(now)
	e.presence.SetClock(now)
}

// Hub exposes the room event bus for host subscribers.
func (e *Engine) Hub() *bus.Hub { return e.hub }

// Rooms exposes the underlying room state store.
func (e *Engine) Rooms() *roomstate.Store { return e.rooms }

// Start wires external-change fanout and begins the eviction cycle.
func (e *Engine) Start(ctx context.Context) error {
	e.rooms.OnMessagesChanged(func(doc map[string][]models.Message) {
		for _, s := range e.snapshotSessions() {
			s.deduper.HandleChange(context.Background(), doc)
		}
		for _, room := range e.hub.Rooms() {
			e.hub.Publish(models.RoomEvent{Type: models.EventSync, Room: room})
		}
	})
	e.rooms.OnPresenceChanged(func(doc map[string][]models.UserProfile) {
		for _, room := range e.hub.Rooms() {
			e.hub.Publish(models.RoomEvent{Type: models.EventPresence, Room: room, Users: doc[room]})
		}
	})
	e.rooms.OnTypingChanged(func(doc map[string][]string) {
		for _, room := range e.hub.Rooms() {
			e.hub.Publish(models.RoomEvent{Type: models.EventTyping, Room: room, Typing: doc[room]})
		}
	})
	return e.rooms.Start(ctx)
}

// Close stops timers and subscriptions. Open sessions become inert.
func (e *Engine) Close() {
	e.typing.Stop()
	e.rooms.Stop()
}

// Join opens a session for username in room and marks them present.
func (e *Engine) Join(ctx context.Context, room, username string, settings models.Settings) (*Session, error) {
	profile, err := e.presence.Join(ctx, room, username)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		engine:   e,
		username: username,
		room:     room,
		profile:  profile,
		settings: settings,
	}
	s.stager = attach.NewStager(nil)
	if e.recorder != nil {
		s.voice = voice.NewController(e.recorder, s.stager)
	}
	s.deduper = notify.NewDeduper(e.adapter, e.notifier, username, room, func() bool {
		return s.Settings().Notifications
	})

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.emitter.Emit(ctx, telemetry.EventRoomJoined, room, username, "")
	e.publishPresence(ctx, room)
	return s, nil
}

// Session looks up an open session by id.
func (e *Engine) Session(id string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (e *Engine) snapshotSessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

func (e *Engine) drop(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

func (e *Engine) publishPresence(ctx context.Context, room string) {
	members, err := e.presence.Members(ctx, room)
	if err != nil {
		return
	}
	e.hub.Publish(models.RoomEvent{Type: models.EventPresence, Room: room, Users: members})
}

func (e *Engine) publishTyping(ctx context.Context, room string) {
	names, err := e.typing.Typists(ctx, room)
	if err != nil {
		return
	}
	e.hub.Publish(models.RoomEvent{Type: models.EventTyping, Room: room, Typing: names})
}

// deniedNotifier stands in when no notification service is wired;
// alerts are suppressed as if permission was never granted.
type deniedNotifier struct{}

func (deniedNotifier) PermissionGranted() bool { return false }

func (deniedNotifier) RequestPermission(context.Context) (bool, error) {
	return false, nil
}

func (deniedNotifier) Show(string, string, string) error { return nil }
