package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/attach"
	"chat-engine/internal/env"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/roomstate"
	"chat-engine/internal/store"
)

func newTestEngine(t *testing.T, shared *store.MemoryStore, cfg Config) *Engine {
	t.Helper()
	if shared == nil {
		shared = store.NewMemoryStore()
	}
	cfg.Adapter = shared.Open()
	if cfg.Signals == nil {
		cfg.Signals = env.Static{UA: "test-agent", Connected: true, Battery: 0.8}
	}
	e := NewEngine(cfg)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	return e
}

func join(t *testing.T, e *Engine, room, user string) *Session {
	t.Helper()
	s, err := e.Join(context.Background(), room, user, models.DefaultSettings())
	require.NoError(t, err)
	return s
}

func TestSendProducesOneMessage(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	msg, err := s.Send(ctx, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "alice", msg.From)
	require.Equal(t, "hello", msg.Text)
	require.Equal(t, models.MessageTypeText, msg.Type)
	require.False(t, msg.Pinned)
	require.Equal(t, models.DeviceDesktop, msg.Metadata.Device)
	require.Equal(t, "online", msg.Metadata.Connection)

	msgs, err := s.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, msg.ID, msgs[0].ID)
}

func TestSendWithBlankTextAndNoAttachmentsIsNoOp(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	_, err := s.Send(ctx, "   \t ")
	require.ErrorIs(t, err, ErrNothingToSend)

	msgs, err := s.Messages(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSendWithStagedAttachments(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	<-s.Stager().Stage(attach.Input{
		Name:   "timetable.pdf",
		MIME:   "application/pdf",
		Size:   4,
		Reader: strings.NewReader("pdf!"),
	})

	msg, err := s.Send(ctx, "")
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeFile, msg.Type)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "timetable.pdf", msg.Attachments[0].Name)
	require.Empty(t, s.Stager().Staged(), "send consumes the staged list")
}

func TestConcurrentStagingNeverDropsAttachments(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	// Attachments staged while a send is in flight must end up either
	// on a sent message or still staged, never discarded.
	const files = 40
	var wg sync.WaitGroup
	for i := 0; i < files; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Stager().StageEncoded(models.Attachment{
				Name: fmt.Sprintf("file-%d.txt", i),
				Type: models.AttachmentFile,
			})
			_, err := s.Send(ctx, "update")
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.Messages(ctx)
	require.NoError(t, err)
	delivered := len(s.Stager().Staged())
	for _, m := range msgs {
		delivered += len(m.Attachments)
	}
	require.Equal(t, files, delivered)
}

func TestSendClearsTypingFlag(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	require.NoError(t, s.Typing(ctx))
	names, err := s.Typists(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, names)

	_, err = s.Send(ctx, "done typing")
	require.NoError(t, err)

	names, err = s.Typists(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	first, err := s.Send(ctx, "first")
	require.NoError(t, err)
	second, err := s.Send(ctx, "second")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, first.ID))

	msgs, err := s.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, second.ID, msgs[0].ID)
}

func TestDeleteUnknownMessage(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")

	err := s.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, roomstate.ErrMessageNotFound)
}

func TestSenderOnlyDeletePolicy(t *testing.T) {
	shared := store.NewMemoryStore()
	e := newTestEngine(t, shared, Config{Delete: SenderOnlyDelete})
	alice := join(t, e, "R1", "alice")
	bob := join(t, e, "R1", "bob")
	ctx := context.Background()

	msg, err := alice.Send(ctx, "mine")
	require.NoError(t, err)

	require.ErrorIs(t, bob.Delete(ctx, msg.ID), ErrDeleteForbidden)
	require.NoError(t, alice.Delete(ctx, msg.ID))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	_, err := s.Send(ctx, "say hello world")
	require.NoError(t, err)
	_, err = s.Send(ctx, "unrelated")
	require.NoError(t, err)

	matches, err := s.Search(ctx, "HELLO")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "say hello world", matches[0].Text)

	// Sender names match too.
	matches, err = s.Search(ctx, "ALICE")
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestTogglePinFlipsFlag(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "alice")
	ctx := context.Background()

	msg, err := s.Send(ctx, "pin me")
	require.NoError(t, err)

	require.NoError(t, s.TogglePin(ctx, msg.ID))
	msgs, err := s.Messages(ctx)
	require.NoError(t, err)
	require.True(t, msgs[0].Pinned)

	require.NoError(t, s.TogglePin(ctx, msg.ID))
	msgs, err = s.Messages(ctx)
	require.NoError(t, err)
	require.False(t, msgs[0].Pinned)
}

func TestLeaveRemovesPresence(t *testing.T) {
	e := newTestEngine(t, nil, Config{})
	s := join(t, e, "R1", "carol")
	ctx := context.Background()

	members, err := s.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, s.Leave(ctx))

	members, err = e.presence.Members(ctx, "R1")
	require.NoError(t, err)
	require.Empty(t, members)

	_, err = e.Session(s.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCrossContextNotificationOncePerFingerprint(t *testing.T) {
	shared := store.NewMemoryStore()

	notifier := new(mocks.NotifierMock)
	notifier.On("PermissionGranted").Return(true)
	notifier.On("Show", "New message from bob", "evening shift", "R1").Return(nil).Once()

	receiver := newTestEngine(t, shared, Config{Notifier: notifier})
	join(t, receiver, "R1", "alice")

	sender := newTestEngine(t, shared, Config{})
	bob := join(t, sender, "R1", "bob")

	_, err := bob.Send(context.Background(), "evening shift")
	require.NoError(t, err)

	// Pin toggling rewrites the document with an unchanged last message:
	// same fingerprint, no second alert.
	msgs, err := bob.Messages(context.Background())
	require.NoError(t, err)
	require.NoError(t, bob.TogglePin(context.Background(), msgs[0].ID))

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Show", 1)
}

func TestOwnMessagesNeverAlert(t *testing.T) {
	shared := store.NewMemoryStore()

	notifier := new(mocks.NotifierMock)
	notifier.On("PermissionGranted").Return(true)

	receiver := newTestEngine(t, shared, Config{Notifier: notifier})
	join(t, receiver, "R1", "alice")

	sender := newTestEngine(t, shared, Config{})
	alice := join(t, sender, "R1", "alice")

	_, err := alice.Send(context.Background(), "from my other tab")
	require.NoError(t, err)

	notifier.AssertNotCalled(t, "Show", mock.Anything, mock.Anything, mock.Anything)
}

func TestCrossContextSyncEvent(t *testing.T) {
	shared := store.NewMemoryStore()
	receiver := newTestEngine(t, shared, Config{})
	join(t, receiver, "R1", "alice")

	events, cancel := receiver.Hub().Subscribe("R1")
	defer cancel()

	sender := newTestEngine(t, shared, Config{})
	bob := join(t, sender, "R1", "bob")
	_, err := bob.Send(context.Background(), "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			return ev.Type == models.EventSync
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
