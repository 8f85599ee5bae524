package notify

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

func enabled() bool  { return true }
func disabled() bool { return false }

func docWith(room string, msgs ...models.Message) map[string][]models.Message {
	return map[string][]models.Message{room: msgs}
}

func message(from, text string) models.Message {
	return models.Message{
		ID:        "m-" + from,
		From:      from,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      models.MessageTypeText,
	}
}

func TestAlertsOnceForNewMessage(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	notifier.On("PermissionGranted").Return(true)
	notifier.On("Show", "New message from bob", "hi there", "R1").Return(nil).Once()

	doc := docWith("R1", message("bob", "hi there"))
	d.HandleChange(context.Background(), doc)
	// Same fingerprint observed again: no second alert.
	d.HandleChange(context.Background(), doc)

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Show", 1)
}

func TestNeverAlertsForOwnMessages(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	d.HandleChange(context.Background(), docWith("R1", message("alice", "talking to myself")))

	notifier.AssertNotCalled(t, "Show", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuppressedWhenToggleOff(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", disabled)

	d.HandleChange(context.Background(), docWith("R1", message("bob", "hi")))

	notifier.AssertNotCalled(t, "Show", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuppressedWithoutPermission(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	notifier.On("PermissionGranted").Return(false)

	d.HandleChange(context.Background(), docWith("R1", message("bob", "hi")))

	notifier.AssertNotCalled(t, "Show", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewFingerprintAlertsAgain(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	notifier.On("PermissionGranted").Return(true)
	notifier.On("Show", mock.Anything, mock.Anything, "R1").Return(nil).Twice()

	d.HandleChange(context.Background(), docWith("R1", message("bob", "first")))
	d.HandleChange(context.Background(), docWith("R1", message("bob", "first"), message("bob", "second")))

	notifier.AssertExpectations(t)
}

func TestAttachmentOnlyMessageUsesAttachmentName(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	msg := message("bob", "")
	msg.Attachments = []models.Attachment{{Name: "schedule.pdf", Type: models.AttachmentFile}}

	notifier.On("PermissionGranted").Return(true)
	notifier.On("Show", "New message from bob", "schedule.pdf", "R1").Return(nil).Once()

	d.HandleChange(context.Background(), docWith("R1", msg))

	notifier.AssertExpectations(t)
}

func TestFingerprintTruncatesText(t *testing.T) {
	long := message("bob", "0123456789012345678901234567890123456789")
	fp := Fingerprint(long)
	require.Equal(t, long.Timestamp+"|bob|012345678901234567890123456789", fp)
}

func TestFingerprintTruncatesByCharacterNotByte(t *testing.T) {
	// 40 two-byte runes; a byte cut at 30 would split the 16th rune.
	text := strings.Repeat("é", 40)
	fp := Fingerprint(message("bob", text))
	require.True(t, strings.HasSuffix(fp, "|"+strings.Repeat("é", 30)))
	require.True(t, utf8.ValidString(fp))
}

func TestEmptyRoomDocumentIsIgnored(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	d := NewDeduper(store.NewMemoryStore().Open(), notifier, "alice", "R1", enabled)

	d.HandleChange(context.Background(), map[string][]models.Message{})

	notifier.AssertNotCalled(t, "Show", mock.Anything, mock.Anything, mock.Anything)
}
