// Package notify decides whether an externally observed message should
// raise a user-facing alert, deduplicating by message fingerprint.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/store"
)

// Notifier is the notification-presentation port.
type Notifier interface {
	PermissionGranted() bool
	RequestPermission(ctx context.Context) (bool, error)
	Show(title, body, tag string) error
}

const fingerprintTextLen = 30

// Fingerprint derives the dedup key for a message. Truncation counts
// characters, not bytes, so fingerprints match state written by other
// implementations sharing the store.
func Fingerprint(m models.Message) string {
	text := m.Text
	if runes := []rune(text); len(runes) > fingerprintTextLen {
		text = string(runes[:fingerprintTextLen])
	}
	return m.Timestamp + "|" + m.From + "|" + text
}

// Deduper raises at most one alert per distinct message fingerprint.
// One Deduper serves one session (user + room).
type Deduper struct {
	adapter  store.Adapter
	notifier Notifier
	username string
	room     string
	enabled  func() bool
}

// NewDeduper builds a Deduper for one session. enabled reports the
// session's notification toggle.
func NewDeduper(adapter store.Adapter, notifier Notifier, username, room string, enabled func() bool) *Deduper {
	return &Deduper{
		adapter:  adapter,
		notifier: notifier,
		username: username,
		room:     room,
		enabled:  enabled,
	}
}

// HandleChange inspects the externally observed message document for
// this deduper's room and alerts when its last message is new, from
// someone else, and notifications are permitted.
func (d *Deduper) HandleChange(ctx context.Context, doc map[string][]models.Message) {
	msgs := doc[d.room]
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]

	if last.From == d.username {
		return
	}
	if !d.enabled() || !d.notifier.PermissionGranted() {
		observability.IncNotification("suppressed")
		return
	}

	fp := Fingerprint(last)
	record := d.readRecord(ctx)
	if record[d.room] == fp {
		observability.IncNotification("deduped")
		return
	}

	body := last.Text
	if body == "" && len(last.Attachments) > 0 {
		body = last.Attachments[0].Name
	}
	if err := d.notifier.Show("New message from "+last.From, body, d.room); err != nil {
		log.Printf("notify: alert failed: %v", err)
		return
	}
	observability.IncNotification("shown")

	record[d.room] = fp
	d.writeRecord(ctx, record)
}

func (d *Deduper) readRecord(ctx context.Context) map[string]string {
	record := map[string]string{}
	raw, err := d.adapter.Read(ctx, store.FingerprintKey)
	if err == store.ErrNotFound {
		return record
	}
	if err != nil {
		log.Printf("notify: read fingerprint document: %v", err)
		return record
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return map[string]string{}
	}
	return record
}

func (d *Deduper) writeRecord(ctx context.Context, record map[string]string) {
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := d.adapter.Write(ctx, store.FingerprintKey, raw); err != nil {
		log.Printf("notify: write fingerprint document: %v", err)
	}
}
