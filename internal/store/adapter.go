// Package store defines the shared document store the chat engine
// persists through, plus its backends. Every write replaces a whole
// document (last writer wins, no merge); subscriptions report changes
// made by other adapter instances only, at least once and with no
// ordering guarantee across keys.
package store

import (
	"context"
	"errors"
)

// Document keys shared by every context on the same store. The shape of
// the stored JSON is a compatibility contract with existing state.
const (
	MessagesKey    = "chat_messages"
	PresenceKey    = "chat_users"
	TypingKey      = "chat_typing"
	FingerprintKey = "chat_last_notified"
)

// ErrNotFound is returned by Read when no document exists under a key.
// Callers treat it as an empty collection, never as a failure.
var ErrNotFound = errors.New("document not found")

// Adapter is the persistence port. One Adapter instance represents one
// execution context; writes through an instance are never delivered
// back to that instance's own subscriptions.
type Adapter interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, doc []byte) error
	// Subscribe registers a handler for external changes to key. The
	// handler receives the document as read after the change signal.
	Subscribe(key string, handler func(doc []byte)) (cancel func(), err error)
	Close() error
}
