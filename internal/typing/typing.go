// Package typing maintains the ephemeral "who is typing" set per room.
package typing

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-engine/internal/observability"
	"chat-engine/internal/roomstate"
)

// TTL is how long a typist stays in the set after their last keystroke.
const TTL = 2 * time.Second

// Coordinator debounces per-user typing entries. Each user's timer is
// independent; the persisted set is the union of all hot typists.
type Coordinator struct {
	store *roomstate.Store
	ttl   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer // room + "\x00" + username

	// OnExpire, when set, is invoked after a debounce timer clears an
	// entry, so hosts can fan the change out.
	OnExpire func(room, username string)
}

// NewCoordinator builds a Coordinator with the default TTL.
func NewCoordinator(store *roomstate.Store) *Coordinator {
	return &Coordinator{store: store, ttl: TTL, timers: make(map[string]*time.Timer)}
}

// SetTTL overrides the debounce window, for tests.
func (c *Coordinator) SetTTL(ttl time.Duration) { c.ttl = ttl }

func timerKey(room, username string) string { return room + "\x00" + username }

// MarkTyping idempotently adds username to the room's typing set and
// (re)starts its expiry timer.
func (c *Coordinator) MarkTyping(ctx context.Context, room, username string) error {
	err := c.store.UpdateTypists(ctx, room, func(names []string) ([]string, bool) {
		for _, n := range names {
			if n == username {
				return names, false
			}
		}
		return append(names, username), true
	})
	if err != nil {
		return err
	}
	observability.IncTypingEvent("mark")

	c.mu.Lock()
	defer c.mu.Unlock()
	key := timerKey(room, username)
	if t, ok := c.timers[key]; ok {
		t.Reset(c.ttl)
		return nil
	}
	c.timers[key] = time.AfterFunc(c.ttl, func() {
		if err := c.expire(room, username); err != nil {
			log.Printf("typing: expiry of %s in %s failed: %v", username, room, err)
		}
	})
	return nil
}

// ClearTyping removes username from the set and cancels its timer.
// Called on send and on leaving the room.
func (c *Coordinator) ClearTyping(ctx context.Context, room, username string) error {
	c.mu.Lock()
	key := timerKey(room, username)
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
	c.mu.Unlock()

	observability.IncTypingEvent("clear")
	return c.remove(ctx, room, username)
}

// Stop cancels every pending timer without touching the persisted set.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
}

// Typists returns the room's current typing set.
func (c *Coordinator) Typists(ctx context.Context, room string) ([]string, error) {
	return c.store.Typists(ctx, room)
}

func (c *Coordinator) expire(room, username string) error {
	c.mu.Lock()
	delete(c.timers, timerKey(room, username))
	c.mu.Unlock()

	observability.IncTypingEvent("expire")
	if err := c.remove(context.Background(), room, username); err != nil {
		return err
	}
	if c.OnExpire != nil {
		c.OnExpire(room, username)
	}
	return nil
}

func (c *Coordinator) remove(ctx context.Context, room, username string) error {
	return c.store.UpdateTypists(ctx, room, func(names []string) ([]string, bool) {
		kept := names[:0]
		for _, n := range names {
			if n != username {
				kept = append(kept, n)
			}
		}
		return kept, len(kept) != len(names)
	})
}
