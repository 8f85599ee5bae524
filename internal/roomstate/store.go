// Package roomstate owns the per-room documents (messages, presence,
// typing) and reconciles local mutations with changes observed from
// other contexts sharing the same store.
package roomstate

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/store"
)

// Retention deadlines and the eviction cadence.
const (
	Retention       = time.Hour
	PinnedRetention = 24 * time.Hour
	EvictInterval   = 30 * time.Second
)

var ErrMessageNotFound = errors.New("message not found")

// Store performs read-modify-write cycles on whole per-room documents.
// Writes are not atomic across contexts: two contexts appending to the
// same room inside the propagation window overwrite each other, an
// accepted limitation of the storage medium.
type Store struct {
	adapter store.Adapter
	now     func() time.Time

	mu sync.Mutex

	// lmu guards listener registration and subscription cancels; it is
	// never held while writing documents, so change handlers running on
	// another context's goroutine cannot deadlock against mu.
	lmu               sync.Mutex
	msgListeners      []func(doc map[string][]models.Message)
	presenceListeners []func(doc map[string][]models.UserProfile)
	typingListeners   []func(doc map[string][]string)
	cancels           []func()
	stop              chan struct{}
	stopOnce          sync.Once
}

// NewStore builds a Store over an adapter.
func NewStore(adapter store.Adapter) *Store {
	return &Store{adapter: adapter, now: time.Now, stop: make(chan struct{})}
}

// SetClock overrides the time source, for retention tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// OnMessagesChanged registers a listener for externally observed
// message-document changes. Register before Start.
func (s *Store) OnMessagesChanged(fn func(doc map[string][]models.Message)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.msgListeners = append(s.msgListeners, fn)
}

// OnPresenceChanged registers a listener for external presence changes.
func (s *Store) OnPresenceChanged(fn func(doc map[string][]models.UserProfile)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.presenceListeners = append(s.presenceListeners, fn)
}

// OnTypingChanged registers a listener for external typing changes.
func (s *Store) OnTypingChanged(fn func(doc map[string][]string)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.typingListeners = append(s.typingListeners, fn)
}

// Start runs the load-time eviction pass, wires the external change
// subscriptions and starts the periodic eviction ticker. The ticker
// stops when ctx is cancelled or Stop is called.
func (s *Store) Start(ctx context.Context) error {
	if _, err := s.EvictExpired(ctx, s.now()); err != nil {
		return err
	}

	cancelMsgs, err := s.adapter.Subscribe(store.MessagesKey, func(doc []byte) {
		parsed := decodeMessagesDoc(doc)
		for _, fn := range s.snapshotMsgListeners() {
			fn(parsed)
		}
	})
	if err != nil {
		return err
	}
	cancelPresence, err := s.adapter.Subscribe(store.PresenceKey, func(doc []byte) {
		parsed := decodePresenceDoc(doc)
		for _, fn := range s.snapshotPresenceListeners() {
			fn(parsed)
		}
	})
	if err != nil {
		cancelMsgs()
		return err
	}
	cancelTyping, err := s.adapter.Subscribe(store.TypingKey, func(doc []byte) {
		parsed := decodeTypingDoc(doc)
		for _, fn := range s.snapshotTypingListeners() {
			fn(parsed)
		}
	})
	if err != nil {
		cancelMsgs()
		cancelPresence()
		return err
	}

	s.lmu.Lock()
	s.cancels = append(s.cancels, cancelMsgs, cancelPresence, cancelTyping)
	s.lmu.Unlock()

	go func() {
		ticker := time.NewTicker(EvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.EvictExpired(ctx, s.now()); err != nil {
					log.Printf("roomstate: eviction pass failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// Stop cancels the subscriptions and the eviction ticker.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.lmu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.lmu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *Store) snapshotMsgListeners() []func(map[string][]models.Message) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	out := make([]func(map[string][]models.Message), len(s.msgListeners))
	copy(out, s.msgListeners)
	return out
}

func (s *Store) snapshotPresenceListeners() []func(map[string][]models.UserProfile) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	out := make([]func(map[string][]models.UserProfile), len(s.presenceListeners))
	copy(out, s.presenceListeners)
	return out
}

func (s *Store) snapshotTypingListeners() []func(map[string][]string) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	out := make([]func(map[string][]string), len(s.typingListeners))
	copy(out, s.typingListeners)
	return out
}

// Messages returns a room's messages in send order.
func (s *Store) Messages(ctx context.Context, room string) ([]models.Message, error) {
	doc, err := s.readMessagesDoc(ctx)
	if err != nil {
		return nil, err
	}
	return doc[room], nil
}

// AppendMessage appends one message to a room. The whole document is
// rewritten, which also applies retention to every room.
func (s *Store) AppendMessage(ctx context.Context, room string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readMessagesDoc(ctx)
	if err != nil {
		return err
	}
	doc[room] = append(doc[room], msg)
	evictDoc(doc, s.now())
	return s.writeMessagesDoc(ctx, doc)
}

// RemoveMessage permanently removes one message by id.
func (s *Store) RemoveMessage(ctx context.Context, room, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readMessagesDoc(ctx)
	if err != nil {
		return err
	}
	msgs := doc[room]
	found := false
	kept := msgs[:0]
	for _, m := range msgs {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return ErrMessageNotFound
	}
	if len(kept) == 0 {
		delete(doc, room)
	} else {
		doc[room] = kept
	}
	evictDoc(doc, s.now())
	return s.writeMessagesDoc(ctx, doc)
}

// UpdateMessage applies patch to one message by id and rewrites the
// document. Used for pin toggling.
func (s *Store) UpdateMessage(ctx context.Context, room, id string, patch func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readMessagesDoc(ctx)
	if err != nil {
		return err
	}
	found := false
	msgs := doc[room]
	for i := range msgs {
		if msgs[i].ID == id {
			patch(&msgs[i])
			found = true
			break
		}
	}
	if !found {
		return ErrMessageNotFound
	}
	doc[room] = msgs
	evictDoc(doc, s.now())
	return s.writeMessagesDoc(ctx, doc)
}

// EvictExpired removes every message past its retention deadline across
// all rooms and reports how many were removed. Eviction is destructive;
// there is no archive.
func (s *Store) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readMessagesDoc(ctx)
	if err != nil {
		return 0, err
	}
	evicted := evictDoc(doc, now)
	if evicted == 0 {
		return 0, nil
	}
	if err := s.writeMessagesDoc(ctx, doc); err != nil {
		return 0, err
	}
	observability.AddMessagesEvicted(evicted)
	return evicted, nil
}

// evictDoc retains a message iff it is younger than its deadline:
// 24h when pinned, 1h otherwise. Empty rooms are dropped from the doc.
func evictDoc(doc map[string][]models.Message, now time.Time) int {
	evicted := 0
	for room, msgs := range doc {
		kept := msgs[:0]
		for _, m := range msgs {
			deadline := Retention
			if m.Pinned {
				deadline = PinnedRetention
			}
			if now.Sub(m.SentAt()) < deadline {
				kept = append(kept, m)
			} else {
				evicted++
			}
		}
		if len(kept) == 0 {
			delete(doc, room)
		} else {
			doc[room] = kept
		}
	}
	return evicted
}

// Profiles returns a room's presence entries.
func (s *Store) Profiles(ctx context.Context, room string) ([]models.UserProfile, error) {
	doc, err := s.readPresenceDoc(ctx)
	if err != nil {
		return nil, err
	}
	return doc[room], nil
}

// UpdateProfiles applies mutate to a room's presence entries and
// persists the result, all under the document lock, so concurrent
// mutations in this process never overwrite each other. An empty
// result deletes the room's entry rather than keeping an empty
// collection; changed=false skips the write.
func (s *Store) UpdateProfiles(ctx context.Context, room string, mutate func([]models.UserProfile) ([]models.UserProfile, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readPresenceDoc(ctx)
	if err != nil {
		return err
	}
	updated, changed := mutate(doc[room])
	if !changed {
		return nil
	}
	if len(updated) == 0 {
		delete(doc, room)
	} else {
		doc[room] = updated
	}
	observability.IncStoreOp(store.PresenceKey, "write")
	return s.writeDoc(ctx, store.PresenceKey, doc)
}

// Typists returns the usernames currently typing in a room.
func (s *Store) Typists(ctx context.Context, room string) ([]string, error) {
	doc, err := s.readTypingDoc(ctx)
	if err != nil {
		return nil, err
	}
	return doc[room], nil
}

// UpdateTypists is the locked read-modify-write mutator for a room's
// typing set, with the same empty-deletes-entry and changed=false
// semantics as UpdateProfiles.
func (s *Store) UpdateTypists(ctx context.Context, room string, mutate func([]string) ([]string, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readTypingDoc(ctx)
	if err != nil {
		return err
	}
	updated, changed := mutate(doc[room])
	if !changed {
		return nil
	}
	if len(updated) == 0 {
		delete(doc, room)
	} else {
		doc[room] = updated
	}
	observability.IncStoreOp(store.TypingKey, "write")
	return s.writeDoc(ctx, store.TypingKey, doc)
}

func (s *Store) readMessagesDoc(ctx context.Context) (map[string][]models.Message, error) {
	observability.IncStoreOp(store.MessagesKey, "read")
	raw, err := s.adapter.Read(ctx, store.MessagesKey)
	if err == store.ErrNotFound {
		return map[string][]models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMessagesDoc(raw), nil
}

func (s *Store) writeMessagesDoc(ctx context.Context, doc map[string][]models.Message) error {
	observability.IncStoreOp(store.MessagesKey, "write")
	return s.writeDoc(ctx, store.MessagesKey, doc)
}

func (s *Store) readPresenceDoc(ctx context.Context) (map[string][]models.UserProfile, error) {
	observability.IncStoreOp(store.PresenceKey, "read")
	raw, err := s.adapter.Read(ctx, store.PresenceKey)
	if err == store.ErrNotFound {
		return map[string][]models.UserProfile{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePresenceDoc(raw), nil
}

func (s *Store) readTypingDoc(ctx context.Context) (map[string][]string, error) {
	observability.IncStoreOp(store.TypingKey, "read")
	raw, err := s.adapter.Read(ctx, store.TypingKey)
	if err == store.ErrNotFound {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTypingDoc(raw), nil
}

func (s *Store) writeDoc(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.adapter.Write(ctx, key, raw)
}

// Malformed stored documents read as empty, never as a fault.
func decodeMessagesDoc(raw []byte) map[string][]models.Message {
	doc := map[string][]models.Message{}
	if len(raw) == 0 {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Printf("roomstate: malformed messages document, treating as empty: %v", err)
		return map[string][]models.Message{}
	}
	return doc
}

func decodePresenceDoc(raw []byte) map[string][]models.UserProfile {
	doc := map[string][]models.UserProfile{}
	if len(raw) == 0 {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Printf("roomstate: malformed presence document, treating as empty: %v", err)
		return map[string][]models.UserProfile{}
	}
	return doc
}

func decodeTypingDoc(raw []byte) map[string][]string {
	doc := map[string][]string{}
	if len(raw) == 0 {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Printf("roomstate: malformed typing document, treating as empty: %v", err)
		return map[string][]string{}
	}
	return doc
}
