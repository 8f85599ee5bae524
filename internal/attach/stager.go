// Package attach stages selected files as inline-encoded attachments
// until a send consumes them. Staged items live only in this session's
// memory; they are never partially persisted.
package attach

import (
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"chat-engine/internal/models"
)

// MaxFileSize is the per-file staging cap.
const MaxFileSize int64 = 50 << 20

// Input is one selected file: declared name, MIME type, size and content.
type Input struct {
	Name   string
	MIME   string
	Size   int64
	Reader io.Reader
}

// Stager holds the volatile staged-attachment list for one session.
type Stager struct {
	mu    sync.Mutex
	items []models.Attachment
	now   func() time.Time

	// warn reports per-file rejections; a rejected file is skipped,
	// the rest proceed.
	warn func(name string, reason string)
}

// NewStager builds an empty stager. warn may be nil.
func NewStager(warn func(name, reason string)) *Stager {
	if warn == nil {
		warn = func(name, reason string) {
			log.Printf("attach: %s skipped: %s", name, reason)
		}
	}
	return &Stager{now: time.Now, warn: warn}
}

// SetClock overrides the time source, for tests.
func (s *Stager) SetClock(now func() time.Time) { s.now = now }

// Stage converts each accepted file to an inline attachment. Files over
// the size cap are rejected with a warning. Conversions run
// independently; staged order is their arrival order, not selection
// order. The returned channel closes when every conversion finished.
func (s *Stager) Stage(files ...Input) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, f := range files {
		if f.Size > MaxFileSize {
			s.warn(f.Name, fmt.Sprintf("file exceeds %d MB limit", MaxFileSize>>20))
			continue
		}
		wg.Add(1)
		go func(f Input) {
			defer wg.Done()
			s.convert(f)
		}(f)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *Stager) convert(f Input) {
	content, err := io.ReadAll(f.Reader)
	if err != nil {
		s.warn(f.Name, fmt.Sprintf("read failed: %v", err))
		return
	}
	att := models.Attachment{
		Name:       f.Name,
		Data:       DataURL(f.MIME, content),
		Type:       Classify(f.MIME),
		Size:       f.Size,
		UploadedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	s.StageEncoded(att)
}

// StageEncoded appends an already-encoded attachment, such as a
// finalized voice note.
func (s *Stager) StageEncoded(att models.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, att)
}

// Unstage removes one staged item by position.
func (s *Stager) Unstage(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
}

// ClearAll empties the staged list.
func (s *Stager) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Staged returns a snapshot of the staged list.
func (s *Stager) Staged() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Attachment(nil), s.items...)
}

// Take returns the staged list and empties it, for send to consume.
// Items staged after Take returns are untouched.
func (s *Stager) Take() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items
}

// Restage puts taken items back at the front of the list in their
// original order, ahead of anything staged meanwhile. Used when a send
// that consumed them fails.
func (s *Stager) Restage(items ...models.Attachment) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(append([]models.Attachment{}, items...), s.items...)
}

// DataURL encodes content as an inline data URL.
func DataURL(mime string, content []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}

// Classify maps a declared MIME type to an attachment kind.
func Classify(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return models.AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.AttachmentAudio
	default:
		return models.AttachmentFile
	}
}
