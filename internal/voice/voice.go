// Package voice drives an audio-capture session and turns it into a
// staged voice-note attachment.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-engine/internal/attach"
	"chat-engine/internal/models"
)

var (
	// ErrCaptureDenied wraps a refused or absent capture capability.
	// Recording degrades to unavailable; messaging is unaffected.
	ErrCaptureDenied = errors.New("audio capture unavailable")
	// ErrAlreadyRecording is returned when a session is active.
	ErrAlreadyRecording = errors.New("a capture session is already active")
	// ErrNotRecording is returned by Stop in the idle state.
	ErrNotRecording = errors.New("no capture session is active")
)

// Constraints are requested from the capture device.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
}

// Session is one granted hardware capture session.
type Session interface {
	// Chunks delivers encoded audio until the session is released.
	Chunks() <-chan []byte
	// MIME reports the encoding of the chunks.
	MIME() string
	Release() error
}

// Recorder is the device audio-capture port.
type Recorder interface {
	Acquire(ctx context.Context, c Constraints) (Session, error)
}

// Controller runs at most one capture session per tab:
// idle -> recording -> idle.
type Controller struct {
	recorder Recorder
	stager   *attach.Stager
	now      func() time.Time

	mu        sync.Mutex
	session   Session
	buf       bytes.Buffer
	duration  int
	done      chan struct{}
	collected sync.WaitGroup
}

// NewController builds an idle controller that stages finished
// recordings through stager.
func NewController(recorder Recorder, stager *attach.Stager) *Controller {
	return &Controller{recorder: recorder, stager: stager, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Start acquires a capture session with echo cancellation and noise
// suppression requested, then begins buffering chunks and counting
// duration once per second. A denied capability leaves the controller
// idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrAlreadyRecording
	}

	session, err := c.recorder.Acquire(ctx, Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	}

	c.session = session
	c.buf.Reset()
	c.duration = 0
	c.done = make(chan struct{})

	c.collected.Add(1)
	go func() {
		defer c.collected.Done()
		for chunk := range session.Chunks() {
			c.mu.Lock()
			c.buf.Write(chunk)
			c.mu.Unlock()
		}
	}()

	go func(done chan struct{}) {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				c.duration++
				c.mu.Unlock()
			}
		}
	}(c.done)

	return nil
}

// Stop finalizes the buffered chunks into one staged audio attachment
// with the measured duration, releases the hardware and returns to
// idle.
func (c *Controller) Stop() (models.Attachment, error) {
	c.mu.Lock()
	session := c.session
	if session == nil {
		c.mu.Unlock()
		return models.Attachment{}, ErrNotRecording
	}
	c.session = nil
	close(c.done)
	c.mu.Unlock()

	err := session.Release()
	// Releasing closes the chunk channel; wait for the tail chunks.
	c.collected.Wait()

	c.mu.Lock()
	content := append([]byte(nil), c.buf.Bytes()...)
	duration := c.duration
	c.buf.Reset()
	c.duration = 0
	c.mu.Unlock()

	att := models.Attachment{
		Name:       fmt.Sprintf("voice-note-%d.webm", c.now().Unix()),
		Data:       attach.DataURL(session.MIME(), content),
		Type:       models.AttachmentAudio,
		Size:       int64(len(content)),
		Duration:   float64(duration),
		UploadedAt: c.now().UTC().Format(time.RFC3339Nano),
	}
	c.stager.StageEncoded(att)
	return att, err
}

// Recording reports whether a capture session is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Duration reports the seconds recorded so far.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}
