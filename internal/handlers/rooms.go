package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/attach"
	"chat-engine/internal/chat"
	"chat-engine/internal/models"
	"chat-engine/internal/roomstate"
	"chat-engine/internal/voice"
)

// RoomHandler exposes the chat engine over HTTP. One session per
// joined tab, addressed by the id returned from join.
type RoomHandler struct {
	engine *chat.Engine
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(engine *chat.Engine) *RoomHandler {
	return &RoomHandler{engine: engine}
}

// JoinRoom opens a session for the authenticated user in a room. Room
// codes are arbitrary case-sensitive strings; no existence check.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	room := c.Param("room")
	username := c.GetString("username")

	settings := models.DefaultSettings()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&settings); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	session, err := h.engine.Join(c.Request.Context(), room, username, settings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID(),
		"profile":    session.Profile(),
	})
}

// RoomPresence returns the presence set of a room.
func (h *RoomHandler) RoomPresence(c *gin.Context) {
	members, err := h.engine.Rooms().Profiles(c.Request.Context(), c.Param("room"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": members})
}

func (h *RoomHandler) session(c *gin.Context) (*chat.Session, bool) {
	session, err := h.engine.Session(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return nil, false
	}
	return session, true
}

// ListMessages returns the session room's messages in send order.
func (h *RoomHandler) ListMessages(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	msgs, err := session.Messages(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage appends a message from the session's user.
func (h *RoomHandler) SendMessage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := session.Send(c.Request.Context(), req.Text)
	if errors.Is(err, chat.ErrNothingToSend) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage permanently removes one message.
func (h *RoomHandler) DeleteMessage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	err := session.Delete(c.Request.Context(), c.Param("message_id"))
	switch {
	case errors.Is(err, roomstate.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, chat.ErrDeleteForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to delete this message"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
	default:
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// TogglePin flips a message's pinned flag.
func (h *RoomHandler) TogglePin(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	err := session.TogglePin(c.Request.Context(), c.Param("message_id"))
	if errors.Is(err, roomstate.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle pin"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": true})
}

// SearchMessages filters messages by a case-insensitive substring.
func (h *RoomHandler) SearchMessages(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	msgs, err := session.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkTyping flags the session's user as composing.
func (h *RoomHandler) MarkTyping(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Typing(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark typing"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StopTyping clears the session's composing flag.
func (h *RoomHandler) StopTyping(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.StopTyping(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear typing"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StageAttachments accepts multipart uploads into the session's staged
// list. Oversized files are skipped with a warning, others proceed.
func (h *RoomHandler) StageAttachments(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var warnings []string
	inputs := make([]attach.Input, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			warnings = append(warnings, fh.Filename)
			continue
		}
		defer f.Close()
		inputs = append(inputs, attach.Input{
			Name:   fh.Filename,
			MIME:   fh.Header.Get("Content-Type"),
			Size:   fh.Size,
			Reader: f,
		})
	}

	// Conversions are asynchronous; wait so the response reflects the
	// staged list.
	<-session.Stager().Stage(inputs...)

	c.JSON(http.StatusOK, gin.H{
		"staged":   session.Stager().Staged(),
		"warnings": warnings,
	})
}

// UnstageAttachment removes one staged item by position.
func (h *RoomHandler) UnstageAttachment(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	session.Stager().Unstage(index)
	c.JSON(http.StatusOK, gin.H{"staged": session.Stager().Staged()})
}

// StartRecording begins a voice capture session.
func (h *RoomHandler) StartRecording(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	recorder, err := session.Voice()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice recording is not available"})
		return
	}
	if err := recorder.Start(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, voice.ErrAlreadyRecording):
			c.JSON(http.StatusConflict, gin.H{"error": "already recording"})
		case errors.Is(err, voice.ErrCaptureDenied):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audio capture was denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start recording"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": true})
}

// StopRecording finalizes the capture into a staged voice note.
func (h *RoomHandler) StopRecording(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	recorder, err := session.Voice()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice recording is not available"})
		return
	}
	att, err := recorder.Stop()
	if errors.Is(err, voice.ErrNotRecording) {
		c.JSON(http.StatusConflict, gin.H{"error": "not recording"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop recording"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachment": att})
}

// Heartbeat bumps the session user's lastActive.
func (h *RoomHandler) Heartbeat(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Heartbeat(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to heartbeat"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateSettings replaces the session's settings.
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var settings models.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session.UpdateSettings(settings)
	c.JSON(http.StatusOK, gin.H{"settings": session.Settings()})
}

// LeaveRoom closes the session and removes the user from the room.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Leave(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}
