// Package ws exposes the chat engine over websocket connections. Each
// connection is one tab: it joins a room on connect, streams the room's
// events, and leaves on disconnect.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-engine/internal/chat"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what a connected tab may send upward.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TabHandler upgrades websocket connections into room sessions.
type TabHandler struct {
	engine *chat.Engine
}

// NewTabHandler constructs a TabHandler.
func NewTabHandler(engine *chat.Engine) *TabHandler {
	return &TabHandler{engine: engine}
}

// Handle upgrades the connection, joins the room and pumps events both
// ways until the tab disconnects.
func (h *TabHandler) Handle(c *gin.Context) {
	room := c.Param("room")

	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	session, err := h.engine.Join(ctx, room, username, models.DefaultSettings())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = session.Leave(ctx)
		return
	}

	observability.IncWSActive()
	events, cancel := h.engine.Hub().Subscribe(room)

	// Writer: push room events to the tab.
	go func() {
		for event := range events {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				conn.Close()
				return
			}
		}
	}()

	// Reader: accept sends and typing marks until disconnect. The
	// handshake context dies with the HTTP handler, so engine calls run
	// on a background context for the connection's lifetime.
	go func() {
		bg := context.Background()
		defer func() {
			cancel()
			conn.Close()
			_ = session.Leave(bg)
			observability.DecWSActive()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame clientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			switch frame.Type {
			case "message":
				if _, err := session.Send(bg, frame.Text); err != nil && err != chat.ErrNothingToSend {
					log.Printf("ws send failed for %s in %s: %v", username, room, err)
				}
			case "typing":
				_ = session.Typing(bg)
			case "stop_typing":
				_ = session.StopTyping(bg)
			case "heartbeat":
				_ = session.Heartbeat(bg)
			}
		}
	}()
}
