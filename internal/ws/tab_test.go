package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/chat"
	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

func setupWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := chat.NewEngine(chat.Config{Adapter: store.NewMemoryStore().Open()})
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Close)

	r := gin.New()
	r.GET("/ws/rooms/:room", NewTabHandler(engine).Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, room, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + room + "?username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.RoomEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var event models.RoomEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		if event.Type == eventType {
			return event
		}
	}
}

func TestHandshakeRequiresUsername(t *testing.T) {
	srv := setupWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/general"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageFrameRoundtrip(t *testing.T) {
	srv := setupWSServer(t)
	conn := dialRoom(t, srv, "general", "alice")

	frame, err := json.Marshal(map[string]string{"type": "message", "text": "hello from a tab"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	event := readUntil(t, conn, models.EventMessage)
	require.Equal(t, "general", event.Room)
	require.NotNil(t, event.Message)
	require.Equal(t, "alice", event.Message.From)
	require.Equal(t, "hello from a tab", event.Message.Text)
}

func TestTypingFrameFansOutToOtherTabs(t *testing.T) {
	srv := setupWSServer(t)
	alice := dialRoom(t, srv, "general", "alice")
	bob := dialRoom(t, srv, "general", "bob")

	frame, err := json.Marshal(map[string]string{"type": "typing"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, frame))

	event := readUntil(t, bob, models.EventTyping)
	require.Equal(t, "general", event.Room)
	require.Contains(t, event.Typing, "alice")
}
