package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startChatServer boots a full hub and HTTP stack on an ephemeral port and
// returns the base URL plus the derived WebSocket URL.
func startChatServer(t *testing.T) (string, string) {
	t.Helper()

	hub := NewHub()
	go hub.Run()

	testServer := httptest.NewServer(SetupRoutes(hub))

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{testServer.URL}
	cfg.RateLimit.Burst = 100
	SetConfig(cfg)

	t.Cleanup(func() {
		testServer.Close()
		_ = hub.Shutdown(2 * time.Second)
		SetConfig(nil)
	})

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	return testServer.URL, wsURL
}

func dialChat(t *testing.T, baseURL, wsURL string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", baseURL)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeClientEvent(t *testing.T, conn *websocket.Conn, event ClientEvent) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func readServerEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func loginOverWire(t *testing.T, conn *websocket.Conn, username string) map[string]any {
	t.Helper()
	writeClientEvent(t, conn, ClientEvent{Type: EventLogin, Username: username})
	result := readServerEvent(t, conn)
	require.Equal(t, EventLogin, result["type"])
	require.Equal(t, true, result["success"])
	roomList := readServerEvent(t, conn)
	require.Equal(t, EventRoomList, roomList["type"])
	return roomList
}

func TestEndToEndChatScenario(t *testing.T) {
	baseURL, wsURL := startChatServer(t)
	alice := dialChat(t, baseURL, wsURL)

	roomList := loginOverWire(t, alice, "alice")
	assert.Empty(t, roomList["rooms"])

	writeClientEvent(t, alice, ClientEvent{Type: EventCreateRoom, RoomName: "general"})
	ack := readServerEvent(t, alice)
	assert.Equal(t, EventCreateRoom, ack["type"])
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, "general", ack["roomName"])

	roomList = readServerEvent(t, alice)
	assert.Equal(t, EventRoomList, roomList["type"])
	assert.Equal(t, []any{"general"}, roomList["rooms"])

	writeClientEvent(t, alice, ClientEvent{Type: EventJoinRoom, RoomName: "general"})
	ack = readServerEvent(t, alice)
	assert.Equal(t, EventJoinRoom, ack["type"])
	assert.Equal(t, true, ack["success"])

	writeClientEvent(t, alice, ClientEvent{Type: EventMessage, Text: "hi"})
	echo := readServerEvent(t, alice)
	assert.Equal(t, EventMessage, echo["type"])
	assert.Equal(t, "alice", echo["username"])
	assert.Equal(t, "hi", echo["text"])

	timestamp, ok := echo["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, timestamp)
	assert.NoError(t, err)
}

func TestTwoClientsExchangeMessagesAndPresence(t *testing.T) {
	baseURL, wsURL := startChatServer(t)

	alice := dialChat(t, baseURL, wsURL)
	loginOverWire(t, alice, "alice")
	writeClientEvent(t, alice, ClientEvent{Type: EventCreateRoom, RoomName: "general"})
	readServerEvent(t, alice) // create ack
	readServerEvent(t, alice) // room_list broadcast
	writeClientEvent(t, alice, ClientEvent{Type: EventJoinRoom, RoomName: "general"})
	readServerEvent(t, alice) // join ack

	bob := dialChat(t, baseURL, wsURL)
	roomList := loginOverWire(t, bob, "bob")
	assert.Equal(t, []any{"general"}, roomList["rooms"])

	writeClientEvent(t, bob, ClientEvent{Type: EventJoinRoom, RoomName: "general"})
	ack := readServerEvent(t, bob)
	assert.Equal(t, true, ack["success"])

	joined := readServerEvent(t, alice)
	assert.Equal(t, EventUserJoined, joined["type"])
	assert.Equal(t, "bob", joined["username"])

	writeClientEvent(t, bob, ClientEvent{Type: EventMessage, Text: "hello"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		message := readServerEvent(t, conn)
		assert.Equal(t, EventMessage, message["type"])
		assert.Equal(t, "bob", message["username"])
		assert.Equal(t, "hello", message["text"])
	}

	// Dropping bob's transport must surface as a user_left to alice.
	require.NoError(t, bob.Close())
	left := readServerEvent(t, alice)
	assert.Equal(t, EventUserLeft, left["type"])
	assert.Equal(t, "bob", left["username"])
}

func TestDuplicateUsernameAcrossConnections(t *testing.T) {
	baseURL, wsURL := startChatServer(t)

	first := dialChat(t, baseURL, wsURL)
	loginOverWire(t, first, "dave")

	second := dialChat(t, baseURL, wsURL)
	writeClientEvent(t, second, ClientEvent{Type: EventLogin, Username: "dave"})
	result := readServerEvent(t, second)
	assert.Equal(t, EventLogin, result["type"])
	assert.Equal(t, false, result["success"])
	assert.Equal(t, ErrNameTaken.Error(), result["message"])
}

func TestMalformedFrameGetsErrorEventOverWire(t *testing.T) {
	baseURL, wsURL := startChatServer(t)
	conn := dialChat(t, baseURL, wsURL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	event := readServerEvent(t, conn)
	assert.Equal(t, EventError, event["type"])
	assert.Equal(t, ErrMalformedFrame.Error(), event["message"])
}

func TestWebSocketEndpointRequiresGet(t *testing.T) {
	baseURL, _ := startChatServer(t)

	resp, err := http.Post(baseURL+"/ws", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	_, wsURL := startChatServer(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		_ = conn.Close()
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
}

func TestShutdownReturnsPromptlyWithConnectedClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	testServer := httptest.NewServer(SetupRoutes(hub))
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{testServer.URL}
	SetConfig(cfg)
	t.Cleanup(func() {
		testServer.Close()
		SetConfig(nil)
	})

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	alice := dialChat(t, testServer.URL, wsURL)
	loginOverWire(t, alice, "alice")
	bob := dialChat(t, testServer.URL, wsURL)
	loginOverWire(t, bob, "bob")

	// Both sessions have live pump goroutines; Shutdown must tear them down
	// and return well inside the deadline rather than exhausting it.
	start := time.Now()
	err := hub.Shutdown(5 * time.Second)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHealthEndpoint(t *testing.T) {
	baseURL, _ := startChatServer(t)

	resp, err := http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}
