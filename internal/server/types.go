// Package server defines the JSON wire protocol exchanged with chat clients
// and small utility helpers shared across client and hub logic.
package server

import (
	"encoding/json"
	"log"
	"strings"
)

// Event type discriminators carried in the "type" field of every frame.
const (
	EventLogin      = "login"
	EventCreateRoom = "create_room"
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventMessage    = "message"
	EventRoomList   = "room_list"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventError      = "error"
)

// ClientEvent is the envelope for every client-to-server frame. Only the
// fields relevant to the given Type are populated.
type ClientEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	RoomName string `json:"roomName,omitempty"`
	Text     string `json:"text,omitempty"`
}

// LoginResult acknowledges a login attempt to the requesting client only.
type LoginResult struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RoomList carries the full room-name enumeration, sorted for stable display.
type RoomList struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// RoomResult acknowledges a create_room, join_room, or leave_room request.
type RoomResult struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	RoomName string `json:"roomName,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ChatMessage is a chat line fanned out to every member of a room,
// including the sender.
type ChatMessage struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Presence announces a user joining or leaving a room to its members.
type Presence struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ErrorEvent reports a protocol-level failure to the offending client only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// timestampLayout is the ISO-8601 format stamped on chat messages
// (millisecond precision, "Z" suffix when UTC).
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// marshalEvent serializes an outbound event. The event structs above cannot
// fail to marshal; callers treat a nil payload as a skipped delivery.
func marshalEvent(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling outbound event %T: %v", v, err)
		return nil
	}
	return payload
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
