// Package server declares the protocol error taxonomy. Each sentinel's text
// is the exact failure string delivered on the wire, so clients written
// against the reference protocol keep working unchanged.
package server

import "errors"

var (
	// ErrInvalidUsername rejects a login with an empty or whitespace-only name.
	ErrInvalidUsername = errors.New("Invalid username")
	// ErrNameTaken rejects a login for a username that is already registered.
	ErrNameTaken = errors.New("Username already taken")
	// ErrAlreadyLoggedIn rejects a second login attempt on the same connection.
	ErrAlreadyLoggedIn = errors.New("Already logged in")
	// ErrLoginRequired rejects room operations attempted before a successful login.
	ErrLoginRequired = errors.New("Login required")
	// ErrInvalidRoomName rejects a create_room with an empty or whitespace-only name.
	ErrInvalidRoomName = errors.New("Invalid room name")
	// ErrRoomExists rejects creating a room whose name is already registered.
	ErrRoomExists = errors.New("Room already exists")
	// ErrRoomNotFound rejects join/leave of a room that does not exist.
	ErrRoomNotFound = errors.New("Room does not exist")
	// ErrNotInRoom rejects a chat message from a connection with no current room.
	ErrNotInRoom = errors.New("You are not in a room")
	// ErrEmptyMessage rejects an empty or whitespace-only chat message.
	ErrEmptyMessage = errors.New("Empty message")
	// ErrMalformedFrame reports a frame that could not be decoded.
	ErrMalformedFrame = errors.New("Invalid JSON")
	// ErrUnknownType reports a frame with an unrecognized type discriminator.
	ErrUnknownType = errors.New("Unknown message type")
)
