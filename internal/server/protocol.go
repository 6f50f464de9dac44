// Package server interprets inbound client frames against session and room
// state. Each frame is validated, applied to the registries, and answered
// before the next frame from the same connection is read.
package server

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// notblank fails empty and whitespace-only strings, which is exactly the
	// protocol's definition of a missing required field.
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// isBlank reports whether a required text field is empty after trimming.
func isBlank(s string) bool {
	return validate.Var(s, "notblank") != nil
}

// handleFrame decodes one inbound frame and dispatches it to the hub
// operation for its type. Malformed or unknown frames are answered with an
// error event to this client only and never touch shared state.
func (c *Client) handleFrame(rawFrame []byte) {
	var event ClientEvent
	if err := json.Unmarshal(rawFrame, &event); err != nil {
		c.hub.sendError(c, ErrMalformedFrame)
		return
	}

	switch event.Type {
	case EventLogin:
		c.hub.login(c, event.Username)
	case EventCreateRoom:
		c.hub.createRoom(c, event.RoomName)
	case EventJoinRoom:
		c.hub.joinRoom(c, event.RoomName)
	case EventLeaveRoom:
		c.hub.leaveRoom(c, event.RoomName)
	case EventMessage:
		c.hub.sendMessage(c, event.Text)
	default:
		c.hub.sendError(c, ErrUnknownType)
	}
}
