// Package server implements the core HTTP and WebSocket server functionality
// for RoomChat: a room-based chat service where clients authenticate with a
// unique display name, join one room at a time, and exchange broadcast
// messages with that room's members.
//
// The implementation is organized into specialized files for configuration,
// the wire protocol, hub and registry management, clients, liveness probing,
// routing, and HTTP handlers to keep the codebase maintainable and testable
// as the project grows.
package server
