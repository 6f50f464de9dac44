// Package server coordinates the user and room registries and fans events out
// to the right subset of connections via the Hub type.
package server

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// delivery pairs a serialized event with its recipient. Recipient sets are
// snapshotted while the registry lock is held; the sends happen after it is
// released so a slow recipient never blocks registry mutation.
type delivery struct {
	client  *Client
	payload []byte
}

// Hub owns the shared mutable state of the chat service: the set of open
// connections, the username registry, and the room membership registry.
// Every read-then-write operation (login, room create/join/leave, message,
// disconnect) is applied atomically under a single mutex, together with the
// snapshot of whatever broadcast it triggers.
type Hub struct {
	clients    map[*Client]bool
	users      map[string]*Client
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with empty registries.
// The returned Hub is ready to manage WebSocket connections once Run is
// started in its own goroutine.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown cancels it.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.addClient(client)

			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			h.disconnectClient(client)
		}
	}
}

// addClient places a connection in the open set. Pump goroutines are started
// by Run; tests register pump-less clients through this path.
func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metricConnectedClients.Inc()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)
}

// disconnectClient tears down a session: it removes the connection from the
// open set, releases its username, removes it from its current room, and
// notifies the room's remaining members. Idempotent; safe for connections
// that never completed login and safe to invoke from both the unregister
// path and the liveness sweep concurrently.
func (h *Hub) disconnectClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}

	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)

	if client.username != "" {
		delete(h.users, client.username)
	}

	var deliveries []delivery
	if client.currentRoom != "" {
		if members, ok := h.rooms[client.currentRoom]; ok {
			delete(members, client)
			payload := marshalEvent(Presence{Type: EventUserLeft, Username: client.username})
			for member := range members {
				deliveries = append(deliveries, delivery{member, payload})
			}
		}
		client.currentRoom = ""
	}
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	if client.conn != nil {
		_ = client.conn.Close()
	}

	metricConnectedClients.Dec()
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)

	h.deliver(deliveries)
}

// sendError replies to the offending client only; shared state is untouched.
func (h *Hub) sendError(client *Client, protocolErr error) {
	h.safeSend(client, marshalEvent(ErrorEvent{Type: EventError, Message: protocolErr.Error()}))
}

// login registers a connection under a unique display name and answers with
// the current room enumeration. The name binds for the session's lifetime.
func (h *Hub) login(client *Client, username string) {
	username = strings.TrimSpace(username)
	if isBlank(username) {
		h.safeSend(client, marshalEvent(LoginResult{Type: EventLogin, Success: false, Message: ErrInvalidUsername.Error()}))
		return
	}

	h.mutex.Lock()
	var failure error
	switch {
	case client.username != "":
		failure = ErrAlreadyLoggedIn
	default:
		if _, taken := h.users[username]; taken {
			failure = ErrNameTaken
		}
	}

	var roomNames []string
	if failure == nil {
		h.users[username] = client
		client.username = username
		roomNames = h.roomNamesLocked()
	}
	h.mutex.Unlock()

	if failure != nil {
		h.safeSend(client, marshalEvent(LoginResult{Type: EventLogin, Success: false, Message: failure.Error()}))
		return
	}

	log.Printf("Client %s logged in as %q", client.id, username)
	h.safeSend(client, marshalEvent(LoginResult{Type: EventLogin, Success: true, Username: username}))
	h.safeSend(client, marshalEvent(RoomList{Type: EventRoomList, Rooms: roomNames}))
}

// createRoom registers a new empty room and pushes the updated room list to
// every open connection so all room-selection views stay current.
func (h *Hub) createRoom(client *Client, roomName string) {
	roomName = strings.TrimSpace(roomName)

	h.mutex.Lock()
	var failure error
	switch {
	case client.username == "":
		failure = ErrLoginRequired
	case isBlank(roomName):
		failure = ErrInvalidRoomName
	default:
		if _, exists := h.rooms[roomName]; exists {
			failure = ErrRoomExists
		}
	}

	var deliveries []delivery
	if failure == nil {
		h.rooms[roomName] = make(map[*Client]struct{})
		payload := marshalEvent(RoomList{Type: EventRoomList, Rooms: h.roomNamesLocked()})
		for connected := range h.clients {
			deliveries = append(deliveries, delivery{connected, payload})
		}
	}
	h.mutex.Unlock()

	if failure != nil {
		h.safeSend(client, marshalEvent(RoomResult{Type: EventCreateRoom, Success: false, Message: failure.Error()}))
		return
	}

	metricOpenRooms.Inc()
	log.Printf("Room %q created by %q", roomName, client.username)
	h.safeSend(client, marshalEvent(RoomResult{Type: EventCreateRoom, Success: true, RoomName: roomName}))
	h.deliver(deliveries)
}

// joinRoom moves a connection into the target room. Leaving the previous
// room, announcing the departure, and entering the new room happen under one
// lock acquisition, so a connection is never a member of two rooms at once,
// even transiently.
func (h *Hub) joinRoom(client *Client, roomName string) {
	h.mutex.Lock()
	var failure error
	members, exists := h.rooms[roomName]
	switch {
	case client.username == "":
		failure = ErrLoginRequired
	case !exists:
		failure = ErrRoomNotFound
	}

	var deliveries []delivery
	if failure == nil {
		if client.currentRoom != "" {
			if previous, ok := h.rooms[client.currentRoom]; ok {
				delete(previous, client)
				payload := marshalEvent(Presence{Type: EventUserLeft, Username: client.username})
				for member := range previous {
					deliveries = append(deliveries, delivery{member, payload})
				}
			}
		}

		members[client] = struct{}{}
		client.currentRoom = roomName

		deliveries = append(deliveries, delivery{client,
			marshalEvent(RoomResult{Type: EventJoinRoom, Success: true, RoomName: roomName})})

		joined := marshalEvent(Presence{Type: EventUserJoined, Username: client.username})
		for member := range members {
			if member != client {
				deliveries = append(deliveries, delivery{member, joined})
			}
		}
	}
	h.mutex.Unlock()

	if failure != nil {
		h.safeSend(client, marshalEvent(RoomResult{Type: EventJoinRoom, Success: false, Message: failure.Error()}))
		return
	}

	log.Printf("Client %s (%q) joined room %q", client.id, client.username, roomName)
	h.deliver(deliveries)
}

// leaveRoom removes a connection from the named room and announces the
// departure to the remaining members. The named room does not have to be the
// connection's current room; currentRoom is only cleared when it matches.
func (h *Hub) leaveRoom(client *Client, roomName string) {
	h.mutex.Lock()
	var failure error
	members, exists := h.rooms[roomName]
	switch {
	case client.username == "":
		failure = ErrLoginRequired
	case !exists:
		failure = ErrRoomNotFound
	}

	var deliveries []delivery
	if failure == nil {
		delete(members, client)
		payload := marshalEvent(Presence{Type: EventUserLeft, Username: client.username})
		for member := range members {
			deliveries = append(deliveries, delivery{member, payload})
		}
		if client.currentRoom == roomName {
			client.currentRoom = ""
		}
	}
	h.mutex.Unlock()

	if failure != nil {
		h.safeSend(client, marshalEvent(RoomResult{Type: EventLeaveRoom, Success: false, Message: failure.Error()}))
		return
	}

	log.Printf("Client %s (%q) left room %q", client.id, client.username, roomName)
	h.safeSend(client, marshalEvent(RoomResult{Type: EventLeaveRoom, Success: true}))
	h.deliver(deliveries)
}

// sendMessage broadcasts a chat line to every member of the sender's current
// room, the sender included: the self-echo is the sender's confirmation that
// the message was accepted.
func (h *Hub) sendMessage(client *Client, text string) {
	h.mutex.RLock()
	currentRoom := client.currentRoom
	var recipients []*Client
	if currentRoom != "" {
		if members, ok := h.rooms[currentRoom]; ok {
			recipients = make([]*Client, 0, len(members))
			for member := range members {
				recipients = append(recipients, member)
			}
		}
	}
	username := client.username
	h.mutex.RUnlock()

	if currentRoom == "" {
		h.sendError(client, ErrNotInRoom)
		return
	}

	text = strings.TrimSpace(text)
	if isBlank(text) {
		h.sendError(client, ErrEmptyMessage)
		return
	}

	payload := marshalEvent(ChatMessage{
		Type:      EventMessage,
		Username:  username,
		Text:      text,
		Timestamp: time.Now().UTC().Format(timestampLayout),
	})

	deliveries := make([]delivery, 0, len(recipients))
	for _, recipient := range recipients {
		deliveries = append(deliveries, delivery{recipient, payload})
	}

	metricMessagesTotal.Inc()
	h.deliver(deliveries)
}

// roomNamesLocked enumerates room names sorted for a stable room_list order.
// Callers must hold the registry lock.
func (h *Hub) roomNamesLocked() []string {
	names := lo.Keys(h.rooms)
	sort.Strings(names)
	return names
}

// deliver performs the best-effort fan-out for a snapshot of recipients.
// A recipient whose buffer is full or whose session closed is dropped
// through the normal disconnect path without aborting the remaining sends.
func (h *Hub) deliver(deliveries []delivery) {
	var failed []*Client
	for _, d := range deliveries {
		if d.payload == nil {
			continue
		}
		if !h.safeSend(d.client, d.payload) {
			failed = append(failed, d.client)
		}
	}

	for _, client := range failed {
		h.mutex.RLock()
		stillOpen := h.clients[client]
		h.mutex.RUnlock()
		if stillOpen {
			log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
			h.disconnectClient(client)
		}
	}
}

// safeSend enqueues a payload for one client without ever blocking. It
// reports false when the client is gone or its buffer is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	if payload == nil {
		return true
	}

	// Hold the lock during the send attempt so the channel cannot be closed
	// between the membership check and the enqueue.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// shutdownClients tears down every remaining session. Running the full
// disconnect path (rather than only closing the sockets) closes each send
// channel, which is what lets the write pumps drain and exit; nobody is
// servicing the unregister channel at this point, so the read pumps fall
// back to the context in their deferred handoff.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.disconnectClient(client)
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
