package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepLowersFlagAndQueuesProbeForLiveClients(t *testing.T) {
	h := NewHub()
	c := newTestClient(t, h)
	require.True(t, c.alive.Load())

	h.sweepClients()

	assert.False(t, c.alive.Load())
	assert.Len(t, c.ping, 1)
	assert.Contains(t, h.clients, c)
}

func TestSweepReapsClientAfterTwoMissedProbes(t *testing.T) {
	h := NewHub()
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	loginAs(t, h, alice, "alice")
	loginAs(t, h, bob, "bob")
	h.createRoom(alice, "lobby")
	h.joinRoom(alice, "lobby")
	h.joinRoom(bob, "lobby")
	drainEvents(alice)
	drainEvents(bob)

	// First sweep lowers the flag; the second finds it still lowered.
	h.sweepClients()
	h.sweepClients()

	assert.NotContains(t, h.clients, alice)
	assert.NotContains(t, h.clients, bob)
	assert.NotContains(t, h.users, "alice")
	assert.Empty(t, h.rooms["lobby"])
}

func TestPongBetweenSweepsKeepsClientRegistered(t *testing.T) {
	h := NewHub()
	c := newTestClient(t, h)
	loginAs(t, h, c, "alice")

	h.sweepClients()
	// Simulate the pong handler raising the flag between ticks.
	c.alive.Store(true)
	h.sweepClients()

	assert.Contains(t, h.clients, c)
	assert.Contains(t, h.users, "alice")
}

func TestReapedClientTriggersSameCleanupAsDisconnect(t *testing.T) {
	h := NewHub()
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	loginAs(t, h, alice, "alice")
	loginAs(t, h, bob, "bob")
	h.createRoom(alice, "lobby")
	h.joinRoom(alice, "lobby")
	h.joinRoom(bob, "lobby")
	drainEvents(alice)
	drainEvents(bob)

	alice.alive.Store(false)
	bob.alive.Store(true)
	h.sweepClients()

	event := readEvent(t, bob)
	assert.Equal(t, EventUserLeft, event["type"])
	assert.Equal(t, "alice", event["username"])
	assert.NotContains(t, h.users, "alice")
	assert.NotContains(t, h.rooms["lobby"], alice)
}
