package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// TestChatSessionLifecycle drives the full wire protocol over real TCP
// connections: identify, join a chatroom, exchange messages, and observe the
// disconnect announcement when a peer leaves.
func TestChatSessionLifecycle(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.Addr())
	bob := testhelpers.DialTCP(t, relay.Addr())

	alice.Identify(t, "alice")
	alice.JoinRoom(t, "lobby")
	bob.Identify(t, "bob")
	bob.JoinRoom(t, "lobby")

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("lobby") == 2
	}, "both peers joining the lobby")

	alice.SendLine(t, "hi")
	testhelpers.AssertEnvelope(t, alice.ReadEnvelope(t), server.EventMessage, "alice", "hi")
	testhelpers.AssertEnvelope(t, bob.ReadEnvelope(t), server.EventMessage, "alice", "hi")

	bob.SendLine(t, "hello alice")
	testhelpers.AssertEnvelope(t, alice.ReadEnvelope(t), server.EventMessage, "bob", "hello alice")
	testhelpers.AssertEnvelope(t, bob.ReadEnvelope(t), server.EventMessage, "bob", "hello alice")

	_ = bob.Close()

	env := alice.ReadEnvelope(t)
	if env.Event != server.EventServer || env.Author != server.ServerAuthor {
		t.Errorf("Expected a server announcement, got %+v", env)
	}
	if !strings.Contains(env.Content, "disconnected") {
		t.Errorf("Expected disconnect announcement, got %q", env.Content)
	}

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("lobby") == 1
	}, "bob leaving the lobby")
}

// TestMessageBeforeJoinIsRejected verifies an identified peer that has not
// joined a chatroom receives the rejection notice and nothing is relayed.
func TestMessageBeforeJoinIsRejected(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	client := testhelpers.DialTCP(t, relay.Addr())
	client.Identify(t, "loner")

	client.SendLine(t, "anyone there?")
	testhelpers.AssertEnvelope(t, client.ReadEnvelope(t), server.EventServer, server.ServerAuthor,
		"You need to join a chatroom first.")

	if got := relay.Registry.RoomCount(); got != 0 {
		t.Errorf("Expected no chatrooms, got %d", got)
	}
}

// TestRoomSwitchOverWire verifies that joining a second chatroom leaves the
// first one and the peer sees the Left and Joined notices in order.
func TestRoomSwitchOverWire(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	client := testhelpers.DialTCP(t, relay.Addr())
	client.Identify(t, "nomad")
	client.JoinRoom(t, "alpha")

	client.SendLine(t, "/join beta")
	testhelpers.AssertEnvelope(t, client.ReadEnvelope(t), server.EventServer, server.ServerAuthor, "Left chatroom: alpha")
	testhelpers.AssertEnvelope(t, client.ReadEnvelope(t), server.EventServer, server.ServerAuthor, "Joined chatroom: beta")

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("alpha") == 0 && relay.Registry.MemberCount("beta") == 1
	}, "membership to move between rooms")
}
