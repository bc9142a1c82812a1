package unit

import (
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// TestOversizedFrameDisconnectsOnlySender verifies that a frame exceeding the
// configured limit tears down the offending session without touching anyone
// else.
func TestOversizedFrameDisconnectsOnlySender(t *testing.T) {
	cfg := server.NewConfig()
	cfg.MaxFrameSize = 64
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	relay := testhelpers.StartRelay(t)

	offender := testhelpers.DialTCP(t, relay.Addr())
	bystander := testhelpers.DialTCP(t, relay.Addr())

	offender.Identify(t, "eve")
	bystander.Identify(t, "bob")

	offender.SendLine(t, strings.Repeat("x", 256))

	// The bystander sees the offender's disconnect announcement, proving the
	// rest of the server kept running.
	env := bystander.ReadEnvelope(t)
	if env.Event != server.EventServer || !strings.Contains(env.Content, "disconnected") {
		t.Errorf("Expected disconnect announcement, got %+v", env)
	}

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Hub.SessionCount() == 1
	}, "offender removal")
}

// TestAbruptClientCloseLeavesRoomIntact verifies that a peer vanishing
// mid-conversation removes only that member and the room keeps relaying.
func TestAbruptClientCloseLeavesRoomIntact(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.Addr())
	bob := testhelpers.DialTCP(t, relay.Addr())
	carol := testhelpers.DialTCP(t, relay.Addr())

	alice.Identify(t, "alice")
	alice.JoinRoom(t, "lobby")
	bob.Identify(t, "bob")
	bob.JoinRoom(t, "lobby")
	carol.Identify(t, "carol")
	carol.JoinRoom(t, "lobby")

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("lobby") == 3
	}, "room population")

	_ = bob.Close()
	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("lobby") == 2
	}, "bob's removal from the room")

	// Drain bob's disconnect announcement on both survivors.
	for _, c := range []*testhelpers.ChatClient{alice, carol} {
		env := c.ReadEnvelope(t)
		if !strings.Contains(env.Content, "disconnected") {
			t.Errorf("Expected disconnect announcement, got %+v", env)
		}
	}

	alice.SendLine(t, "still here")
	testhelpers.AssertEnvelope(t, alice.ReadEnvelope(t), server.EventMessage, "alice", "still here")
	testhelpers.AssertEnvelope(t, carol.ReadEnvelope(t), server.EventMessage, "alice", "still here")
}
