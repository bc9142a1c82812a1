package integration

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// startRelayWithGateway boots the relay with its WebSocket gateway mounted on
// an httptest server and an allow-all origin policy.
func startRelayWithGateway(t *testing.T) (*testhelpers.Relay, string) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	relay := testhelpers.StartRelay(t)
	gateway := server.NewGateway(relay.Hub, relay.Registry, relay.Dispatcher, zerolog.Nop())

	ts := httptest.NewServer(gateway.Routes())
	t.Cleanup(ts.Close)

	return relay, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// TestCrossTransportChat verifies a WebSocket peer and a TCP peer can share a
// chatroom and exchange messages in both directions.
func TestCrossTransportChat(t *testing.T) {
	relay, wsURL := startRelayWithGateway(t)

	wendy, err := testhelpers.ConnectWebSocket(wsURL, "http://localhost")
	if err != nil {
		t.Fatalf("WebSocket handshake failed: %v", err)
	}
	defer func() { _ = wendy.Close() }()

	if err := wendy.WriteMessage(websocket.TextMessage, []byte("wendy")); err != nil {
		t.Fatalf("Failed to send identity: %v", err)
	}
	testhelpers.AssertEnvelope(t, testhelpers.ReadWebSocketEnvelope(t, wendy),
		server.EventServer, server.ServerAuthor, "Connected as wendy.")

	if err := wendy.WriteMessage(websocket.TextMessage, []byte("/join lobby")); err != nil {
		t.Fatalf("Failed to send join command: %v", err)
	}
	testhelpers.AssertEnvelope(t, testhelpers.ReadWebSocketEnvelope(t, wendy),
		server.EventServer, server.ServerAuthor, "Joined chatroom: lobby")

	tom := testhelpers.DialTCP(t, relay.Addr())
	tom.Identify(t, "tom")
	tom.JoinRoom(t, "lobby")

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Registry.MemberCount("lobby") == 2
	}, "both transports joining the lobby")

	tom.SendLine(t, "hello over tcp")
	testhelpers.AssertEnvelope(t, tom.ReadEnvelope(t), server.EventMessage, "tom", "hello over tcp")
	testhelpers.AssertEnvelope(t, testhelpers.ReadWebSocketEnvelope(t, wendy),
		server.EventMessage, "tom", "hello over tcp")

	if err := wendy.WriteMessage(websocket.TextMessage, []byte("hello over ws")); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	testhelpers.AssertEnvelope(t, testhelpers.ReadWebSocketEnvelope(t, wendy),
		server.EventMessage, "wendy", "hello over ws")
	testhelpers.AssertEnvelope(t, tom.ReadEnvelope(t), server.EventMessage, "wendy", "hello over ws")
}

// TestWebSocketDisconnectAnnouncement verifies a WebSocket peer closing its
// connection produces the same server-wide announcement as a TCP peer.
func TestWebSocketDisconnectAnnouncement(t *testing.T) {
	relay, wsURL := startRelayWithGateway(t)

	ghost, err := testhelpers.ConnectWebSocket(wsURL, "http://localhost")
	if err != nil {
		t.Fatalf("WebSocket handshake failed: %v", err)
	}

	if err := ghost.WriteMessage(websocket.TextMessage, []byte("ghost")); err != nil {
		t.Fatalf("Failed to send identity: %v", err)
	}
	testhelpers.AssertEnvelope(t, testhelpers.ReadWebSocketEnvelope(t, ghost),
		server.EventServer, server.ServerAuthor, "Connected as ghost.")

	watcher := testhelpers.DialTCP(t, relay.Addr())
	watcher.Identify(t, "watcher")

	_ = ghost.Close()

	env := watcher.ReadEnvelope(t)
	if env.Event != server.EventServer || !strings.Contains(env.Content, "disconnected") {
		t.Errorf("Expected disconnect announcement, got %+v", env)
	}

	testhelpers.WaitFor(t, time.Second, func() bool {
		return relay.Hub.SessionCount() == 1
	}, "ghost session removal")
}
