// Package testhelpers provides common utilities and helper functions for testing the ChatRelay server.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for starting relay instances on ephemeral ports, driving the wire protocol
// as a TCP or WebSocket peer, and asserting envelope properties to reduce code duplication in
// test files.
package testhelpers

import (
	"bufio"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// Relay bundles the components of a running relay instance for tests.
type Relay struct {
	Hub        *server.Hub
	Registry   *server.Registry
	Dispatcher *server.Dispatcher
	TCP        *server.TCPServer
}

// Addr returns the TCP listener address of the relay.
func (r *Relay) Addr() string {
	return r.TCP.Addr()
}

// StartRelay boots a complete relay on an ephemeral TCP port and registers
// cleanup with the test. The returned Relay exposes the wired components so
// tests can drive them directly as well as over the wire.
func StartRelay(t *testing.T) *Relay {
	t.Helper()

	logger := zerolog.Nop()
	hub := server.NewHub(logger)
	registry := server.NewRegistry(logger)
	dispatcher := server.NewDispatcher(registry, logger)
	go hub.Run()

	tcp := server.NewTCPServer("127.0.0.1:0", hub, registry, dispatcher, logger)
	if err := tcp.Start(); err != nil {
		t.Fatalf("Failed to start TCP listener: %v", err)
	}

	t.Cleanup(func() {
		_ = tcp.Stop()
		_ = hub.Shutdown(5 * time.Second)
	})

	return &Relay{
		Hub:        hub,
		Registry:   registry,
		Dispatcher: dispatcher,
		TCP:        tcp,
	}
}

// ChatClient is a minimal chat peer that speaks the newline-framed protocol
// over any net.Conn.
type ChatClient struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// DialTCP connects a ChatClient to the given relay address and registers
// cleanup with the test.
func DialTCP(t *testing.T, addr string) *ChatClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to dial relay at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return WrapConn(conn)
}

// WrapConn adapts an existing connection (for example one side of a net.Pipe)
// into a ChatClient.
func WrapConn(conn net.Conn) *ChatClient {
	return &ChatClient{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
	}
}

// Close closes the underlying connection.
func (c *ChatClient) Close() error {
	return c.conn.Close()
}

// SendLine writes one newline-terminated payload to the relay.
func (c *ChatClient) SendLine(t *testing.T, line string) {
	t.Helper()

	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// SendRaw writes bytes to the relay exactly as given, without framing. Useful
// for exercising coalesced and split writes.
func (c *ChatClient) SendRaw(t *testing.T, data []byte) {
	t.Helper()

	if _, err := c.conn.Write(data); err != nil {
		t.Fatalf("Failed to send raw payload: %v", err)
	}
}

// ReadEnvelope reads and decodes the next envelope from the relay, failing
// the test after a 2 second wait.
func (c *ChatClient) ReadEnvelope(t *testing.T) server.Envelope {
	t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !c.scanner.Scan() {
		t.Fatalf("No envelope received: %v", c.scanner.Err())
	}

	env, err := server.DecodeEnvelope(c.scanner.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", c.scanner.Text(), err)
	}
	return env
}

// ExpectNoEnvelope asserts that nothing arrives within the wait window. The
// read timeout leaves the client's scanner in an error state, so this must be
// the last read performed on the client.
func (c *ChatClient) ExpectNoEnvelope(t *testing.T, wait time.Duration) {
	t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	if c.scanner.Scan() {
		t.Errorf("Expected no envelope, received %q", c.scanner.Text())
	}
}

// Identify sends the identity line and consumes the acknowledgment.
func (c *ChatClient) Identify(t *testing.T, identity string) {
	t.Helper()

	c.SendLine(t, identity)
	env := c.ReadEnvelope(t)
	AssertEnvelope(t, env, server.EventServer, server.ServerAuthor, "Connected as "+identity+".")
}

// JoinRoom sends the join command and consumes the confirmation. It assumes
// the client is not yet in a room; superseding joins produce an extra "Left
// chatroom" notice that callers consume themselves.
func (c *ChatClient) JoinRoom(t *testing.T, room string) {
	t.Helper()

	c.SendLine(t, "/join "+room)
	env := c.ReadEnvelope(t)
	AssertEnvelope(t, env, server.EventServer, server.ServerAuthor, "Joined chatroom: "+room)
}

// AssertEnvelope checks the event, author, and content of an envelope.
func AssertEnvelope(t *testing.T, env server.Envelope, event, author, content string) {
	t.Helper()

	if env.Event != event {
		t.Errorf("Expected event %q, got %q", event, env.Event)
	}
	if env.Author != author {
		t.Errorf("Expected author %q, got %q", author, env.Author)
	}
	if env.Content != content {
		t.Errorf("Expected content %q, got %q", content, env.Content)
	}
}

// WaitFor polls cond until it reports true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header. It returns the connection or an error if the
// handshake fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReadWebSocketEnvelope reads and decodes the next envelope from a WebSocket
// connection, failing the test after a 2 second wait.
func ReadWebSocketEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("No envelope received over WebSocket: %v", err)
	}

	env, err := server.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", data, err)
	}
	return env
}
