// Package server abstracts the per-connection byte stream so that sessions can
// run unchanged over TCP sockets and WebSocket connections.
package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// streamConn is a transport-neutral framed connection. ReadFrame returns one
// application-level message regardless of how the underlying stream coalesced
// or split the bytes on the wire.
type streamConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
	RemoteAddr() string
}

// tcpConn frames a raw TCP stream with newline delimiters. Outbound envelopes
// already carry their trailing newline; inbound lines are scanned with a
// bounded buffer so an oversized frame fails the read instead of growing
// memory without limit.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func newTCPConn(conn net.Conn, maxFrameSize int64) *tcpConn {
	scanner := bufio.NewScanner(conn)
	// The max token size is the larger of the limit and the initial buffer
	// capacity, so the initial buffer is left nil to keep the limit binding.
	scanner.Buffer(nil, int(maxFrameSize))
	return &tcpConn{
		conn:    conn,
		scanner: scanner,
	}
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	// The scanner reuses its buffer between calls; hand out a copy.
	line := c.scanner.Bytes()
	frame := make([]byte, len(line))
	copy(frame, line)
	return frame, nil
}

func (c *tcpConn) WriteFrame(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return err
	}
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		_, err := c.conn.Write([]byte{'\n'})
		return err
	}
	return nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsConn adapts a gorilla WebSocket connection. WebSocket messages are already
// framed by the protocol, so the newline delimiter is stripped before writing.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn, maxFrameSize int64) *wsConn {
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

func (c *wsConn) WriteFrame(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(payload, "\n"))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
