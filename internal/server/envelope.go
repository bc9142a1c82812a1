// Package server defines the wire envelope exchanged between the relay and its
// clients, along with the encode/decode helpers that frame it.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Event kinds carried by an Envelope. EventMessage is a chat message authored
// by a client; EventServer is an administrative notice authored by the relay.
const (
	EventMessage = "message"
	EventServer  = "servermsg"
)

// ServerAuthor is the author string stamped on every servermsg envelope.
const ServerAuthor = "[Server]"

// ErrMalformedEnvelope is returned by DecodeEnvelope when the payload is not
// valid JSON or is missing a required field. Callers are expected to log and
// drop the payload; a malformed envelope never terminates a connection.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the unit of server-to-client communication. Timestamps carry
// second resolution only; collisions across rapid messages are acceptable.
type Envelope struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
}

// EncodeEnvelope serializes a message into a newline-terminated JSON envelope,
// stamping it with the current UTC time at HH:MM:SS resolution. The trailing
// newline is the framing delimiter; stream transports may coalesce or split
// writes, so receivers must split on it rather than trust read boundaries.
func EncodeEnvelope(content, author, event string) []byte {
	env := Envelope{
		Content:   content,
		Author:    author,
		Timestamp: time.Now().UTC().Format("15:04:05"),
		Event:     event,
	}

	// Marshal cannot fail for a struct of plain strings.
	data, _ := json.Marshal(env)
	return append(data, '\n')
}

// DecodeEnvelope parses a single framed envelope. It returns
// ErrMalformedEnvelope when the payload is not JSON or when any of the
// required fields (event, author, content) is absent.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return Envelope{}, ErrMalformedEnvelope
	}

	if env.Event == "" || env.Author == "" || env.Content == "" {
		return Envelope{}, ErrMalformedEnvelope
	}

	return env, nil
}
