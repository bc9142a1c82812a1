// Package server implements the core TCP and WebSocket relay functionality for ChatRelay.
//
// The implementation is organized into specialized files for configuration,
// hub management, sessions, the chatroom registry, message dispatching, and
// transport listeners to keep the codebase maintainable and testable as the
// project grows.
package server
