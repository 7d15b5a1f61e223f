// Package protocol defines the wire protocol exchanged between Glasswing
// clients and the server over WebSocket.
//
// All messages are JSON-encoded. Client-to-server traffic is a stream of
// Request messages (after the optional Auth handshake). Server-to-client
// traffic carries a "type" field that selects one of the message shapes
// below: "response", "error", "event", "auth_success" or "connected".
package protocol

import "encoding/json"

// Message type values for server-to-client messages.
const (
	TypeResponse    = "response"
	TypeError       = "error"
	TypeEvent       = "event"
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth_success"
	TypeConnected   = "connected"
)

// Lifecycle events pushed to session owners around command execution.
const (
	EventCommandStarted  = "command_started"
	EventCommandFinished = "command_finished"
	EventCommandFailed   = "command_failed"
	EventConsole         = "console"
	EventSessionClosed   = "session_closed"
)

// Request is a command sent by a client.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response acknowledges a successfully executed command.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
}

// ErrorMessage reports a failed or unparseable command. ID is null when the
// failure happened before a request id could be read.
type ErrorMessage struct {
	Type  string  `json:"type"`
	ID    *string `json:"id"`
	Error string  `json:"error"`
}

// Event is an unsolicited push delivered to every owner of a session.
// TS is a unix timestamp in seconds.
type Event struct {
	Type      string  `json:"type"`
	Event     string  `json:"event"`
	SessionID string  `json:"session_id"`
	TS        float64 `json:"ts"`
	Data      any     `json:"data"`
}

// Auth is the first client message when the server requires authentication.
type Auth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// AuthSuccess acknowledges a valid Auth message.
type AuthSuccess struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Connected is pushed once per connection after the implicit session has
// been created.
type Connected struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	WorkspaceID  string `json:"workspace_id"`
	ArtifactsDir string `json:"artifacts_dir"`
	Message      string `json:"message"`
}
