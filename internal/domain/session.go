// Package domain contains core domain types for the ZapAgent backend.
package domain

import "time"

// SessionState describes where a user's WhatsApp session is in its lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateInitializing
	StateAwaitingScan
	StateAuthenticated
	StateDisconnected
	StateAuthFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Session is the live authentication state for one user's WhatsApp
// integration. QRPayload is only set while awaiting a scan; LastError is
// only set after a disconnect or authentication failure.
type Session struct {
	UserID    string       `json:"user_id"`
	State     SessionState `json:"state"`
	QRPayload string       `json:"qr_payload,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// EventKind identifies a session lifecycle event on the realtime channel.
// The values are the wire names the browser client listens for.
type EventKind string

const (
	EventQRIssued            EventKind = "qr-issued"
	EventSessionReady        EventKind = "session-ready"
	EventSessionDisconnected EventKind = "session-disconnected"
	EventAuthFailed          EventKind = "auth-failed"
	EventError               EventKind = "error"
)

// Event is a session lifecycle event. Every event carries the originating
// UserID so a multiplexed browser client can discard events for identities
// it is not currently displaying.
type Event struct {
	Kind   EventKind `json:"type"`
	UserID string    `json:"userId"`
	QR     string    `json:"qr,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Msg    string    `json:"msg,omitempty"`
	Error  string    `json:"error,omitempty"`
}
