// Package session owns the per-user WhatsApp authentication lifecycle: it
// drives a protocol client from initialization through QR pairing to an
// authenticated connection and emits typed lifecycle events.
package session

import "context"

// ClientEvent is a lifecycle callback from a protocol client. The manager
// applies events for one user in the order they are delivered.
type ClientEvent interface {
	isClientEvent()
}

// QRCode carries a scannable pairing credential.
type QRCode struct {
	Code string
}

// Ready signals that the client authenticated and is connected.
type Ready struct{}

// Disconnected signals that the client lost its connection. Terminal for
// the session.
type Disconnected struct {
	Reason string
}

// AuthFailed signals that the client's credentials were rejected. Terminal
// for the session.
type AuthFailed struct {
	Message string
}

func (QRCode) isClientEvent()       {}
func (Ready) isClientEvent()        {}
func (Disconnected) isClientEvent() {}
func (AuthFailed) isClientEvent()   {}

// ProtocolClient is the capability surface of one WhatsApp connection.
// Both integration paths implement its send half; the QR path additionally
// implements pairing via Connect.
type ProtocolClient interface {
	// Connect starts the client. When the bound credential slot is not
	// yet paired, the client emits QRCode events until a scan succeeds.
	Connect(ctx context.Context) error

	// Logout invalidates the stored credential and disconnects.
	Logout(ctx context.Context) error

	// Send delivers a text message to the recipient.
	Send(ctx context.Context, to, text string) error
}

// ClientFactory constructs a protocol client bound to a user's durable
// credential slot. Lifecycle callbacks are delivered through emit.
type ClientFactory interface {
	New(userID string, emit func(ClientEvent)) (ProtocolClient, error)
}
