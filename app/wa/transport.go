// Package wa defines the boundary to the WhatsApp transport provider. The
// real socket implementation lives behind the Transport interface; the core
// only consumes an event stream and a send/logout/close surface.
package wa

import (
	"context"
	"fmt"
	"time"
)

// DisconnectReason is the transport's reason code for a closed connection.
// The values mirror the provider's status codes.
type DisconnectReason int

const (
	ReasonLoggedOut          DisconnectReason = 401
	ReasonTimedOut           DisconnectReason = 408
	ReasonMultideviceMissing DisconnectReason = 411
	ReasonConnectionClosed   DisconnectReason = 428
	ReasonConnectionReplaced DisconnectReason = 440
	ReasonBadSession         DisconnectReason = 500
	ReasonServiceUnavailable DisconnectReason = 503
	ReasonRestartRequired    DisconnectReason = 515
)

// Recoverable reports whether the session may reconnect with the same
// durable credentials. Only an explicit logout invalidates them.
func (r DisconnectReason) Recoverable() bool {
	return r != ReasonLoggedOut
}

// String returns the provider's name for the reason code
func (r DisconnectReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged-out"
	case ReasonTimedOut:
		return "timed-out"
	case ReasonMultideviceMissing:
		return "multidevice-mismatch"
	case ReasonConnectionClosed:
		return "connection-closed"
	case ReasonConnectionReplaced:
		return "connection-replaced"
	case ReasonBadSession:
		return "bad-session"
	case ReasonServiceUnavailable:
		return "service-unavailable"
	case ReasonRestartRequired:
		return "restart-required"
	default:
		return fmt.Sprintf("code-%d", int(r))
	}
}

// EventType identifies a connection lifecycle event
type EventType int

const (
	EventPairingCode EventType = iota + 1
	EventConnected
	EventDisconnected
	EventCredentials
)

// String returns a short name for the event type
func (t EventType) String() string {
	switch t {
	case EventPairingCode:
		return "pairing-code"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventCredentials:
		return "credentials"
	default:
		return "unknown"
	}
}

// Event is one item of a connection's asynchronous lifecycle stream
type Event struct {
	Type        EventType
	PairingCode string           // EventPairingCode: raw rotating pairing artifact
	Identity    string           // EventConnected: identity number of the linked account
	Reason      DisconnectReason // EventDisconnected
	Credentials []byte           // EventCredentials: updated durable credential snapshot
	At          time.Time
}

// Receipt acknowledges an accepted send
type Receipt struct {
	MessageID string
}

// Conn is one live transport connection. Logout and Close are idempotent
// from the caller's perspective; the event channel is closed when the
// connection is finally torn down.
type Conn interface {
	Send(ctx context.Context, to string, msg Message) (Receipt, error)
	Logout(ctx context.Context) error
	Close() error
	Events() <-chan Event
}

// Transport opens connections from durable credential state
type Transport interface {
	// FetchLatestVersion resolves the current protocol version. Failures
	// are tolerated by callers: an empty version opens with defaults.
	FetchLatestVersion(ctx context.Context) (string, error)
	Open(ctx context.Context, creds []byte, version string) (Conn, error)
}

// JID formats a phone number as a transport recipient address
func JID(number string) string {
	const suffix = "@s.whatsapp.net"
	if len(number) > len(suffix) && number[len(number)-len(suffix):] == suffix {
		return number
	}
	return number + suffix
}
