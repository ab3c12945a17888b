package wa

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTransport is an in-process transport for development and tests. Opened
// connections are scriptable through the Emit helpers on MockConn.
type MockTransport struct {
	mu         sync.Mutex
	conns      []*MockConn
	Version    string
	VersionErr error
	OpenErr    error

	// AutoConnect makes every opened connection immediately emit a pairing
	// code followed by a connected event.
	AutoConnect bool
	Identity    string
}

func NewMockTransport() *MockTransport {
	return &MockTransport{Version: "2.3000.0", AutoConnect: true, Identity: "6281200000001"}
}

func (t *MockTransport) FetchLatestVersion(ctx context.Context) (string, error) {
	if t.VersionErr != nil {
		return "", t.VersionErr
	}
	return t.Version, nil
}

func (t *MockTransport) Open(ctx context.Context, creds []byte, version string) (Conn, error) {
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	c := &MockConn{
		events: make(chan Event, 16),
		creds:  creds,
	}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()

	if t.AutoConnect {
		if len(creds) == 0 {
			c.EmitPairingCode("MOCK-CODE-1234")
		}
		c.EmitConnected(t.Identity)
	}
	return c, nil
}

// Conns returns every connection opened so far, in order
func (t *MockTransport) Conns() []*MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*MockConn, len(t.conns))
	copy(out, t.conns)
	return out
}

// LastConn returns the most recently opened connection, or nil
func (t *MockTransport) LastConn() *MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// SentMessage records one accepted send on a mock connection
type SentMessage struct {
	To      string
	Message Message
}

// MockConn is a scriptable in-process connection
type MockConn struct {
	mu        sync.Mutex
	events    chan Event
	closed    bool
	loggedOut bool
	creds     []byte
	sent      []SentMessage
	SendErr   error
	LogoutErr error
}

func (c *MockConn) Send(ctx context.Context, to string, msg Message) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Receipt{}, fmt.Errorf("connection closed")
	}
	if c.SendErr != nil {
		return Receipt{}, c.SendErr
	}
	c.sent = append(c.sent, SentMessage{To: to, Message: msg})
	return Receipt{MessageID: fmt.Sprintf("mock-%d", len(c.sent))}, nil
}

func (c *MockConn) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LogoutErr != nil {
		return c.LogoutErr
	}
	c.loggedOut = true
	return nil
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *MockConn) Events() <-chan Event { return c.events }

// Sent returns the messages accepted by this connection
func (c *MockConn) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// LoggedOut reports whether Logout was called
func (c *MockConn) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// Closed reports whether Close was called
func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	ev.At = time.Now().UTC()
	c.events <- ev
}

func (c *MockConn) EmitPairingCode(code string) {
	c.emit(Event{Type: EventPairingCode, PairingCode: code})
}

func (c *MockConn) EmitConnected(identity string) {
	c.emit(Event{Type: EventConnected, Identity: identity})
}

func (c *MockConn) EmitDisconnected(reason DisconnectReason) {
	c.emit(Event{Type: EventDisconnected, Reason: reason})
}

func (c *MockConn) EmitCredentials(blob []byte) {
	c.emit(Event{Type: EventCredentials, Credentials: blob})
}
