// Package session manages the registry of live transport connections, one
// per (tenant, device) pair, including pairing, reconnection, and teardown.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/wa"
)

// ConnectionState is the lifecycle state of one session
type ConnectionState int32

const (
	StatePairing ConnectionState = iota
	StateConnected
	StateDisconnected
	StateLoggedOut
)

func (s ConnectionState) String() string {
	switch s {
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// EventRecord is one entry of a session's bounded lifecycle log
type EventRecord struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Session is one live connection slot. All accessors are safe for
// concurrent use; mutation happens on the registry's event pump.
type Session struct {
	Key      string
	Tenant   string
	DeviceID string

	mu          sync.RWMutex
	state       ConnectionState
	conn        wa.Conn
	pairingCode string
	lastRawCode string
	identity    string
	events      []EventRecord
	eventCap    int

	credMu    sync.Mutex
	credTimer *time.Timer

	pumpDone chan struct{}
}

func newSession(key, tenant, device string, conn wa.Conn, eventCap int) *Session {
	if eventCap <= 0 {
		eventCap = 32
	}
	return &Session{
		Key:      key,
		Tenant:   tenant,
		DeviceID: device,
		state:    StatePairing,
		conn:     conn,
		eventCap: eventCap,
		pumpDone: make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Session) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether the session can accept sends
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// PairingCode returns the current pairing artifact, empty once connected
func (s *Session) PairingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingCode
}

// IdentityNumber returns the linked account's identity number, empty until
// the first connected event
func (s *Session) IdentityNumber() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Events returns a copy of the bounded lifecycle log, oldest first
func (s *Session) Events() []EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// Send delivers a message over the live connection
func (s *Session) Send(ctx context.Context, to string, msg wa.Message) error {
	s.mu.RLock()
	conn := s.conn
	state := s.state
	s.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return fmt.Errorf("session %s is not connected (state=%s)", s.Key, state)
	}
	if _, err := conn.Send(ctx, wa.JID(to), msg); err != nil {
		return fmt.Errorf("send to %s failed: %w", to, err)
	}
	return nil
}

func (s *Session) record(kind, detail string) {
	rec := EventRecord{At: time.Now().UTC(), Kind: kind, Detail: detail}
	if len(s.events) >= s.eventCap {
		copy(s.events, s.events[1:])
		s.events[len(s.events)-1] = rec
		return
	}
	s.events = append(s.events, rec)
}

func (s *Session) setState(state ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) stopCredTimer() {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	if s.credTimer != nil {
		s.credTimer.Stop()
		s.credTimer = nil
	}
}
