package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/wa"
)

// ErrRegistryClosed is returned once shutdown has begun
var ErrRegistryClosed = errors.New("session registry is closed")

// Config holds the registry's timing knobs
type Config struct {
	ReconnectDelay   time.Duration // base delay before automatic reconnect
	ReconnectJitter  time.Duration // upper bound of the added random jitter
	CredSaveDebounce time.Duration // quiet period before persisting credentials
	EventLogSize     int           // per-session lifecycle log capacity
}

// DefaultConfig returns the production timing defaults
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:   1500 * time.Millisecond,
		ReconnectJitter:  500 * time.Millisecond,
		CredSaveDebounce: 500 * time.Millisecond,
		EventLogSize:     32,
	}
}

// Key builds the registry key for a (tenant, device) pair. The tenant
// segment is omitted for legacy single-tenant callers.
func Key(tenant, device string) string {
	if tenant == "" {
		return device
	}
	return tenant + "::" + device
}

type inflightOpen struct {
	done chan struct{}
	sess *Session
	err  error
}

// Registry owns every live session. Ensure is idempotent and coalesces
// concurrent creation requests for the same key into a single transport
// connection.
type Registry struct {
	transport wa.Transport
	creds     *wa.FileCredentialStore
	logger    *log.Logger
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*Session
	inflight map[string]*inflightOpen
	closed   bool
}

func NewRegistry(transport wa.Transport, creds *wa.FileCredentialStore, logger *log.Logger, cfg Config) *Registry {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if cfg.CredSaveDebounce <= 0 {
		cfg.CredSaveDebounce = DefaultConfig().CredSaveDebounce
	}
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = DefaultConfig().EventLogSize
	}
	return &Registry{
		transport: transport,
		creds:     creds,
		logger:    logger,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		inflight:  make(map[string]*inflightOpen),
	}
}

// Ensure returns the live session for the pair, creating it when absent.
// Concurrent calls for the same key share one connection attempt; a failed
// attempt is not cached, so the next call retries.
func (r *Registry) Ensure(ctx context.Context, tenant, device string) (*Session, error) {
	key := Key(tenant, device)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if s := r.sessions[key]; s != nil {
		r.mu.Unlock()
		return s, nil
	}
	if fl := r.inflight[key]; fl != nil {
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-fl.done:
		}
		return fl.sess, fl.err
	}
	fl := &inflightOpen{done: make(chan struct{})}
	r.inflight[key] = fl
	r.mu.Unlock()

	sess, err := r.open(ctx, key, tenant, device)

	r.mu.Lock()
	closed := r.closed
	if err == nil && !closed {
		r.sessions[key] = sess
	}
	delete(r.inflight, key)
	r.mu.Unlock()

	if err == nil && closed {
		// shutdown won the race; the session was never registered, so
		// Close never saw it and it must be torn down here
		sess.stopCredTimer()
		_ = sess.conn.Close()
		sess, err = nil, ErrRegistryClosed
	}

	fl.sess, fl.err = sess, err
	close(fl.done)
	return sess, err
}

// Get returns the live session for the pair, or nil
func (r *Registry) Get(tenant, device string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[Key(tenant, device)]
}

// All returns a snapshot of every live session
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) open(ctx context.Context, key, tenant, device string) (*Session, error) {
	if err := r.creds.Ensure(tenant, device); err != nil {
		return nil, err
	}
	blob, err := r.creds.Load(tenant, device)
	if err != nil {
		return nil, err
	}

	version, err := r.transport.FetchLatestVersion(ctx)
	if err != nil {
		// tolerated: the transport opens with its built-in defaults
		r.logger.Printf("WARN: session %s: version fetch failed, using defaults: %v", key, err)
		version = ""
	}

	conn, err := r.transport.Open(ctx, blob, version)
	if err != nil {
		return nil, fmt.Errorf("failed to open transport for %s: %w", key, err)
	}

	s := newSession(key, tenant, device, conn, r.cfg.EventLogSize)
	go r.pump(s)
	r.logger.Printf("session %s: opened (fresh=%t)", key, len(blob) == 0)
	return s, nil
}

// pump consumes the connection's event stream until it closes
func (r *Registry) pump(s *Session) {
	defer close(s.pumpDone)
	for ev := range s.conn.Events() {
		switch ev.Type {
		case wa.EventPairingCode:
			r.handlePairingCode(s, ev.PairingCode)
		case wa.EventConnected:
			r.handleConnected(s, ev.Identity)
		case wa.EventCredentials:
			r.scheduleCredSave(s, ev.Credentials)
		case wa.EventDisconnected:
			r.handleDisconnect(s, ev.Reason)
		}
	}
	s.stopCredTimer()
}

func (r *Registry) handlePairingCode(s *Session, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		return
	}
	if code == s.lastRawCode {
		// provider re-emits the same artifact on refresh ticks
		return
	}
	s.lastRawCode = code
	s.pairingCode = code
	s.record("pairing-code", "")
}

func (r *Registry) handleConnected(s *Session, identity string) {
	s.mu.Lock()
	s.state = StateConnected
	s.identity = identity
	s.pairingCode = ""
	s.lastRawCode = ""
	s.record("connected", identity)
	s.mu.Unlock()
	r.logger.Printf("session %s: connected as %s", s.Key, identity)
}

func (r *Registry) scheduleCredSave(s *Session, blob []byte) {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	if s.credTimer != nil {
		s.credTimer.Stop()
	}
	s.credTimer = time.AfterFunc(r.cfg.CredSaveDebounce, func() {
		if err := r.creds.Save(s.Tenant, s.DeviceID, blob); err != nil {
			r.logger.Printf("ERROR: session %s: credential save failed: %v", s.Key, err)
		}
	})
}

func (r *Registry) handleDisconnect(s *Session, reason wa.DisconnectReason) {
	recoverable := reason.Recoverable()

	s.mu.Lock()
	if recoverable {
		s.state = StateDisconnected
	} else {
		s.state = StateLoggedOut
	}
	s.record("disconnected", reason.String())
	s.mu.Unlock()

	r.mu.Lock()
	owned := r.sessions[s.Key] == s
	if owned {
		delete(r.sessions, s.Key)
	}
	closed := r.closed
	r.mu.Unlock()

	if !owned {
		// explicit teardown already in progress; never reconnect
		return
	}

	s.stopCredTimer()
	_ = s.conn.Close()

	if !recoverable {
		r.logger.Printf("session %s: logged out, removing credentials", s.Key)
		if err := r.creds.Delete(s.Tenant, s.DeviceID); err != nil {
			r.logger.Printf("ERROR: session %s: credential delete failed: %v", s.Key, err)
		}
		return
	}

	if closed {
		return
	}
	delay := r.cfg.ReconnectDelay
	if r.cfg.ReconnectJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(r.cfg.ReconnectJitter)))
	}
	r.logger.Printf("session %s: disconnected (%s), reconnecting in %s", s.Key, reason, delay)
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Ensure(ctx, s.Tenant, s.DeviceID); err != nil && !errors.Is(err, ErrRegistryClosed) {
			r.logger.Printf("ERROR: session %s: reconnect failed: %v", s.Key, err)
		}
	})
}

// Remove tears a session down. Each step tolerates failure so a broken
// connection can always be cleared: pending credential saves are stopped,
// the remote side is logged out when connected, the socket is closed, and
// optionally the stored credentials are deleted. Returns whether a live
// session existed.
func (r *Registry) Remove(ctx context.Context, tenant, device string, deleteCreds bool) bool {
	key := Key(tenant, device)

	r.mu.Lock()
	s := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if s != nil {
		s.stopCredTimer()
		if s.Connected() {
			if err := s.conn.Logout(ctx); err != nil {
				r.logger.Printf("WARN: session %s: logout failed: %v", key, err)
			}
		}
		if err := s.conn.Close(); err != nil {
			r.logger.Printf("WARN: session %s: close failed: %v", key, err)
		}
		s.setState(StateLoggedOut)
	}

	if deleteCreds {
		if err := r.creds.Delete(tenant, device); err != nil {
			r.logger.Printf("WARN: session %s: credential delete failed: %v", key, err)
		}
	}
	return s != nil
}

// Close stops the registry: no new sessions are created and every live
// connection is closed. Stored credentials are kept so sessions resume on
// the next start.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.stopCredTimer()
		if err := s.conn.Close(); err != nil {
			r.logger.Printf("WARN: session %s: close failed: %v", s.Key, err)
		}
	}
}
