package sshd

import (
	"errors"
	"sync"

	"github.com/jpillora/foxssh/sshd/mux"
)

// Session represents an active SSH session with its associated state.
type Session struct {
	conn *Conn

	Channel *mux.Channel
	Env     []string

	mu      sync.Mutex
	pty     *PTY
	running bool
	onClose []func()
}

// Conn returns the connection the session belongs to.
func (s *Session) Conn() *Conn {
	return s.conn
}

// PTY returns the pseudo terminal requested for the session, if any.
func (s *Session) PTY() *PTY {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pty
}

func (s *Session) setPTY(p *PTY) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pty != nil {
		return errors.New("pty already allocated")
	}
	s.pty = p
	return nil
}

// start marks the session as running a shell; it fails if one is
// already running.
func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("session already started")
	}
	s.running = true
	return nil
}

// OnClose registers fn to run once the session channel has closed.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

func (s *Session) closed() {
	s.mu.Lock()
	fns := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	s.Debugf("Session channel %d closed", s.Channel.ID())
}

// Debugf logs a debug message for this session.
func (s *Session) Debugf(f string, args ...interface{}) {
	s.conn.debugf(f, args...)
}

// Errorf logs an error message for this session.
func (s *Session) Errorf(f string, args ...interface{}) {
	s.conn.errorf(f, args...)
}

// Config returns the server configuration.
func (s *Session) Config() Config {
	return s.conn.server.config
}
