package sshd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/transport"
)

// Service names (RFC 4253 section 10).
const (
	ServiceUserauth   = "ssh-userauth"
	ServiceConnection = "ssh-connection"
)

// Service is a protocol running over an authenticated transport.
type Service interface {
	Name() string
	// HandleMessage reports whether the message belonged to the service.
	// An error terminates the connection.
	HandleMessage(m message.Message) (bool, error)
	Close()
}

// Conn is one client connection: its transport session and the
// services registered on it.
type Conn struct {
	server  *Server
	session *transport.Session
	log     *slog.Logger

	mu       sync.Mutex
	user     string
	services []Service
	closed   bool
}

// HandleConn handles a new TCP connection
func (s *Server) HandleConn(conn net.Conn) {
	s.HandleConnContext(context.Background(), conn)
}

// HandleConnContext serves conn until the client leaves or ctx is
// cancelled. A graceful close returns nil.
func (s *Server) HandleConnContext(ctx context.Context, conn net.Conn) error {
	c := &Conn{server: s}
	tc := s.transportConfig()
	tc.Logger = s.config.Logger.With("remote", conn.RemoteAddr().String())
	tc.OnDisconnect = func(reason message.DisconnectReason, err error) {
		if h := s.config.OnDisconnect; h != nil {
			h(c, reason, err)
		}
	}
	session, err := transport.New(conn, tc)
	if err != nil {
		conn.Close()
		s.errorf("Failed to create session (%s)", err)
		return err
	}
	c.session = session
	c.log = session.Logger()
	s.debugf("New connection from %s", conn.RemoteAddr())
	if h := s.config.OnConnect; h != nil {
		h(c)
	}
	if err := session.Run(ctx, c); err != nil {
		s.debugf("Connection from %s failed (%s)", conn.RemoteAddr(), err)
		return err
	}
	return nil
}

// StartService answers a client service request. Only the
// authentication service may be requested directly.
func (c *Conn) StartService(name string) bool {
	if name != ServiceUserauth {
		c.debugf("Refused service request %q", name)
		return false
	}
	if c.service(ServiceUserauth) != nil {
		return true
	}
	return c.register(newAuthService(c)) == nil
}

// HandleMessage routes m to the first registered service that claims it.
func (c *Conn) HandleMessage(m message.Message) (bool, error) {
	c.mu.Lock()
	services := c.services
	c.mu.Unlock()
	for _, svc := range services {
		if ok, err := svc.HandleMessage(m); ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

// Close stops every registered service.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	services := c.services
	c.mu.Unlock()
	for _, svc := range services {
		svc.Close()
	}
}

// startService activates the service a client has authenticated for.
func (c *Conn) startService(name string) error {
	var svc Service
	if name == ServiceConnection {
		svc = newConnService(c)
	} else if h, ok := c.server.serviceHandlers[name]; ok {
		s, err := h(c)
		if err != nil {
			return fmt.Errorf("service %s refused: %w", name, err)
		}
		svc = s
	} else {
		return fmt.Errorf("unknown service %s", name)
	}
	return c.register(svc)
}

func (c *Conn) knownService(name string) bool {
	if name == ServiceConnection {
		return true
	}
	_, ok := c.server.serviceHandlers[name]
	return ok
}

func (c *Conn) register(svc Service) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		svc.Close()
		return transport.ErrClosed
	}
	c.services = append(c.services, svc)
	c.mu.Unlock()
	c.debugf("Service %s started", svc.Name())
	return nil
}

func (c *Conn) service(name string) Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, svc := range c.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

// Send writes m to the client.
func (c *Conn) Send(m message.Message) error {
	return c.session.Send(m)
}

// Disconnect closes the connection with the given reason.
func (c *Conn) Disconnect(reason message.DisconnectReason, description string) {
	c.session.Disconnect(reason, description)
}

// User is the authenticated user name, empty until authentication
// succeeds.
func (c *Conn) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Conn) setUser(user string) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}

func (c *Conn) Session() *transport.Session { return c.session }

func (c *Conn) RemoteAddr() net.Addr { return c.session.RemoteAddr() }

func (c *Conn) Logger() *slog.Logger { return c.log }

func (c *Conn) debugf(f string, args ...interface{}) {
	c.server.logf(c.log, slog.LevelDebug, f, args...)
}

func (c *Conn) infof(f string, args ...interface{}) {
	c.server.logf(c.log, slog.LevelInfo, f, args...)
}

func (c *Conn) errorf(f string, args ...interface{}) {
	c.server.logf(c.log, slog.LevelError, f, args...)
}

func (s *Server) logf(l *slog.Logger, level slog.Level, f string, args ...interface{}) {
	if !s.config.LogQuiet {
		l.Log(context.Background(), level, fmt.Sprintf(f, args...))
	}
}
