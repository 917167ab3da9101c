package sshd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/key"
	"github.com/jpillora/foxssh/sshd/transport"
	"github.com/jpillora/foxssh/sshd/xnet"
	"github.com/jpillora/jplog"
	"golang.org/x/sync/errgroup"
)

// Server is a simple SSH Daemon
type Server struct {
	config                 Config
	hostKeys               []algo.HostKey
	auth                   AuthHandler
	globalRequestHandlers  map[string]GlobalRequestHandler
	sessionRequestHandlers map[string]SessionRequestHandler
	serviceHandlers        map[string]ServiceHandler
}

// NewServer creates a new Server
func NewServer(c Config) (*Server, error) {
	if l := c.Logger; l == nil {
		if c.LogQuiet {
			l = slog.New(slog.DiscardHandler)
		} else {
			h := jplog.Handler(os.Stdout)
			if c.LogVerbose {
				h = h.Verbose()
			}
			l = slog.New(h)
		}
		c.Logger = l
	}
	s := &Server{config: c}
	if err := s.computeShell(); err != nil {
		return nil, err
	}
	if err := s.computeHostKeys(); err != nil {
		return nil, err
	}
	if s.config.AuthHandler != nil {
		s.auth = s.config.AuthHandler
	} else {
		auth, err := s.computeAuthHandler()
		if err != nil {
			return nil, err
		}
		s.auth = auth
	}
	// initialize handler maps
	s.globalRequestHandlers = map[string]GlobalRequestHandler{}
	s.sessionRequestHandlers = map[string]SessionRequestHandler{}
	s.serviceHandlers = map[string]ServiceHandler{}
	// register built-in session handlers
	s.sessionRequestHandlers["pty-req"] = handlePtyReq
	s.sessionRequestHandlers["window-change"] = handleWindowChange
	s.sessionRequestHandlers["env"] = handleEnv
	s.sessionRequestHandlers["shell"] = handleShell
	// merge custom handlers from config (fail on clash with built-in)
	for name, h := range c.GlobalRequestHandlers {
		s.globalRequestHandlers[name] = h
	}
	for name, h := range c.SessionRequestHandlers {
		if _, exists := s.sessionRequestHandlers[name]; exists {
			return nil, fmt.Errorf("session request handler %q already registered", name)
		}
		s.sessionRequestHandlers[name] = h
	}
	for name, h := range c.ServiceHandlers {
		if name == ServiceUserauth || name == ServiceConnection {
			return nil, fmt.Errorf("service handler %q already registered", name)
		}
		s.serviceHandlers[name] = h
	}
	return s, nil
}

func (s *Server) computeShell() error {
	if s.config.Shell == "" {
		if s.config.PTYHandler != nil {
			// sessions are served by the handler
			return nil
		}
		s.config.Shell = "bash"
	}
	p, err := exec.LookPath(s.config.Shell)
	if err != nil {
		return fmt.Errorf("failed to find shell: %s", s.config.Shell)
	}
	s.config.Shell = p
	s.debugf("Session shell %s", s.config.Shell)
	return nil
}

func (s *Server) computeHostKeys() error {
	switch {
	case len(s.config.HostKeys) > 0:
		s.hostKeys = s.config.HostKeys
		s.infof("Key from config")
	case s.config.KeyFile != "":
		store, created, err := key.LoadOrCreate(s.config.KeyFile, s.config.KeySeed, s.config.KeyBits)
		if err != nil {
			return fmt.Errorf("failed to load keyfile: %w", err)
		}
		if created {
			s.infof("Generated key file %s", s.config.KeyFile)
		} else {
			s.infof("Key from file %s (generated %s)", s.config.KeyFile, store.Generated.Format(time.DateOnly))
		}
		keys, err := store.HostKeys()
		if err != nil {
			return fmt.Errorf("failed to parse keyfile: %w", err)
		}
		s.hostKeys = keys
	default:
		if s.config.KeySeed == "" {
			s.infof("Key from system rng")
		} else {
			s.infof("Key from seed")
		}
		rsaKey, dssKey, err := key.GenerateHostKeys(s.config.KeySeed, s.config.KeyBits)
		if err != nil {
			return fmt.Errorf("failed to generate private key: %w", err)
		}
		s.hostKeys = []algo.HostKey{rsaKey, dssKey}
	}
	for _, k := range s.hostKeys {
		s.infof("%s key fingerprint is %s", k.Name(), k.Fingerprint())
	}
	return nil
}

// HostKeys returns the keys the server identifies itself with.
func (s *Server) HostKeys() []algo.HostKey {
	return s.hostKeys
}

func (s *Server) transportConfig() transport.Config {
	return transport.Config{
		HostKeys:   s.hostKeys,
		RekeyBytes: s.config.RekeyBytes,
		KeepAlive:  time.Duration(s.config.KeepAlive) * time.Second,
		Logger:     s.config.Logger,
	}
}

// Start listening on port
func (s *Server) Start() error {
	return s.StartContext(context.Background())
}

// StartContext listening on port with context
func (s *Server) StartContext(ctx context.Context) error {
	l, err := xnet.Listen(s.config.Host, s.config.Port, "22", "2200")
	if err != nil {
		return err
	}
	return s.StartWithContext(ctx, l)
}

// StartWith starts the server with the provided listener.
// Ignores the Host and Port in the config.
func (s *Server) StartWith(l net.Listener) error {
	return s.StartWithContext(context.Background(), l)
}

// StartWithContext starts the server with the provided listener and context.
// The server will close when the context is cancelled, disconnecting
// every live session before it returns.
// Ignores the Host and Port in the config.
func (s *Server) StartWithContext(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	s.infof("Listening on %s...", l.Addr())
	// Close listener when context is cancelled
	g.Go(func() error {
		<-ctx.Done()
		s.infof("Closing server")
		l.Close()
		return nil
	})
	// Accept all connections
	g.Go(func() error {
		defer cancel()
		for {
			conn, err := l.Accept()
			if err != nil {
				// Expected error when stopping
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.errorf("Failed to accept incoming connection (%s)", err)
				continue
			}
			tuneConn(conn)
			g.Go(func() error {
				s.HandleConnContext(ctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

// tuneConn disables Nagle's algorithm and sizes the socket buffers to
// hold two full packets.
func tuneConn(c net.Conn) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetNoDelay(true)
	tc.SetReadBuffer(2 * transport.MaxPacket)
	tc.SetWriteBuffer(2 * transport.MaxPacket)
}

func (s *Server) debugf(f string, args ...interface{}) {
	if !s.config.LogQuiet {
		// debug logs only emit if enabled on the slogger (verbose is enabled)
		s.config.Logger.Debug(fmt.Sprintf(f, args...))
	}
}

func (s *Server) infof(f string, args ...interface{}) {
	if !s.config.LogQuiet {
		s.config.Logger.Info(fmt.Sprintf(f, args...))
	}
}

func (s *Server) errorf(f string, args ...interface{}) {
	if !s.config.LogQuiet {
		s.config.Logger.Error(fmt.Sprintf(f, args...))
	}
}
