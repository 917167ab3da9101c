package sshtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/jpillora/foxssh/sshd"
	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/key"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/sshtest/log"
	"golang.org/x/crypto/ssh"
)

// Server represents an SSH server for testing.
type Server interface {
	// Start starts the server. Must be called before connecting clients.
	Start(ctx context.Context) error

	// Stop stops the server and waits for every connection to close.
	Stop() error

	// Addr returns the full address (host:port) of the server.
	Addr() string

	// Host returns the host the server is listening on.
	Host() string

	// Port returns the port the server is listening on.
	Port() int

	// AddAuthorizedKey adds a public key for authentication.
	AddAuthorizedKey(name string, key ssh.PublicKey)

	// HostKey returns the server's RSA host key.
	HostKey() ssh.PublicKey

	// Events returns the event bus for this server.
	Events() *EventBus
}

// ServerOption configures a server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sshd.Config
	passwords  map[string]string
	noAuth     bool
	logCapture *log.Capture
	events     *EventBus
}

func defaultServerConfig() *serverConfig {
	return &serverConfig{
		Config: sshd.Config{
			Host:     "127.0.0.1",
			Port:     "0", // auto-assign
			Shell:    "sh",
			KeySeed:  "test-server-key",
			LogQuiet: true,
		},
		passwords: map[string]string{},
	}
}

// ServerWithPort sets the port to listen on. 0 means auto-assign.
func ServerWithPort(port int) ServerOption {
	return func(c *serverConfig) {
		c.Port = strconv.Itoa(port)
	}
}

// ServerWithHost sets the host to listen on.
func ServerWithHost(host string) ServerOption {
	return func(c *serverConfig) {
		c.Host = host
	}
}

// ServerWithShell sets the shell to use.
func ServerWithShell(shell string) ServerOption {
	return func(c *serverConfig) {
		c.Shell = shell
	}
}

// ServerWithKeySeed sets the seed for deterministic host key generation.
func ServerWithKeySeed(seed string) ServerOption {
	return func(c *serverConfig) {
		c.KeySeed = seed
	}
}

// ServerWithPassword adds password authentication for a user.
func ServerWithPassword(user, password string) ServerOption {
	return func(c *serverConfig) {
		c.passwords[user] = password
	}
}

// ServerWithNoAuth disables authentication (allows any connection).
func ServerWithNoAuth() ServerOption {
	return func(c *serverConfig) {
		c.noAuth = true
		c.AuthType = "none"
	}
}

// ServerWithBanner sets the banner shown before authentication.
func ServerWithBanner(banner string) ServerOption {
	return func(c *serverConfig) {
		c.Banner = banner
	}
}

// ServerWithPTYHandler serves terminal sessions with h instead of a shell.
func ServerWithPTYHandler(h sshd.PTYHandler) ServerOption {
	return func(c *serverConfig) {
		c.PTYHandler = h
		c.Shell = ""
	}
}

// ServerWithConfig applies fn to the server configuration, for settings
// without a dedicated option.
func ServerWithConfig(fn func(c *sshd.Config)) ServerOption {
	return func(c *serverConfig) {
		fn(&c.Config)
	}
}

// ServerWithLogger sets the log capture for the server.
func ServerWithLogger(logger *log.Capture) ServerOption {
	return func(c *serverConfig) {
		c.logCapture = logger
	}
}

// ServerWithEvents sets the event bus for the server.
func ServerWithEvents(events *EventBus) ServerOption {
	return func(c *serverConfig) {
		c.events = events
	}
}

// testServer wraps the sshd server for testing.
type testServer struct {
	config   *serverConfig
	server   *sshd.Server
	listener net.Listener
	events   *EventBus
	hostKey  ssh.PublicKey

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
	authKeys map[string]ssh.PublicKey
}

// NewServer creates a new test server with the given options.
func NewServer(opts ...ServerOption) (Server, error) {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	s := &testServer{
		config:   cfg,
		authKeys: map[string]ssh.PublicKey{},
		doneCh:   make(chan struct{}),
		events:   cfg.events,
	}
	if s.events == nil {
		s.events = NewEventBus()
	}
	return s, nil
}

// AddAuthorizedKey adds a public key for authentication.
func (s *testServer) AddAuthorizedKey(name string, key ssh.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authKeys[name] = key
}

// Start starts the server.
func (s *testServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.mu.Unlock()

	cfg := s.config.Config
	if len(cfg.HostKeys) == 0 {
		keys, err := hostKeys(cfg.KeySeed)
		if err != nil {
			return err
		}
		cfg.HostKeys = keys
	}
	if cfg.AuthHandler == nil {
		cfg.AuthHandler = s.authenticate
	}
	onConnect, onDisconnect := cfg.OnConnect, cfg.OnDisconnect
	cfg.OnConnect = func(c *sshd.Conn) {
		s.events.Emit("conn.opened", "remote", c.RemoteAddr().String())
		if onConnect != nil {
			onConnect(c)
		}
	}
	cfg.OnDisconnect = func(c *sshd.Conn, reason message.DisconnectReason, err error) {
		attrs := []string{"remote", c.RemoteAddr().String(), "user", c.User(), "reason", reason.String()}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		s.events.Emit("conn.closed", attrs...)
		if onDisconnect != nil {
			onDisconnect(c, reason, err)
		}
	}
	if s.config.logCapture != nil {
		cfg.Logger = s.config.logCapture.Logger()
		cfg.LogQuiet = false
		cfg.LogVerbose = true
	}
	server, err := sshd.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	s.server = server
	for _, k := range server.HostKeys() {
		if k.Name() == algo.HostKeyRSA {
			if s.hostKey, err = ssh.ParsePublicKey(k.PublicBlob()); err != nil {
				return err
			}
		}
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.doneCh)
		s.server.StartWithContext(ctx, s.listener)
	}()
	s.events.Emit("server.started", "addr", s.Addr())
	return nil
}

// authenticate accepts configured passwords and authorized keys, and
// anyone when authentication is disabled. It is replaced by an
// AuthHandler set through ServerWithConfig.
func (s *testServer) authenticate(req *sshd.AuthRequest) bool {
	ok := false
	switch req.Method {
	case message.MethodNone:
		ok = s.config.noAuth
	case message.MethodPassword:
		want, found := s.config.passwords[req.Username]
		ok = s.config.noAuth || (found && want == req.Password)
	case message.MethodPublicKey:
		s.mu.Lock()
		for _, k := range s.authKeys {
			if bytes.Equal(k.Marshal(), req.PublicKey.Marshal()) {
				ok = true
			}
		}
		s.mu.Unlock()
	}
	result := "rejected"
	switch {
	case ok && req.Method == message.MethodPublicKey && !req.Signed:
		result = "queried"
	case ok:
		result = "accepted"
	}
	s.events.Emit("auth", "user", req.Username, "method", req.Method, "result", result)
	return ok
}

// Stop stops the server.
func (s *testServer) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started || s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.doneCh
	s.events.Emit("server.stopped")
	return nil
}

// Addr returns the full address.
func (s *testServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Host returns the host.
func (s *testServer) Host() string {
	return s.config.Host
}

// Port returns the port.
func (s *testServer) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// HostKey returns the server's host key.
func (s *testServer) HostKey() ssh.PublicKey {
	return s.hostKey
}

// Events returns the event bus.
func (s *testServer) Events() *EventBus {
	return s.events
}

// host keys take a while to generate, so each seed is generated once
// per test binary.
var keyCache = struct {
	sync.Mutex
	keys map[string][]algo.HostKey
}{keys: map[string][]algo.HostKey{}}

const testKeyBits = 2048

func hostKeys(seed string) ([]algo.HostKey, error) {
	keyCache.Lock()
	defer keyCache.Unlock()
	if keys, ok := keyCache.keys[seed]; ok {
		return keys, nil
	}
	rsaKey, dssKey, err := key.GenerateHostKeys(seed, testKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host keys: %w", err)
	}
	keys := []algo.HostKey{rsaKey, dssKey}
	if seed != "" {
		keyCache.keys[seed] = keys
	}
	return keys, nil
}
