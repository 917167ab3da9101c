package sshd

import (
	"log/slog"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/mux"
)

// Config is the configuration for the server
type Config struct {
	Host       string `opts:"help=listening interface (defaults to all)"`
	Port       string `opts:"short=p,help=listening port (defaults to 22 then fallsback to 2200)"`
	Shell      string `opts:"help=the shell to use for remote sessions,env=SHELL"`
	WorkDir    string `opts:"name=workdir,help=working directory for sessions (defaults to the current directory)"`
	KeyFile    string `opts:"name=keyfile,help=a filepath to the host key store (created on first run)"`
	KeySeed    string `opts:"name=keyseed,env,help=a string to use to seed key generation"`
	KeyBits    int    `opts:"name=keybits,help=RSA host key size used when generating keys (default 4096)"`
	AuthType   string `opts:"mode=arg,name=auth"`
	Banner     string `opts:"help=text sent to clients before authentication"`
	KeepAlive  int    `opts:"name=keepalive,help=server keep alive interval seconds (0 to disable)"`
	RekeyBytes uint64 `opts:"name=rekey-bytes,help=bytes transferred before keys are renewed (default 536870912)"`
	Window     uint32 `opts:"help=initial channel receive window in bytes (default 1048576)"`
	MaxPacket  uint32 `opts:"name=max-packet,help=largest channel data payload accepted (default 32768)"`
	IgnoreEnv  bool   `opts:"name=noenv,help=ignore environment variables provided by the client"`
	LogVerbose bool   `opts:"name=verbose,short=v,help=verbose logs"`
	LogQuiet   bool   `opts:"name=quiet,short=q,help=no logs"`
	// programmatic options
	Logger                 *slog.Logger                     `opts:"-"`
	HostKeys               []algo.HostKey                   `opts:"-"`
	AuthHandler            AuthHandler                      `opts:"-"`
	PTYHandler             PTYHandler                       `opts:"-"`
	ServiceHandlers        map[string]ServiceHandler        `opts:"-"`
	GlobalRequestHandlers  map[string]GlobalRequestHandler  `opts:"-"`
	SessionRequestHandlers map[string]SessionRequestHandler `opts:"-"`
	OnConnect              func(c *Conn)                    `opts:"-"`
	OnDisconnect           DisconnectHandler                `opts:"-"`
}

// Handler types for extensibility

// Request is a channel or global request awaiting its reply.
type Request = mux.Request

// GlobalRequestHandler handles global (connection-level) SSH requests.
// Return an error to reject the request; return nil to accept.
// Call req.Reply() to send a custom reply; otherwise auto-reply is sent.
type GlobalRequestHandler func(c *Conn, req *Request) error

// SessionRequestHandler handles requests within an SSH session.
// Return an error to reject the request; return nil to accept.
// Call req.Reply() to send a custom reply; otherwise auto-reply is sent.
type SessionRequestHandler func(sess *Session, req *Request) error

// ServiceHandler creates a custom service once a client authenticates
// for it. Return an error to refuse the service.
type ServiceHandler func(c *Conn) (Service, error)

// DisconnectHandler is called once per connection after it has closed.
// err is nil for a graceful close.
type DisconnectHandler func(c *Conn, reason message.DisconnectReason, err error)

// PTYHandler takes over a session once the client has requested a
// pseudo terminal. It runs on its own goroutine.
type PTYHandler func(sess *Session, pty *PTY)
