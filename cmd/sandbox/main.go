// Command sandbox is a demo server that echoes every keystroke back to
// the terminal of anyone who knows the password.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/jpillora/foxssh/sshd"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/opts"
)

var version = "0.0.0-src" //set via ldflags

const password = "hourglass"

type config struct {
	Host       string `opts:"help=listening interface (defaults to all)"`
	Port       string `opts:"short=p,help=listening port (defaults to 22 then fallsback to 2200)"`
	KeyFile    string `opts:"name=keyfile,help=a filepath to the host key store (created on first run)"`
	KeySeed    string `opts:"name=keyseed,env,help=a string to use to seed key generation"`
	LogVerbose bool   `opts:"name=verbose,short=v,help=verbose logs"`
}

func main() {
	c := config{}
	opts.New(&c).
		Name("sandbox").
		Version(version).
		Summary("the FoxSSH sandbox server, log in with password " + password).
		Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	s, err := sshd.NewServer(sandbox(sshd.Config{
		Host:       c.Host,
		Port:       c.Port,
		KeyFile:    c.KeyFile,
		KeySeed:    c.KeySeed,
		LogVerbose: c.LogVerbose,
	}))
	if err != nil {
		log.Fatal(err)
	}
	if err := s.StartContext(ctx); err != nil {
		log.Fatal(err)
	}
}

// sandbox configures c to serve the echo terminal.
func sandbox(c sshd.Config) sshd.Config {
	var sessions atomic.Int64
	c.Shell = ""
	c.AuthHandler = authenticate
	c.PTYHandler = echo
	c.OnConnect = func(conn *sshd.Conn) {
		conn.Logger().Info(fmt.Sprintf("Connected (%d sessions)", sessions.Add(1)))
	}
	c.OnDisconnect = func(conn *sshd.Conn, _ message.DisconnectReason, _ error) {
		conn.Logger().Info(fmt.Sprintf("Disconnected (%d sessions)", sessions.Add(-1)))
	}
	return c
}

func authenticate(req *sshd.AuthRequest) bool {
	req.Banner = fmt.Sprintf("Welcome %s,\n\nYou have reached The FoxSSH Sandbox Server.\n\nPlease login...\n\n", req.Username)
	req.IsSupportedMethod = req.Method == message.MethodPassword
	return req.IsSupportedMethod && req.Password == password
}

func echo(sess *sshd.Session, pty *sshd.PTY) {
	pty.Clear()
	pty.OnData(func(data []byte) {
		pty.Write(data)
	})
}
