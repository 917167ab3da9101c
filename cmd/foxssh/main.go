package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpillora/foxssh/sshd"
	"github.com/jpillora/opts"
	"golang.org/x/sync/errgroup"
)

var version = "0.0.0-src" //set via ldflags

const summary = `foxssh is an SSH-2 server which gives authenticated
clients a shell of the current user. It does not lookup system users.

<auth> must be set to one of:
  1. a username and password string separated by a colon ("myuser:mypass")
  2. a path to an ssh authorized keys file ("~/.ssh/authorized_keys")
  3. an authorized github user ("github.com/myuser") public keys from .keys
  4. "pam" to check passwords with PAM (requires a build with -tags pam)
  5. "none" to disable client authentication :WARNING: very insecure

authorized_keys files are automatically reloaded on change.
only interactive shells are supported, command execution is not.`

func main() {
	c := sshd.Config{}
	opts.New(&c).
		Name("foxssh").
		Version(version).
		Repo("github.com/jpillora/foxssh").
		Summary(summary).
		Parse()
	if err := run(c); err != nil {
		log.Fatal(err)
	}
}

func run(c sshd.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	s, err := sshd.NewServer(c)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.StartContext(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		// a second signal kills the process
		stop()
		return nil
	})
	return g.Wait()
}
