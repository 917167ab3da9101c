package sshtest_test

import (
	"testing"
	"time"

	"github.com/jpillora/foxssh/sshd/sshtest"
	"github.com/jpillora/foxssh/sshd/xnet"
	"golang.org/x/crypto/ssh"
)

func TestEventBus(t *testing.T) {
	eb := sshtest.NewEventBus()
	eb.Emit("auth", "user", "fox", "result", "rejected")
	go func() {
		time.Sleep(20 * time.Millisecond)
		eb.Emit("auth", "user", "fox", "result", "accepted")
	}()
	e, err := eb.Wait("auth", "user", "fox", "result", "accepted")
	if err != nil {
		t.Fatal(err)
	}
	if got := e.String(); got != "auth{result=accepted, user=fox}" {
		t.Fatalf("unexpected event %s", got)
	}
	if n := len(eb.FindAll("auth", "user", "fox")); n != 2 {
		t.Fatalf("found %d events", n)
	}
	if eb.Has("auth", "user") {
		t.Fatal("odd attrs must not match")
	}
	if _, err := eb.WaitTimeout(10*time.Millisecond, "conn.closed"); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestServerLifecycle(t *testing.T) {
	port, err := xnet.FreePort()
	if err != nil {
		t.Fatal(err)
	}
	events := sshtest.NewEventBus()
	s, err := sshtest.NewServer(
		sshtest.ServerWithPort(port),
		sshtest.ServerWithPassword("fox", "hourglass"),
		sshtest.ServerWithEvents(events),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	if s.Port() != port {
		t.Fatalf("listening on %d, want %d", s.Port(), port)
	}
	if s.HostKey() == nil || s.HostKey().Type() != ssh.KeyAlgoRSA {
		t.Fatal("missing rsa host key")
	}
	if err := s.Start(t.Context()); err == nil {
		t.Fatal("started twice")
	}
	c, err := sshtest.Dial(s, "fox", ssh.Password("hourglass"))
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if _, err := events.Wait("conn.closed", "user", "fox"); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"server.started", "conn.opened", "server.stopped"} {
		if !events.Has(id) {
			t.Errorf("missing %s event", id)
		}
	}
}
