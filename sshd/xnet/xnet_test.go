package xnet_test

import (
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/jpillora/foxssh/sshd/xnet"
)

func TestMem(t *testing.T) {
	l := xnet.NewMem()
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			t.Error(err)
		}
		accepted <- c
	}()
	client, err := l.Dial(t.Context(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server := <-accepted
	if server == nil {
		t.FailNow()
	}
	defer server.Close()
	go io.WriteString(client, "SSH-2.0-test\r\n")
	buf := make([]byte, 14)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "SSH-2.0-test\r\n" {
		t.Fatalf("got %q", buf)
	}
}

func TestListenFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	busyPort := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)
	free, err := xnet.FreePort()
	if err != nil {
		t.Fatal(err)
	}
	l, err := xnet.Listen("127.0.0.1", "", busyPort, strconv.Itoa(free))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if got := l.Addr().(*net.TCPAddr).Port; got != free {
		t.Fatalf("listening on %d, want fallback %d", got, free)
	}
	if _, err := xnet.Listen("127.0.0.1", "", busyPort); err == nil {
		t.Fatal("listened on a busy port")
	}
	if _, err := xnet.Listen("127.0.0.1", busyPort); err == nil {
		t.Fatal("listened on a busy explicit port")
	}
}
