// Package xnet holds the listeners the server and its tests accept on.
package xnet

import (
	"context"
	"net"

	"google.golang.org/grpc/test/bufconn"
)

// ListenerDialer is a listener that can also dial itself.
type ListenerDialer interface {
	net.Listener
	Dial(ctx context.Context, network, addr string) (net.Conn, error)
}

// memBufferSize holds one full sized transport packet in each direction.
const memBufferSize = 35000

type mem struct {
	*bufconn.Listener
}

// NewMem creates an in-memory ListenerDialer. Dial blocks until the
// connection is accepted, so accept on another goroutine.
func NewMem() ListenerDialer {
	return &mem{Listener: bufconn.Listen(memBufferSize)}
}

// Dial ignores network and addr.
func (m *mem) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	return m.Listener.DialContext(ctx)
}
