package transport

import (
	"net"
	"time"
)

const (
	retryAttempts = 5
	retryBackoff  = 5 * time.Millisecond
)

// retryConn retries reads and writes that fail with a transient errno,
// doubling the pause between attempts.
type retryConn struct {
	net.Conn
}

func (c retryConn) Read(p []byte) (int, error) {
	backoff := retryBackoff
	for attempt := 0; ; attempt++ {
		n, err := c.Conn.Read(p)
		if err == nil || n > 0 || !isTransient(err) || attempt == retryAttempts {
			return n, err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (c retryConn) Write(p []byte) (int, error) {
	backoff := retryBackoff
	written := 0
	for attempt := 0; ; {
		n, err := c.Conn.Write(p[written:])
		written += n
		if err == nil {
			return written, nil
		}
		if !isTransient(err) || attempt == retryAttempts {
			return written, err
		}
		attempt++
		time.Sleep(backoff)
		backoff *= 2
	}
}
