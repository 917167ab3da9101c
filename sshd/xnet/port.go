package xnet

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Listen listens for TCP on host:port. With an empty port each fallback
// port is tried in order.
func Listen(host, port string, fallbacks ...string) (net.Listener, error) {
	if port != "" {
		l, err := net.Listen("tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
		}
		return l, nil
	}
	if len(fallbacks) == 0 {
		return nil, errors.New("no port to listen on")
	}
	var errs []error
	for _, p := range fallbacks {
		l, err := net.Listen("tcp", net.JoinHostPort(host, p))
		if err == nil {
			return l, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("failed to listen on %s: %w", strings.Join(fallbacks, " and "), errors.Join(errs...))
}

// FreePort returns a local TCP port that was free when checked.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
