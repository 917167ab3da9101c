package sshd

import (
	"io"
	"os/exec"
	"strings"
)

// ptyFile is the controlling side of an operating system pseudo
// terminal.
type ptyFile interface {
	io.ReadWriteCloser
	FdHolder
}

// FdHolder is an interface for types that can return their file descriptor.
type FdHolder interface {
	Fd() uintptr
}

// startPTY starts a command with a PTY attached. It stays nil on
// platforms without pty support.
var startPTY func(*exec.Cmd) (ptyFile, error)

func appendEnv(env []string, kv string) []string {
	p := strings.SplitN(kv, "=", 2)
	k := p[0] + "="
	for i, e := range env {
		if strings.HasPrefix(e, k) {
			env[i] = kv
			return env
		}
	}
	return append(env, kv)
}

func hasEnv(env []string, key string) bool {
	k := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, k) {
			return true
		}
	}
	return false
}
