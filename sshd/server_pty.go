package sshd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/mux"
	"golang.org/x/sync/errgroup"
)

// handlePtyReq handles "pty-req" session requests
func handlePtyReq(sess *Session, req *Request) error {
	p, err := message.ParsePtyRequest(req.Payload)
	if err != nil {
		return err
	}
	pty := newPTY(sess, p)
	if err := sess.setPTY(pty); err != nil {
		return err
	}
	if p.Term != "" {
		sess.Env = appendEnv(sess.Env, "TERM="+p.Term)
	}
	sess.Debugf("PTY ready (%s %dx%d)", p.Term, p.Cols, p.Rows)
	if h := sess.Config().PTYHandler; h != nil {
		if err := req.Reply(true, nil); err != nil {
			return err
		}
		go h(sess, pty)
	}
	return nil
}

// handleWindowChange handles "window-change" session requests
func handleWindowChange(sess *Session, req *Request) error {
	wc, err := message.ParseWindowChange(req.Payload)
	if err != nil {
		return err
	}
	pty := sess.PTY()
	if pty == nil {
		return errors.New("window-change without pty")
	}
	pty.resize(Size{Cols: wc.Cols, Rows: wc.Rows, WidthPx: wc.WidthPx, HeightPx: wc.HeightPx})
	return nil
}

// handleEnv handles "env" session requests
func handleEnv(sess *Session, req *Request) error {
	e, err := message.ParseEnv(req.Payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal env: %w", err)
	}
	kv := e.Name + "=" + e.Value
	sess.Debugf("env: %s", kv)
	if !sess.Config().IgnoreEnv {
		sess.Env = appendEnv(sess.Env, kv)
	}
	return nil
}

// handleShell handles "shell" session requests
func handleShell(sess *Session, req *Request) error {
	if err := sess.start(); err != nil {
		return err
	}
	if sess.Config().PTYHandler != nil {
		// the pty handler owns the session i/o
		return nil
	}
	return attachShell(sess, req)
}

// attachShell attaches a shell to the session. req is accepted once the
// shell is running and before any of its output reaches the channel.
func attachShell(sess *Session, req *Request) error {
	if startPTY == nil {
		return fmt.Errorf("shell sessions are not supported on %s", runtime.GOOS)
	}
	cfg := sess.Config()
	if cfg.Shell == "" {
		return errors.New("no shell configured")
	}
	args := []string{}
	switch filepath.Base(cfg.Shell) {
	case "bash", "fish":
		args = append(args, "-l")
	}
	shell := exec.Command(cfg.Shell, args...)
	setSysProcAttr(shell)
	if cfg.WorkDir != "" {
		shell.Dir = cfg.WorkDir
	}
	if !hasEnv(sess.Env, "TERM") {
		sess.Env = append(sess.Env, "TERM=xterm-256color")
	}
	shell.Env = sess.Env

	// start a shell for this channel's connection
	shellf, err := startPTY(shell)
	if err != nil {
		return fmt.Errorf("could not start pty: %w", err)
	}
	if pty := sess.PTY(); pty != nil {
		size := pty.Size()
		SetWinsize(shellf, size.Cols, size.Rows)
		pty.OnResize(func(s Size) {
			SetWinsize(shellf, s.Cols, s.Rows)
		})
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			stopProcess(sess, shell.Process)
			shellf.Close()
		})
	}
	sess.OnClose(func() { go stop() })
	if err := req.Reply(true, nil); err != nil {
		stop()
		return err
	}

	// pipe session to shell and visa-versa
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(sess.Channel, shellf)
		code := exitCode(shell.Wait())
		sess.Debugf("Shell terminated (%d)", code)
		stop()
		if cerr := sess.Channel.CloseWithStatus(code); cerr != nil && !errors.Is(cerr, mux.ErrClosed) {
			sess.Debugf("Failed to close session: %s", cerr)
		}
		return ignoreClosed(err)
	})
	g.Go(func() error {
		_, err := io.Copy(shellf, sess.Channel)
		stop()
		return ignoreClosed(err)
	})
	go func() {
		if err := g.Wait(); err != nil {
			sess.Debugf("Shell copy error: %s", err)
		}
		sess.Debugf("Session closed")
	}()

	sess.Debugf("Shell attached")
	return nil
}

// stopProcess interrupts p, then kills it if it is still running.
func stopProcess(sess *Session, p *os.Process) {
	if p == nil {
		return
	}
	if err := p.Signal(os.Interrupt); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			sess.Debugf("Failed to interrupt shell: %s", err)
		}
		return
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		sess.Debugf("Failed to kill shell: %s", err)
	}
}

func exitCode(err error) uint32 {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		return uint32(exitErr.ExitCode())
	}
	return 255
}

// ignoreClosed drops the errors that mark the normal end of a copy.
func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, mux.ErrClosed) || errors.Is(err, os.ErrClosed) || isPTYClosed(err) {
		return nil
	}
	return err
}
