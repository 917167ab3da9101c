//go:build unix

package sshd

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func init() {
	startPTY = func(cmd *exec.Cmd) (ptyFile, error) {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		if _, err := term.MakeRaw(int(f.Fd())); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}
}

// SetWinsize sets the size of the given pty.
func SetWinsize(t FdHolder, w, h uint32) {
	if f, ok := t.(*os.File); ok {
		// the terminal keeps its previous size on error
		pty.Setsize(f, &pty.Winsize{Rows: uint16(h), Cols: uint16(w)})
	}
}

// setSysProcAttr makes the shell a session leader with the pty as its
// controlling terminal.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
}

// isPTYClosed reports the EIO a pty master returns once the shell side
// has gone.
func isPTYClosed(err error) bool {
	return errors.Is(err, unix.EIO)
}
