//go:build !unix

package sshd

import "os/exec"

// SetWinsize is a no-op where no pty support is available.
func SetWinsize(t FdHolder, w, h uint32) {}

func setSysProcAttr(cmd *exec.Cmd) {}

func isPTYClosed(err error) bool { return false }
