//go:build !pam

package sshd

import "errors"

func (s *Server) pamCallback() (AuthHandler, error) {
	return nil, errors.New("pam authentication requires a build with -tags pam")
}
