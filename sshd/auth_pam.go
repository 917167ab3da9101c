//go:build pam

package sshd

import (
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/msteinert/pam/v2"
)

func (s *Server) pamCallback() (AuthHandler, error) {
	s.infof("Authentication enabled (pam)")
	return func(req *AuthRequest) bool {
		if req.Method != message.MethodPassword {
			return false
		}
		if PAMAuth(req.Username, req.Password) {
			s.debugf("User '%s' authenticated with pam", req.Username)
			return true
		}
		s.debugf("Authentication failed for '%s' (pam)", req.Username)
		return false
	}, nil
}

// PAMAuth checks a password against the "sshd" PAM service.
func PAMAuth(user, password string) bool {
	t, err := pam.StartFunc("sshd", user, func(s pam.Style, msg string) (string, error) {
		switch s {
		case pam.PromptEchoOff:
			return password, nil
		default:
			return "", nil
		}
	})
	if err != nil {
		return false
	}
	defer t.End()
	return t.Authenticate(0) == nil
}
