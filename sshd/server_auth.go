package sshd

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/foxssh/sshd/key"
	"github.com/jpillora/foxssh/sshd/message"
	"golang.org/x/crypto/ssh"
)

// computeAuthHandler builds the authenticator described by AuthType:
// "none", "pam", "github.com/<user>", "<user>:<pass>" or the path of an
// authorized_keys file.
func (s *Server) computeAuthHandler() (AuthHandler, error) {
	at := s.config.AuthType
	switch {
	case at == "none":
		s.infof("Authentication disabled")
		return func(*AuthRequest) bool { return true }, nil // very dangerous
	case at == "pam":
		return s.pamCallback()
	case strings.HasPrefix(at, "github.com/"):
		return s.githubCallback(strings.TrimPrefix(at, "github.com/"))
	case strings.Contains(at, ":"):
		pair := strings.SplitN(at, ":", 2)
		s.infof("Authentication enabled (user '%s')", pair[0])
		return s.passwordCallback(pair[0], pair[1]), nil
	case at != "":
		return s.fileCallback(at)
	}
	return nil, fmt.Errorf("missing auth-type")
}

func (s *Server) passwordCallback(user, pass string) AuthHandler {
	return func(req *AuthRequest) bool {
		if req.Method != message.MethodPassword {
			return false
		}
		if req.Username == user && subtle.ConstantTimeCompare([]byte(req.Password), []byte(pass)) == 1 {
			s.debugf("User '%s' authenticated with password", user)
			return true
		}
		s.debugf("Authentication failed for '%s'", req.Username)
		return false
	}
}

func (s *Server) githubCallback(username string) (AuthHandler, error) {
	s.infof("Fetching ssh public keys for github user %s", username)
	keys, err := key.GitHubKeys(username)
	if err != nil {
		return nil, err
	}
	s.infof("Authentication enabled (github keys #%d)", len(keys))
	return s.keysCallback(func() key.Map { return keys }), nil
}

func (s *Server) fileCallback(path string) (AuthHandler, error) {
	//initial key parse
	keys, last, err := loadAuthTypeFile(path, time.Time{})
	if err != nil {
		return nil, err
	}
	s.infof("Authentication enabled (public keys #%d)", len(keys))
	var mu sync.Mutex
	return s.keysCallback(func() key.Map {
		mu.Lock()
		defer mu.Unlock()
		//update keys
		if ks, t, err := loadAuthTypeFile(path, last); err == nil {
			keys = ks
			last = t
			s.debugf("Updated authorized keys")
		}
		return keys
	}), nil
}

func (s *Server) keysCallback(keys func() key.Map) AuthHandler {
	return func(req *AuthRequest) bool {
		if req.Method != message.MethodPublicKey {
			return false
		}
		return s.matchKeys(req.PublicKey, keys())
	}
}

func (s *Server) matchKeys(k ssh.PublicKey, keys key.Map) bool {
	if cmt, exists := keys.Comment(k.Marshal()); exists {
		s.debugf("User '%s' authenticated with public key %s", cmt, key.Fingerprint(k))
		return true
	}
	s.debugf("User authentication failed with public key %s", key.Fingerprint(k))
	return false
}

// loadAuthTypeFile parses the authorized keys file when it has changed
// since last.
func loadAuthTypeFile(path string, last time.Time) (key.Map, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, last, fmt.Errorf("missing auth keys file")
	}
	t := info.ModTime()
	if !t.After(last) {
		return nil, last, fmt.Errorf("not updated")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, last, err
	}
	keys, err := key.ParseKeys(b)
	if err != nil {
		return nil, last, err
	}
	return keys, t, nil
}
