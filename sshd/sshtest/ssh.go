package sshtest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultUser is the user name clients log in with unless told otherwise.
const DefaultUser = "test"

// ClientConfig returns a client configuration limited to the algorithms
// the server implements. A nil hostKey accepts any host key.
func ClientConfig(user string, hostKey ssh.PublicKey, auth ...ssh.AuthMethod) *ssh.ClientConfig {
	callback := ssh.InsecureIgnoreHostKey()
	if hostKey != nil {
		callback = ssh.FixedHostKey(hostKey)
	}
	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: []string{"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1"},
			Ciphers:      []string{"aes128-ctr", "aes256-ctr", "aes128-cbc", "3des-cbc"},
			MACs:         []string{"hmac-sha1"},
		},
		User:              user,
		Auth:              auth,
		HostKeyAlgorithms: []string{ssh.KeyAlgoRSA},
		HostKeyCallback:   callback,
		Timeout:           5 * time.Second,
	}
}

// CreateSSHClient creates an SSH client connection to the given address.
// Without auth methods the client only tries "none".
func CreateSSHClient(addr string, auth ...ssh.AuthMethod) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, ClientConfig(DefaultUser, nil, auth...))
}

// Dial connects to s as user, verifying the server's host key.
func Dial(s Server, user string, auth ...ssh.AuthMethod) (*ssh.Client, error) {
	return ssh.Dial("tcp", s.Addr(), ClientConfig(user, s.HostKey(), auth...))
}

// ClientKey derives an ed25519 client key from seed.
func ClientKey(seed string) (ssh.Signer, error) {
	sum := sha256.Sum256([]byte(seed))
	return ssh.NewSignerFromKey(ed25519.NewKeyFromSeed(sum[:]))
}
