package transport

import (
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
)

const (
	// DefaultVersion is sent as the server identification string.
	DefaultVersion = "SSH-2.0-FoxSshServer"
	// DefaultRekeyBytes is the traffic volume after which the server
	// starts a new key exchange.
	DefaultRekeyBytes = 512 << 20
	// MaxPacket is the largest packet accepted from a peer.
	MaxPacket = 256 << 10

	defaultHandshakeTimeout = 30 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	maxVersionLength        = 255
	maxQueued               = 4096
)

// Config holds the per session transport parameters.
type Config struct {
	// ServerVersion defaults to DefaultVersion.
	ServerVersion string
	// HostKeys must hold at least one key. The host key algorithms
	// offered are the names of these keys.
	HostKeys []algo.HostKey
	// Preference lists, defaulting to the algo package tables.
	KeyExchanges []string
	Ciphers      []string
	MACs         []string
	Compressions []string
	// RekeyBytes defaults to DefaultRekeyBytes.
	RekeyBytes uint64
	// HandshakeTimeout bounds the time until the first keys are active.
	HandshakeTimeout time.Duration
	// ReadTimeout is the idle limit once active. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds each packet write.
	WriteTimeout time.Duration
	// KeepAlive sends an ignore message at this interval. Zero disables it.
	KeepAlive time.Duration
	Logger    *slog.Logger
	Rand      io.Reader
	// OnDisconnect is called once when the session terminates. err is nil
	// for a graceful close.
	OnDisconnect func(reason message.DisconnectReason, err error)
}

func (c Config) withDefaults() Config {
	if c.ServerVersion == "" {
		c.ServerVersion = DefaultVersion
	}
	if c.KeyExchanges == nil {
		c.KeyExchanges = algo.KeyExchanges
	}
	if c.Ciphers == nil {
		c.Ciphers = algo.Ciphers
	}
	if c.MACs == nil {
		c.MACs = algo.MACs
	}
	if c.Compressions == nil {
		c.Compressions = algo.Compressions
	}
	if c.RekeyBytes == 0 {
		c.RekeyBytes = DefaultRekeyBytes
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return c
}

// validate rejects preference lists naming unknown algorithms.
func (c Config) validate() error {
	if len(c.HostKeys) == 0 {
		return &algo.ConfigError{What: "no host keys"}
	}
	check := func(what string, names, known []string) error {
		if len(names) == 0 || len(algo.Supported(names, known)) != len(names) {
			return &algo.ConfigError{What: "unsupported " + what + " list"}
		}
		return nil
	}
	if err := check("key exchange", c.KeyExchanges, algo.KeyExchanges); err != nil {
		return err
	}
	if err := check("cipher", c.Ciphers, algo.Ciphers); err != nil {
		return err
	}
	if err := check("mac", c.MACs, algo.MACs); err != nil {
		return err
	}
	return check("compression", c.Compressions, algo.Compressions)
}
