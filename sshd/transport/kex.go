package transport

import (
	"fmt"
	"hash"
	"io"
	"math/big"
	"time"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/wire"
)

// DirectionAlgorithms are the algorithms chosen for one direction.
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// Algorithms is the outcome of a key exchange negotiation.
type Algorithms struct {
	Kex            string
	HostKey        string
	ClientToServer DirectionAlgorithms
	ServerToClient DirectionAlgorithms
}

// negotiate picks one algorithm per category, the first entry of the
// client list that the server also offers.
func negotiate(client, server *message.KexInit) (*Algorithms, error) {
	a := &Algorithms{}
	picks := []struct {
		what           string
		dst            *string
		client, server []string
	}{
		{"key exchange", &a.Kex, client.KexAlgorithms, server.KexAlgorithms},
		{"host key", &a.HostKey, client.HostKeyAlgorithms, server.HostKeyAlgorithms},
		{"client cipher", &a.ClientToServer.Cipher, client.CiphersClientServer, server.CiphersClientServer},
		{"server cipher", &a.ServerToClient.Cipher, client.CiphersServerClient, server.CiphersServerClient},
		{"client mac", &a.ClientToServer.MAC, client.MACsClientServer, server.MACsClientServer},
		{"server mac", &a.ServerToClient.MAC, client.MACsServerClient, server.MACsServerClient},
		{"client compression", &a.ClientToServer.Compression, client.CompressionClientServer, server.CompressionClientServer},
		{"server compression", &a.ServerToClient.Compression, client.CompressionServerClient, server.CompressionServerClient},
	}
	for _, p := range picks {
		name, ok := algo.Pick(p.client, p.server)
		if !ok {
			return nil, protocolErrorf(message.KeyExchangeFailed, "no common %s algorithm", p.what)
		}
		*p.dst = name
	}
	return a, nil
}

// guessedRight reports whether a first_kex_packet_follows guess by the
// client matches the negotiated methods.
func guessedRight(client *message.KexInit, a *Algorithms) bool {
	return len(client.KexAlgorithms) > 0 && client.KexAlgorithms[0] == a.Kex &&
		len(client.HostKeyAlgorithms) > 0 && client.HostKeyAlgorithms[0] == a.HostKey
}

// exchangeHash computes H over the transcript of the exchange
// (RFC 4253 section 8).
func exchangeHash(newHash func() hash.Hash, clientVersion, serverVersion string,
	clientInit, serverInit, hostKey []byte, e, f, k *big.Int) []byte {
	w := wire.NewWriter(1024)
	w.Text(clientVersion)
	w.Text(serverVersion)
	w.Blob(clientInit)
	w.Blob(serverInit)
	w.Blob(hostKey)
	w.MPInt(e)
	w.MPInt(f)
	w.MPInt(k)
	h := newHash()
	h.Write(w.Bytes())
	return h.Sum(nil)
}

// deriveKey expands the shared secret into n bytes of key material for
// the given letter (RFC 4253 section 7.2).
func deriveKey(newHash func() hash.Hash, k *big.Int, h, sessionID []byte, letter byte, n int) []byte {
	secret := wire.AppendMPInt(nil, k)
	d := newHash()
	d.Write(secret)
	d.Write(h)
	d.Write([]byte{letter})
	d.Write(sessionID)
	out := d.Sum(nil)
	for len(out) < n {
		d.Reset()
		d.Write(secret)
		d.Write(h)
		d.Write(out)
		out = d.Sum(out)
	}
	return out[:n]
}

// newDirections derives both directions' keys from the exchange result.
// in carries client to server traffic.
func newDirections(a *Algorithms, newHash func() hash.Hash, k *big.Int, h, sessionID []byte) (in, out *direction, err error) {
	build := func(d DirectionAlgorithms, ivLetter, keyLetter, macLetter byte, decrypt bool) (*direction, error) {
		ci, ok := algo.LookupCipher(d.Cipher)
		if !ok {
			return nil, protocolErrorf(message.KeyExchangeFailed, "unknown cipher %q", d.Cipher)
		}
		mi, ok := algo.LookupMAC(d.MAC)
		if !ok {
			return nil, protocolErrorf(message.KeyExchangeFailed, "unknown mac %q", d.MAC)
		}
		iv := deriveKey(newHash, k, h, sessionID, ivLetter, ci.BlockSize)
		key := deriveKey(newHash, k, h, sessionID, keyLetter, ci.KeySize)
		macKey := deriveKey(newHash, k, h, sessionID, macLetter, mi.KeySize)
		c, err := algo.NewCipher(ci, key, iv, decrypt)
		if err != nil {
			return nil, err
		}
		comp, err := algo.NewCompression(d.Compression)
		if err != nil {
			return nil, err
		}
		return &direction{cipher: c, mac: algo.NewMAC(mi, macKey), compression: comp}, nil
	}
	if in, err = build(a.ClientToServer, 'A', 'C', 'E', true); err != nil {
		return nil, nil, err
	}
	if out, err = build(a.ServerToClient, 'B', 'D', 'F', false); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

// startKexLocked sends our KEXINIT and enters the negotiating state.
func (s *Session) startKexLocked() error {
	init := &message.KexInit{
		KexAlgorithms:           s.config.KeyExchanges,
		HostKeyAlgorithms:       s.hostKeyNames(),
		CiphersClientServer:     s.config.Ciphers,
		CiphersServerClient:     s.config.Ciphers,
		MACsClientServer:        s.config.MACs,
		MACsServerClient:        s.config.MACs,
		CompressionClientServer: s.config.Compressions,
		CompressionServerClient: s.config.Compressions,
	}
	if _, err := io.ReadFull(s.config.Rand, init.Cookie[:]); err != nil {
		return fmt.Errorf("transport: kex cookie: %w", err)
	}
	payload := message.Marshal(init)
	s.pending = &pendingKex{server: init, serverInit: payload}
	s.state.Store(int32(StateNegotiating))
	return s.writeLocked(payload)
}

func (s *Session) hostKeyNames() []string {
	var names []string
	for _, k := range s.config.HostKeys {
		if s.hostKeys[k.Name()] == k {
			names = append(names, k.Name())
		}
	}
	return names
}

func (s *Session) handleKexInit(m *message.KexInit, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		// the peer started a rekey
		if err := s.startKexLocked(); err != nil {
			return err
		}
	}
	p := s.pending
	if p.client != nil {
		return protocolErrorf(message.ProtocolError, "duplicate kexinit")
	}
	p.client, p.clientInit = m, payload
	algs, err := negotiate(m, p.server)
	if err != nil {
		return err
	}
	p.algs = algs
	p.ignoreNext = m.FirstKexFollows && !guessedRight(m, algs)
	s.state.Store(int32(StateExchanging))
	s.debugf("Negotiated kex=%s hostkey=%s cipher=%s/%s mac=%s/%s",
		algs.Kex, algs.HostKey,
		algs.ClientToServer.Cipher, algs.ServerToClient.Cipher,
		algs.ClientToServer.MAC, algs.ServerToClient.MAC)
	return nil
}

// dropWrongGuess consumes the packet a client sends for its guessed key
// exchange when the guess was wrong. It runs before decoding because the
// packet belongs to another method and need not parse as ours.
func (s *Session) dropWrongGuess(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	if t := message.Type(payload[0]); t < message.TypeKexDHInit || t > 49 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	if p == nil || !p.ignoreNext {
		return false
	}
	p.ignoreNext = false
	s.debugf("Dropped kex packet %d after a wrong guess", payload[0])
	return true
}

func (s *Session) handleKexDHInit(m *message.KexDHInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	if p == nil || p.algs == nil || p.newKeysSent {
		return protocolErrorf(message.ProtocolError, "unexpected kexdh-init")
	}
	kex, ok := algo.LookupKex(p.algs.Kex)
	if !ok {
		return protocolErrorf(message.KeyExchangeFailed, "unknown key exchange %q", p.algs.Kex)
	}
	dh, err := kex.NewExchange(s.config.Rand)
	if err != nil {
		return err
	}
	k, err := dh.DecryptExchange(m.E)
	if err != nil {
		return protocolErrorf(message.KeyExchangeFailed, "%v", err)
	}
	f := dh.CreateExchange()
	hostKey := s.hostKeys[p.algs.HostKey]
	blob := hostKey.PublicBlob()
	h := exchangeHash(kex.Hash, s.clientVersion, s.config.ServerVersion, p.clientInit, p.serverInit, blob, m.E, f, k)
	if s.sessionID == nil {
		s.sessionID = h
	}
	sig, err := hostKey.Sign(s.config.Rand, h)
	if err != nil {
		return protocolErrorf(message.KeyExchangeFailed, "sign exchange hash: %v", err)
	}
	in, out, err := newDirections(p.algs, kex.Hash, k, h, s.sessionID)
	if err != nil {
		return err
	}
	p.next = &keySet{in: in, out: out}
	if err := s.writeLocked(message.Marshal(&message.KexDHReply{HostKey: blob, F: f, Signature: sig})); err != nil {
		return err
	}
	p.newKeysSent = true
	return s.writeLocked(message.Marshal(&message.NewKeys{}))
}

// handleNewKeys activates both directions and flushes deferred messages.
func (s *Session) handleNewKeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	if p == nil || !p.newKeysSent {
		return protocolErrorf(message.ProtocolError, "unexpected newkeys")
	}
	first := s.algorithms == nil
	s.keys.Store(p.next)
	s.algorithms = p.algs
	s.pending = nil
	s.sinceKex.Store(0)
	s.kexCount.Add(1)
	s.state.Store(int32(StateActive))
	if first {
		s.conn.SetReadDeadline(time.Time{})
		s.log.Info("Keys exchanged", "kex", p.algs.Kex, "cipher", p.algs.ServerToClient.Cipher, "mac", p.algs.ServerToClient.MAC)
	} else {
		s.debugf("Rekey complete")
	}
	queued := s.queue
	s.queue = nil
	for i, payload := range queued {
		if err := s.writeLocked(payload); err != nil {
			return err
		}
		if s.pending != nil {
			// a new exchange started mid flush
			s.queue = append(s.queue, queued[i+1:]...)
			break
		}
	}
	return nil
}
