// Package transport implements the server side of the SSH-2 transport
// layer (RFC 4253): version exchange, the binary packet protocol,
// Diffie-Hellman key exchange with periodic rekeying, and the deferral of
// higher layer traffic while keys are being replaced.
package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateAwaitingVersion State = iota
	StateNegotiating
	StateExchanging
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingVersion:
		return "awaiting-version"
	case StateNegotiating:
		return "negotiating"
	case StateExchanging:
		return "exchanging"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Services is the boundary between the transport and the protocols it
// carries.
type Services interface {
	// StartService answers a service request. Returning false
	// disconnects the peer.
	StartService(name string) bool
	// HandleMessage receives every message the transport does not
	// consume itself. Returning false terminates the session.
	HandleMessage(m message.Message) (bool, error)
	// Close is called once when the session ends.
	Close()
}

// Stats are the traffic counters of a session.
type Stats struct {
	BytesIn      uint64
	BytesOut     uint64
	PacketsIn    uint64
	PacketsOut   uint64
	KeyExchanges uint64
}

// keySet is the active state: the installed algorithms of both
// directions, swapped as one value.
type keySet struct {
	in, out *direction
}

// pendingKex is the exchanging state, present from the first KEXINIT of a
// round until the peer's NEWKEYS.
type pendingKex struct {
	server      *message.KexInit
	serverInit  []byte
	client      *message.KexInit
	clientInit  []byte
	algs        *Algorithms
	ignoreNext  bool
	newKeysSent bool
	next        *keySet
}

// Session is one server side SSH transport connection.
type Session struct {
	id       string
	conn     net.Conn
	reader   *bufio.Reader
	config   Config
	log      *slog.Logger
	hostKeys map[string]algo.HostKey
	services Services

	state atomic.Int32
	keys  atomic.Pointer[keySet]

	// owned by the read loop
	inSeq uint32

	// mu is the gate every sender passes through. It guards the
	// outgoing sequence, the pending exchange and the deferred queue.
	mu            sync.Mutex
	outSeq        uint32
	pending       *pendingKex
	queue         [][]byte
	closed        bool
	clientVersion string
	sessionID     []byte
	algorithms    *Algorithms

	sinceKex   atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	kexCount   atomic.Uint64

	terminating atomic.Bool
	done        chan struct{}
	err         error
}

// New prepares a session over conn. Nothing is exchanged until Run.
func New(conn net.Conn, config Config) (*Session, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	id := make([]byte, 6)
	if _, err := io.ReadFull(config.Rand, id); err != nil {
		return nil, fmt.Errorf("transport: session id: %w", err)
	}
	s := &Session{
		id:       hex.EncodeToString(id),
		conn:     conn,
		reader:   bufio.NewReaderSize(retryConn{conn}, 64<<10),
		config:   config,
		hostKeys: map[string]algo.HostKey{},
		done:     make(chan struct{}),
	}
	s.log = config.Logger.With("session", s.id)
	for _, k := range config.HostKeys {
		if _, ok := s.hostKeys[k.Name()]; !ok {
			s.hostKeys[k.Name()] = k
		}
	}
	s.keys.Store(&keySet{in: plain(), out: plain()})
	return s, nil
}

// Run performs the handshake and processes packets until the session
// ends. Cancelling ctx disconnects the peer. A graceful close by the
// peer returns nil.
func (s *Session) Run(ctx context.Context, services Services) error {
	s.services = services
	stop := context.AfterFunc(ctx, func() {
		s.Disconnect(message.ByApplication, "server shutting down")
	})
	defer stop()
	err := s.run(ctx)
	var pe *ProtocolError
	notify := errors.As(err, &pe) || !(graceful(err) || isTransportError(err))
	s.terminate(reasonOf(err), errorDescription(err), err, notify)
	<-s.done
	return s.err
}

func (s *Session) run(ctx context.Context) error {
	s.conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	if err := s.versionExchange(); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.startKexLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.config.KeepAlive > 0 {
		go s.keepAlive(ctx, s.config.KeepAlive)
	}
	for {
		if s.config.ReadTimeout > 0 && s.State() == StateActive {
			s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		payload, err := s.readPacket()
		if err != nil {
			return err
		}
		if err := s.dispatch(payload); err != nil {
			return err
		}
	}
}

func (s *Session) versionExchange() error {
	s.state.Store(int32(StateAwaitingVersion))
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := io.WriteString(retryConn{s.conn}, s.config.ServerVersion+"\r\n"); err != nil {
		return classify(err)
	}
	v, err := readVersion(s.reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.clientVersion = v
	s.mu.Unlock()
	s.debugf("Client version %q", v)
	return nil
}

// readVersion reads the peer identification line, terminated by CRLF or
// LF.
func readVersion(r io.ByteReader) (string, error) {
	line := make([]byte, 0, 64)
	for len(line) < maxVersionLength {
		b, err := r.ReadByte()
		if err != nil {
			return "", classify(err)
		}
		if b == '\n' {
			v := strings.TrimSuffix(string(line), "\r")
			if !strings.HasPrefix(v, "SSH-2.0-") {
				return "", protocolErrorf(message.ProtocolVersionNotSupported, "unsupported version %q", v)
			}
			return v, nil
		}
		line = append(line, b)
	}
	return "", protocolErrorf(message.ProtocolVersionNotSupported, "version line exceeds %d bytes", maxVersionLength)
}

func (s *Session) readPacket() ([]byte, error) {
	payload, n, err := s.keys.Load().in.open(s.inSeq, s.reader)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, classify(err)
	}
	s.inSeq++
	s.bytesIn.Add(uint64(n))
	s.packetsIn.Add(1)
	if s.sinceKex.Add(uint64(n)) > s.config.RekeyBytes {
		s.mu.Lock()
		err = s.rekeyIfDueLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (s *Session) dispatch(payload []byte) error {
	if s.dropWrongGuess(payload) {
		return nil
	}
	m, err := message.Unmarshal(payload)
	if err != nil {
		return protocolErrorf(message.ProtocolError, "%v", err)
	}
	t := m.Type()
	s.debugf("Received %s", t)
	if !kexMessage(t) && s.Algorithms() == nil {
		return protocolErrorf(message.ProtocolError, "%s before key exchange", t)
	}
	switch m := m.(type) {
	case *message.KexInit:
		return s.handleKexInit(m, payload)
	case *message.KexDHInit:
		return s.handleKexDHInit(m)
	case *message.NewKeys:
		return s.handleNewKeys()
	case *message.Disconnect:
		return &PeerDisconnectError{Reason: m.Reason, Description: m.Description}
	case *message.Ignore, *message.Unimplemented:
		return nil
	case *message.Debug:
		s.debugf("Peer debug: %s", m.Message)
		return nil
	case *message.ServiceRequest:
		if !s.services.StartService(m.Name) {
			return protocolErrorf(message.ServiceNotAvailable, "service %q not available", m.Name)
		}
		return s.Send(&message.ServiceAccept{Name: m.Name})
	}
	ok, err := s.services.HandleMessage(m)
	if err != nil {
		return err
	}
	if !ok {
		return protocolErrorf(message.ProtocolError, "unexpected %s", t)
	}
	return nil
}

// kexMessage reports whether t belongs to the transport generic or key
// exchange ranges, which bypass the deferral queue while keys are being
// replaced.
func kexMessage(t message.Type) bool {
	return (t >= message.TypeDisconnect && t <= message.TypeDebug) ||
		(t >= message.TypeKexInit && t <= 49)
}

// Send encodes m and writes it, or defers it while a key exchange is in
// progress.
func (s *Session) Send(m message.Message) error {
	payload := message.Marshal(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if p := s.pending; p != nil && (p.newKeysSent || !kexMessage(m.Type())) {
		if len(s.queue) >= maxQueued {
			return ErrQueueFull
		}
		s.queue = append(s.queue, payload)
		return nil
	}
	return s.writeLocked(payload)
}

func (s *Session) writeLocked(payload []byte) error {
	return s.writeDeadlineLocked(payload, time.Now().Add(s.config.WriteTimeout))
}

func (s *Session) writeDeadlineLocked(payload []byte, deadline time.Time) error {
	record, err := s.keys.Load().out.seal(s.outSeq, payload, s.config.Rand)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(deadline)
	if _, err := (retryConn{s.conn}).Write(record); err != nil {
		// the read loop sees the closed conn and terminates
		s.conn.Close()
		return classify(err)
	}
	s.outSeq++
	s.bytesOut.Add(uint64(len(record)))
	s.packetsOut.Add(1)
	s.debugf("Sent %s", message.Type(payload[0]))
	if s.sinceKex.Add(uint64(len(record))) > s.config.RekeyBytes {
		return s.rekeyIfDueLocked()
	}
	return nil
}

func (s *Session) rekeyIfDueLocked() error {
	if s.pending != nil || s.closed || s.algorithms == nil || s.sinceKex.Load() <= s.config.RekeyBytes {
		return nil
	}
	s.debugf("Rekey threshold reached after %d bytes", s.sinceKex.Load())
	return s.startKexLocked()
}

// Disconnect sends a disconnect message where possible and closes the
// session. It is safe to call more than once.
func (s *Session) Disconnect(reason message.DisconnectReason, description string) {
	s.terminate(reason, description, nil, true)
}

func (s *Session) terminate(reason message.DisconnectReason, description string, cause error, notify bool) {
	if !s.terminating.CompareAndSwap(false, true) {
		return
	}
	// releases a writer blocked on a stalled peer
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	s.mu.Lock()
	// between our NEWKEYS and the peer's the only option is to drop the
	// connection
	if notify && !s.closed && (s.pending == nil || !s.pending.newKeysSent) {
		d := &message.Disconnect{Reason: reason, Description: description}
		if err := s.writeDeadlineLocked(message.Marshal(d), time.Now().Add(time.Second)); err != nil {
			s.debugf("Failed to send disconnect: %s", err)
		}
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.conn.Close()
	s.state.Store(int32(StateTerminated))
	if !graceful(cause) {
		s.err = cause
		s.log.Error("Session terminated", "reason", reason.String(), "err", cause)
	} else {
		s.log.Info("Session closed", "reason", reason.String())
	}
	if s.services != nil {
		s.services.Close()
	}
	if fn := s.config.OnDisconnect; fn != nil {
		fn(reason, s.err)
	}
	close(s.done)
}

func (s *Session) keepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Send(&message.Ignore{}); err != nil {
				s.debugf("Failed to send keep alive: %s", err)
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// ID is a random identifier for logs.
func (s *Session) ID() string { return s.id }

// SessionID is the exchange hash of the first key exchange, or nil
// before it completes.
func (s *Session) SessionID() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) ClientVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientVersion
}

func (s *Session) ServerVersion() string { return s.config.ServerVersion }

// Algorithms returns the algorithms of the active keys, or nil before
// the first exchange completes.
func (s *Session) Algorithms() *Algorithms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.algorithms
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *Session) Stats() Stats {
	return Stats{
		BytesIn:      s.bytesIn.Load(),
		BytesOut:     s.bytesOut.Load(),
		PacketsIn:    s.packetsIn.Load(),
		PacketsOut:   s.packetsOut.Load(),
		KeyExchanges: s.kexCount.Load(),
	}
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Logger is the session scoped logger.
func (s *Session) Logger() *slog.Logger { return s.log }

func (s *Session) debugf(f string, args ...any) {
	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.log.Debug(fmt.Sprintf(f, args...))
	}
}

func isTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func errorDescription(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
