// Package mux multiplexes SSH connection protocol channels (RFC 4254)
// over a transport, with per channel flow control windows.
package mux

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/transport"
)

const (
	// DefaultWindow is the initial receive window of each channel.
	DefaultWindow = 1 << 20
	// DefaultMaxPacket is the largest data payload accepted per message.
	DefaultMaxPacket = 32 << 10
)

// ErrClosed is returned by channel I/O after the channel has closed.
var ErrClosed = errors.New("mux: channel closed")

// Sender delivers messages to the peer. It is satisfied by
// *transport.Session.
type Sender interface {
	Send(m message.Message) error
}

// OpenHandler decides on a channel open request. Return nil to accept;
// return an *OpenError (or any error) to reject.
type OpenHandler func(ch *Channel, data []byte) error

// RequestHandler handles requests on an open channel. Return an error to
// reject the request; return nil to accept. Call req.Reply() to send a
// custom reply; otherwise a reply is sent automatically.
type RequestHandler func(ch *Channel, req *Request) error

// GlobalRequestHandler handles connection level requests, with the same
// reply rules as RequestHandler.
type GlobalRequestHandler func(req *Request) error

// OpenError rejects a channel open with a specific reason.
type OpenError struct {
	Reason  message.OpenFailureReason
	Message string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("mux: open rejected (%d): %s", e.Reason, e.Message)
}

type Config struct {
	// Window defaults to DefaultWindow.
	Window uint32
	// MaxPacket defaults to DefaultMaxPacket.
	MaxPacket uint32
	Logger    *slog.Logger
	// OpenHandler defaults to accepting "session" channels only.
	OpenHandler          OpenHandler
	RequestHandler       RequestHandler
	GlobalRequestHandler GlobalRequestHandler
}

// Mux owns the channel table of one connection.
type Mux struct {
	sender Sender
	config Config
	log    *slog.Logger

	mu       sync.Mutex
	channels map[uint32]*Channel
	nextID   uint32
	closed   bool
}

func New(sender Sender, config Config) *Mux {
	if config.Window == 0 {
		config.Window = DefaultWindow
	}
	if config.MaxPacket == 0 {
		config.MaxPacket = DefaultMaxPacket
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.OpenHandler == nil {
		config.OpenHandler = SessionOnly
	}
	return &Mux{
		sender:   sender,
		config:   config,
		log:      config.Logger,
		channels: map[uint32]*Channel{},
	}
}

// SessionOnly accepts "session" channels and rejects everything else.
func SessionOnly(ch *Channel, _ []byte) error {
	if ch.Type() != "session" {
		return &OpenError{Reason: message.UnknownChannelType, Message: "unknown channel type " + ch.Type()}
	}
	return nil
}

func protocolErrorf(format string, args ...any) error {
	return &transport.ProtocolError{Reason: message.ProtocolError, Msg: fmt.Sprintf(format, args...)}
}

// HandleMessage processes one connection protocol message. It reports
// false for messages outside the connection protocol.
func (m *Mux) HandleMessage(msg message.Message) (bool, error) {
	switch msg := msg.(type) {
	case *message.ChannelOpen:
		return true, m.handleOpen(msg)
	case *message.GlobalRequest:
		return true, m.handleGlobalRequest(msg)
	case *message.RequestSuccess, *message.RequestFailure:
		// we never send global requests
		return true, nil
	case *message.ChannelOpenConfirm, *message.ChannelOpenFailure:
		return true, protocolErrorf("unexpected %s", msg.Type())
	case *message.ChannelWindowAdjust:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return ch.handleWindowAdjust(msg.Bytes) })
	case *message.ChannelData:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return ch.handleData(msg.Data) })
	case *message.ChannelExtendedData:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return ch.handleData(msg.Data) })
	case *message.ChannelEOF:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return ch.handleEOF() })
	case *message.ChannelClose:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return ch.handleClose() })
	case *message.ChannelRequest:
		return m.withChannel(msg.Recipient, func(ch *Channel) error { return m.handleRequest(ch, msg) })
	case *message.ChannelSuccess, *message.ChannelFailure:
		// replies to exit-status, which never asks for one
		return true, nil
	}
	return false, nil
}

func (m *Mux) withChannel(id uint32, fn func(ch *Channel) error) (bool, error) {
	m.mu.Lock()
	ch, ok := m.channels[id]
	m.mu.Unlock()
	if !ok {
		return true, protocolErrorf("unknown channel %d", id)
	}
	return true, fn(ch)
}

func (m *Mux) handleOpen(open *message.ChannelOpen) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	id := m.nextID
	m.nextID++
	ch := newChannel(m, id, open)
	m.channels[id] = ch
	m.mu.Unlock()

	if err := m.config.OpenHandler(ch, open.Data); err != nil {
		m.remove(id)
		oe := &OpenError{Reason: message.AdministrativelyProhibited, Message: err.Error()}
		errors.As(err, &oe)
		m.debugf("Rejected %s channel: %s", open.ChannelType, oe.Message)
		return m.sender.Send(&message.ChannelOpenFailure{
			Recipient:   open.Sender,
			Reason:      oe.Reason,
			Description: oe.Message,
		})
	}
	m.debugf("Opened %s channel %d (peer %d, window %d, max packet %d)", open.ChannelType, id, open.Sender, open.Window, open.MaxPacket)
	return m.sender.Send(&message.ChannelOpenConfirm{
		Recipient: open.Sender,
		Sender:    id,
		Window:    m.config.Window,
		MaxPacket: m.config.MaxPacket,
	})
}

func (m *Mux) handleRequest(ch *Channel, msg *message.ChannelRequest) error {
	req := channelRequest(ch, msg)
	var err error
	if h := m.config.RequestHandler; h != nil {
		err = h(ch, req)
	} else {
		err = fmt.Errorf("unhandled request %q", msg.Request)
	}
	if err != nil {
		m.debugf("Channel %d request %q failed: %s", ch.id, msg.Request, err)
	}
	if !req.Replied() {
		if replyErr := req.Reply(err == nil, nil); replyErr != nil && !errors.Is(replyErr, ErrClosed) {
			return replyErr
		}
	}
	return nil
}

func (m *Mux) handleGlobalRequest(msg *message.GlobalRequest) error {
	req := globalRequest(m.sender, msg)
	var err error
	if h := m.config.GlobalRequestHandler; h != nil {
		err = h(req)
	} else {
		err = fmt.Errorf("unhandled global request %q", msg.Name)
	}
	if err != nil {
		m.debugf("Global request %q rejected: %s", msg.Name, err)
	}
	if !req.Replied() {
		return req.Reply(err == nil, nil)
	}
	return nil
}

func (m *Mux) remove(id uint32) {
	m.mu.Lock()
	delete(m.channels, id)
	m.mu.Unlock()
}

// Channel returns an open channel by local id.
func (m *Mux) Channel(id uint32) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return ch, ok
}

// Len is the number of channels in the table.
func (m *Mux) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Close force closes every channel, releasing blocked readers and
// writers. Nothing is sent to the peer.
func (m *Mux) Close() {
	m.mu.Lock()
	m.closed = true
	chans := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		chans = append(chans, ch)
	}
	m.channels = map[uint32]*Channel{}
	m.mu.Unlock()
	for _, ch := range chans {
		ch.forceClose()
	}
}

func (m *Mux) debugf(f string, args ...any) {
	m.log.Debug(fmt.Sprintf(f, args...))
}
