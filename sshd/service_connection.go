package sshd

import (
	"fmt"
	"os"
	"sync"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/mux"
)

// connService is the ssh-connection service: a channel multiplexer
// whose session channels are served by the session request handlers.
type connService struct {
	conn *Conn
	mux  *mux.Mux

	mu       sync.Mutex
	sessions map[uint32]*Session
}

func newConnService(c *Conn) *connService {
	cs := &connService{conn: c, sessions: map[uint32]*Session{}}
	cfg := c.server.config
	cs.mux = mux.New(c.session, mux.Config{
		Window:               cfg.Window,
		MaxPacket:            cfg.MaxPacket,
		Logger:               c.log,
		OpenHandler:          cs.open,
		RequestHandler:       cs.request,
		GlobalRequestHandler: cs.global,
	})
	return cs
}

func (cs *connService) Name() string { return ServiceConnection }

func (cs *connService) HandleMessage(m message.Message) (bool, error) {
	return cs.mux.HandleMessage(m)
}

func (cs *connService) Close() {
	cs.mux.Close()
}

func (cs *connService) open(ch *mux.Channel, data []byte) error {
	if err := mux.SessionOnly(ch, data); err != nil {
		cs.conn.debugf("Rejected channel type %q", ch.Type())
		return err
	}
	sess := &Session{
		conn:    cs.conn,
		Channel: ch,
		Env:     os.Environ(),
	}
	cs.mu.Lock()
	cs.sessions[ch.ID()] = sess
	cs.mu.Unlock()
	ch.OnClose(func() {
		cs.mu.Lock()
		delete(cs.sessions, ch.ID())
		cs.mu.Unlock()
		sess.closed()
	})
	cs.conn.debugf("Session channel %d opened", ch.ID())
	return nil
}

func (cs *connService) request(ch *mux.Channel, req *Request) error {
	cs.mu.Lock()
	sess, ok := cs.sessions[ch.ID()]
	cs.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session for channel %d", ch.ID())
	}
	h, ok := cs.conn.server.sessionRequestHandlers[req.Type]
	if !ok {
		sess.Debugf("Rejected session request %q", req.Type)
		return fmt.Errorf("unsupported request %q", req.Type)
	}
	if err := h(sess, req); err != nil {
		sess.Debugf("Session request %q failed (%s)", req.Type, err)
		return err
	}
	return nil
}

func (cs *connService) global(req *Request) error {
	h, ok := cs.conn.server.globalRequestHandlers[req.Type]
	if !ok {
		cs.conn.debugf("Rejected global request %q", req.Type)
		return fmt.Errorf("unsupported global request %q", req.Type)
	}
	return h(cs.conn, req)
}
