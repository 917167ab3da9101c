package mux

import (
	"bytes"
	"io"
	"math"
	"sync"

	"github.com/jpillora/foxssh/sshd/message"
)

// Channel is one multiplexed channel. It implements io.ReadWriteCloser;
// Write blocks while the peer's window is exhausted.
type Channel struct {
	mux           *Mux
	id            uint32
	peerID        uint32
	chanType      string
	peerMaxPacket uint32

	// wmu orders outgoing messages so nothing follows our CLOSE
	wmu sync.Mutex

	mu            sync.Mutex
	cond          *sync.Cond
	sendWindow    uint32
	recvWindow    uint32
	unacked       uint32
	buf           bytes.Buffer
	onData        func([]byte)
	onClose       func()
	eofReceived   bool
	eofSent       bool
	closeReceived bool
	closeSent     bool
	closed        bool
}

func newChannel(m *Mux, id uint32, open *message.ChannelOpen) *Channel {
	ch := &Channel{
		mux:           m,
		id:            id,
		peerID:        open.Sender,
		chanType:      open.ChannelType,
		peerMaxPacket: open.MaxPacket,
		sendWindow:    open.Window,
		recvWindow:    m.config.Window,
	}
	if ch.peerMaxPacket == 0 {
		ch.peerMaxPacket = m.config.MaxPacket
	}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

func (c *Channel) ID() uint32     { return c.id }
func (c *Channel) PeerID() uint32 { return c.peerID }
func (c *Channel) Type() string   { return c.chanType }

// SendWindow is the number of bytes the peer will currently accept.
func (c *Channel) SendWindow() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendWindow
}

// RecvWindow is the number of bytes the peer may still send before a
// window adjust.
func (c *Channel) RecvWindow() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvWindow
}

// OnData delivers incoming data to fn instead of buffering it for Read.
// fn runs on the connection's read loop and must not block.
func (c *Channel) OnData(fn func(data []byte)) {
	c.mu.Lock()
	c.onData = fn
	c.mu.Unlock()
}

// OnClose registers fn to run once the channel is torn down.
func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// send passes m to the transport unless our CLOSE (or, for data, our
// EOF) has already gone out.
func (c *Channel) send(m message.Message, data bool) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.mu.Lock()
	stop := c.closeSent || c.closed || (data && c.eofSent)
	c.mu.Unlock()
	if stop {
		return ErrClosed
	}
	return c.mux.sender.Send(m)
}

func (c *Channel) Write(p []byte) (int, error) {
	return c.write(0, p)
}

// WriteExtended sends p as extended data of the given type, such as
// message.ExtendedDataStderr.
func (c *Channel) WriteExtended(dataType uint32, p []byte) (int, error) {
	return c.write(dataType, p)
}

func (c *Channel) write(dataType uint32, p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		c.mu.Lock()
		for c.sendWindow == 0 && !c.closeSent && !c.eofSent && !c.closed {
			c.cond.Wait()
		}
		if c.closeSent || c.eofSent || c.closed {
			c.mu.Unlock()
			return n, ErrClosed
		}
		size := min(uint32(len(p)), c.sendWindow, c.peerMaxPacket)
		c.sendWindow -= size
		c.mu.Unlock()

		chunk := p[:size]
		var m message.Message = &message.ChannelData{Recipient: c.peerID, Data: chunk}
		if dataType != 0 {
			m = &message.ChannelExtendedData{Recipient: c.peerID, DataType: dataType, Data: chunk}
		}
		if err := c.send(m, true); err != nil {
			return n, err
		}
		n += int(size)
		p = p[size:]
	}
	return n, nil
}

// Read returns buffered data, or io.EOF once the peer has sent EOF and
// the buffer is drained.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	for c.buf.Len() == 0 && !c.eofReceived && !c.closed {
		c.cond.Wait()
	}
	if c.buf.Len() == 0 {
		closed := c.closed && !c.eofReceived
		c.mu.Unlock()
		if closed {
			return 0, ErrClosed
		}
		return 0, io.EOF
	}
	n, _ := c.buf.Read(p)
	c.unacked += uint32(n)
	adjust := c.creditLocked()
	c.mu.Unlock()
	if adjust > 0 {
		c.sendAdjust(adjust)
	}
	return n, nil
}

// creditLocked returns the window to hand back to the peer, once its
// remaining window has dropped to a single packet.
func (c *Channel) creditLocked() uint32 {
	if c.unacked == 0 || c.recvWindow > c.mux.config.MaxPacket {
		return 0
	}
	n := c.unacked
	c.recvWindow += n
	c.unacked = 0
	return n
}

func (c *Channel) sendAdjust(n uint32) {
	if err := c.send(&message.ChannelWindowAdjust{Recipient: c.peerID, Bytes: n}, false); err != nil {
		c.mux.debugf("Channel %d window adjust: %s", c.id, err)
	}
}

// CloseWrite sends EOF. Later writes fail with ErrClosed.
func (c *Channel) CloseWrite() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.mu.Lock()
	if c.eofSent || c.closeSent || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.eofSent = true
	c.cond.Broadcast()
	c.mu.Unlock()
	return c.mux.sender.Send(&message.ChannelEOF{Recipient: c.peerID})
}

// Close sends CLOSE. The channel is torn down once the peer's CLOSE has
// also been seen.
func (c *Channel) Close() error {
	c.wmu.Lock()
	c.mu.Lock()
	if c.closeSent || c.closed {
		c.mu.Unlock()
		c.wmu.Unlock()
		return nil
	}
	c.closeSent = true
	c.cond.Broadcast()
	c.mu.Unlock()
	err := c.mux.sender.Send(&message.ChannelClose{Recipient: c.peerID})
	c.wmu.Unlock()
	c.teardownIfDone()
	return err
}

// CloseWithStatus reports an exit status, then sends EOF and CLOSE.
func (c *Channel) CloseWithStatus(code uint32) error {
	status := &message.ChannelRequest{
		Recipient: c.peerID,
		Request:   message.RequestExitStatus,
		Payload:   (&message.ExitStatus{Status: code}).Payload(),
	}
	if err := c.send(status, false); err != nil {
		return err
	}
	if err := c.CloseWrite(); err != nil {
		return err
	}
	return c.Close()
}

func (c *Channel) handleData(data []byte) error {
	c.mu.Lock()
	if c.closeSent || c.closed {
		c.mu.Unlock()
		return nil
	}
	if uint32(len(data)) > c.recvWindow {
		c.mu.Unlock()
		return protocolErrorf("channel %d: %d bytes exceed window of %d", c.id, len(data), c.recvWindow)
	}
	c.recvWindow -= uint32(len(data))
	fn := c.onData
	if fn == nil {
		c.buf.Write(data)
		c.cond.Broadcast()
		c.mu.Unlock()
		return nil
	}
	c.unacked += uint32(len(data))
	adjust := c.creditLocked()
	c.mu.Unlock()
	fn(data)
	if adjust > 0 {
		c.sendAdjust(adjust)
	}
	return nil
}

func (c *Channel) handleWindowAdjust(n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uint64(c.sendWindow)+uint64(n) > math.MaxUint32 {
		return protocolErrorf("channel %d: window overflow", c.id)
	}
	c.sendWindow += n
	c.cond.Broadcast()
	return nil
}

func (c *Channel) handleEOF() error {
	c.mu.Lock()
	c.eofReceived = true
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (c *Channel) handleClose() error {
	c.mu.Lock()
	c.closeReceived = true
	c.eofReceived = true
	c.cond.Broadcast()
	c.mu.Unlock()
	if err := c.Close(); err != nil {
		return err
	}
	c.teardownIfDone()
	return nil
}

func (c *Channel) teardownIfDone() {
	c.mu.Lock()
	if c.closed || !c.closeSent || !c.closeReceived {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Broadcast()
	fn := c.onClose
	c.mu.Unlock()
	c.mux.remove(c.id)
	c.mux.debugf("Channel %d closed", c.id)
	if fn != nil {
		fn()
	}
}

func (c *Channel) forceClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Broadcast()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
