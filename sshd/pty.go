package sshd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/mux"
)

// Terminal control sequences
const (
	escape            = "\x1b"
	codeReset         = escape + "c"
	codeClear         = escape + "[2J"
	codeHome          = escape + "[H"
	codeCursor        = escape + "[%d;%dH"
	codeShowCursor    = escape + "[?25h"
	codeHideCursor    = escape + "[?25l"
	codeLineWrapOn    = escape + "[7h"
	codeLineWrapOff   = escape + "[7l"
	ptyReadBufferSize = 32 << 10
)

// Size is a terminal size in characters and pixels.
type Size struct {
	Cols, Rows        uint32
	WidthPx, HeightPx uint32
}

// PTY is the pseudo terminal a client requested on a session channel.
// Writes go to the client's screen; reads return its keystrokes.
type PTY struct {
	sess  *Session
	ch    *mux.Channel
	Term  string
	Modes []byte

	mu       sync.Mutex
	size     Size
	onResize []func(Size)
	onData   func([]byte)
	pumping  bool
}

func newPTY(sess *Session, req *message.PtyRequest) *PTY {
	return &PTY{
		sess:  sess,
		ch:    sess.Channel,
		Term:  req.Term,
		Modes: req.Modes,
		size:  Size{Cols: req.Cols, Rows: req.Rows, WidthPx: req.WidthPx, HeightPx: req.HeightPx},
	}
}

// Session returns the session the terminal belongs to.
func (p *PTY) Session() *Session { return p.sess }

// Size returns the current terminal size.
func (p *PTY) Size() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// OnResize registers fn to run on every window change. fn runs on the
// connection's read loop and must not block.
func (p *PTY) OnResize(fn func(Size)) {
	p.mu.Lock()
	p.onResize = append(p.onResize, fn)
	p.mu.Unlock()
}

func (p *PTY) resize(s Size) {
	p.mu.Lock()
	p.size = s
	fns := p.onResize
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// OnData delivers client input to fn on a dedicated goroutine, which
// may write back to the terminal. Read must not be used afterwards.
func (p *PTY) OnData(fn func(data []byte)) {
	p.mu.Lock()
	p.onData = fn
	start := !p.pumping
	p.pumping = true
	p.mu.Unlock()
	if start {
		go p.pump()
	}
}

func (p *PTY) pump() {
	buf := make([]byte, ptyReadBufferSize)
	for {
		n, err := p.ch.Read(buf)
		if n > 0 {
			p.mu.Lock()
			fn := p.onData
			p.mu.Unlock()
			fn(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, mux.ErrClosed) {
				p.sess.Debugf("PTY read error: %s", err)
			}
			return
		}
	}
}

func (p *PTY) Read(b []byte) (int, error) {
	return p.ch.Read(b)
}

func (p *PTY) Write(b []byte) (int, error) {
	return p.ch.Write(b)
}

// Send writes text to the terminal.
func (p *PTY) Send(text string) error {
	_, err := io.WriteString(p.ch, text)
	return err
}

// Fill writes r n times, for example to draw a horizontal rule.
func (p *PTY) Fill(r rune, n int) error {
	return p.Send(strings.Repeat(string(r), n))
}

// Reset restores the terminal to its initial state.
func (p *PTY) Reset() error { return p.Send(codeReset) }

// Clear moves the cursor home and erases the screen.
func (p *PTY) Clear() error { return p.Send(codeHome + codeClear) }

func (p *PTY) Home() error { return p.Send(codeHome) }

// SetCursor moves the cursor to column x and row y, both 1 based.
func (p *PTY) SetCursor(x, y int) error {
	if x == 1 && y == 1 {
		return p.Home()
	}
	return p.Send(fmt.Sprintf(codeCursor, y, x))
}

func (p *PTY) ShowCursor() error { return p.Send(codeShowCursor) }

func (p *PTY) HideCursor() error { return p.Send(codeHideCursor) }

// LineWrap enables or disables automatic wrapping at the right margin.
func (p *PTY) LineWrap(on bool) error {
	if on {
		return p.Send(codeLineWrapOn)
	}
	return p.Send(codeLineWrapOff)
}

// Close reports the exit code to the client and closes the session.
func (p *PTY) Close(code uint32) error {
	return p.ch.CloseWithStatus(code)
}
