package message

import (
	"fmt"

	"github.com/jpillora/foxssh/sshd/wire"
)

// Channel request names (RFC 4254 section 6).
const (
	RequestPty          = "pty-req"
	RequestShell        = "shell"
	RequestExec         = "exec"
	RequestSubsystem    = "subsystem"
	RequestEnv          = "env"
	RequestWindowChange = "window-change"
	RequestExitStatus   = "exit-status"
	// sent by PuTTY to test window handling; always answered with failure
	RequestPuttyWinadj = "winadj@putty.com"
)

// PtyRequest is the payload of a "pty-req" channel request.
type PtyRequest struct {
	Term     string
	Cols     uint32
	Rows     uint32
	WidthPx  uint32
	HeightPx uint32
	Modes    []byte
}

func ParsePtyRequest(payload []byte) (*PtyRequest, error) {
	r := wire.NewReader(payload)
	p := &PtyRequest{
		Term:     r.Text(),
		Cols:     r.Uint32(),
		Rows:     r.Uint32(),
		WidthPx:  r.Uint32(),
		HeightPx: r.Uint32(),
		Modes:    r.Blob(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: parse pty-req: %w", err)
	}
	return p, nil
}

func (p *PtyRequest) Payload() []byte {
	w := wire.NewWriter(32 + len(p.Term) + len(p.Modes))
	w.Text(p.Term)
	w.Uint32(p.Cols)
	w.Uint32(p.Rows)
	w.Uint32(p.WidthPx)
	w.Uint32(p.HeightPx)
	w.Blob(p.Modes)
	return w.Bytes()
}

// WindowChange is the payload of a "window-change" channel request.
type WindowChange struct {
	Cols     uint32
	Rows     uint32
	WidthPx  uint32
	HeightPx uint32
}

func ParseWindowChange(payload []byte) (*WindowChange, error) {
	r := wire.NewReader(payload)
	wc := &WindowChange{
		Cols:     r.Uint32(),
		Rows:     r.Uint32(),
		WidthPx:  r.Uint32(),
		HeightPx: r.Uint32(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: parse window-change: %w", err)
	}
	return wc, nil
}

func (wc *WindowChange) Payload() []byte {
	w := wire.NewWriter(16)
	w.Uint32(wc.Cols)
	w.Uint32(wc.Rows)
	w.Uint32(wc.WidthPx)
	w.Uint32(wc.HeightPx)
	return w.Bytes()
}

// Env is the payload of an "env" channel request.
type Env struct {
	Name  string
	Value string
}

func ParseEnv(payload []byte) (*Env, error) {
	r := wire.NewReader(payload)
	e := &Env{Name: r.Text(), Value: r.Text()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: parse env: %w", err)
	}
	return e, nil
}

func (e *Env) Payload() []byte {
	w := wire.NewWriter(8 + len(e.Name) + len(e.Value))
	w.Text(e.Name)
	w.Text(e.Value)
	return w.Bytes()
}

// ExitStatus is the payload of an "exit-status" channel request.
type ExitStatus struct {
	Status uint32
}

func ParseExitStatus(payload []byte) (*ExitStatus, error) {
	r := wire.NewReader(payload)
	e := &ExitStatus{Status: r.Uint32()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: parse exit-status: %w", err)
	}
	return e, nil
}

func (e *ExitStatus) Payload() []byte {
	w := wire.NewWriter(4)
	w.Uint32(e.Status)
	return w.Bytes()
}
