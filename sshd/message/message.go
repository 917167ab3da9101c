// Package message is the catalog of SSH-2 messages handled by the server.
//
// Message is a closed set of structs: each knows how to encode and decode
// its own payload with the wire codec, and the static decode table maps a
// message number to its constructor. Callers dispatch with a type switch.
package message

import (
	"errors"
	"fmt"

	"github.com/jpillora/foxssh/sshd/wire"
)

// Type is the message number, the first byte of every payload.
type Type byte

// Message numbers from RFC 4250 section 4.1.
const (
	TypeDisconnect          Type = 1
	TypeIgnore              Type = 2
	TypeUnimplemented       Type = 3
	TypeDebug               Type = 4
	TypeServiceRequest      Type = 5
	TypeServiceAccept       Type = 6
	TypeKexInit             Type = 20
	TypeNewKeys             Type = 21
	TypeKexDHInit           Type = 30
	TypeKexDHReply          Type = 31
	TypeUserauthRequest     Type = 50
	TypeUserauthFailure     Type = 51
	TypeUserauthSuccess     Type = 52
	TypeUserauthBanner      Type = 53
	TypeUserauthPKOK        Type = 60
	TypeGlobalRequest       Type = 80
	TypeRequestSuccess      Type = 81
	TypeRequestFailure      Type = 82
	TypeChannelOpen         Type = 90
	TypeChannelOpenConfirm  Type = 91
	TypeChannelOpenFailure  Type = 92
	TypeChannelWindowAdjust Type = 93
	TypeChannelData         Type = 94
	TypeChannelExtendedData Type = 95
	TypeChannelEOF          Type = 96
	TypeChannelClose        Type = 97
	TypeChannelRequest      Type = 98
	TypeChannelSuccess      Type = 99
	TypeChannelFailure      Type = 100
)

var typeNames = map[Type]string{
	TypeDisconnect:          "disconnect",
	TypeIgnore:              "ignore",
	TypeUnimplemented:       "unimplemented",
	TypeDebug:               "debug",
	TypeServiceRequest:      "service-request",
	TypeServiceAccept:       "service-accept",
	TypeKexInit:             "kexinit",
	TypeNewKeys:             "newkeys",
	TypeKexDHInit:           "kexdh-init",
	TypeKexDHReply:          "kexdh-reply",
	TypeUserauthRequest:     "userauth-request",
	TypeUserauthFailure:     "userauth-failure",
	TypeUserauthSuccess:     "userauth-success",
	TypeUserauthBanner:      "userauth-banner",
	TypeUserauthPKOK:        "userauth-pk-ok",
	TypeGlobalRequest:       "global-request",
	TypeRequestSuccess:      "request-success",
	TypeRequestFailure:      "request-failure",
	TypeChannelOpen:         "channel-open",
	TypeChannelOpenConfirm:  "channel-open-confirmation",
	TypeChannelOpenFailure:  "channel-open-failure",
	TypeChannelWindowAdjust: "channel-window-adjust",
	TypeChannelData:         "channel-data",
	TypeChannelExtendedData: "channel-extended-data",
	TypeChannelEOF:          "channel-eof",
	TypeChannelClose:        "channel-close",
	TypeChannelRequest:      "channel-request",
	TypeChannelSuccess:      "channel-success",
	TypeChannelFailure:      "channel-failure",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// Message is one decoded SSH message.
type Message interface {
	Type() Type
	marshal(w *wire.Writer)
	unmarshal(r *wire.Reader)
}

var decoders = map[Type]func() Message{
	TypeDisconnect:          func() Message { return &Disconnect{} },
	TypeIgnore:              func() Message { return &Ignore{} },
	TypeUnimplemented:       func() Message { return &Unimplemented{} },
	TypeDebug:               func() Message { return &Debug{} },
	TypeServiceRequest:      func() Message { return &ServiceRequest{} },
	TypeServiceAccept:       func() Message { return &ServiceAccept{} },
	TypeKexInit:             func() Message { return &KexInit{} },
	TypeNewKeys:             func() Message { return &NewKeys{} },
	TypeKexDHInit:           func() Message { return &KexDHInit{} },
	TypeKexDHReply:          func() Message { return &KexDHReply{} },
	TypeUserauthRequest:     func() Message { return &UserauthRequest{} },
	TypeUserauthFailure:     func() Message { return &UserauthFailure{} },
	TypeUserauthSuccess:     func() Message { return &UserauthSuccess{} },
	TypeUserauthBanner:      func() Message { return &UserauthBanner{} },
	TypeUserauthPKOK:        func() Message { return &UserauthPKOK{} },
	TypeGlobalRequest:       func() Message { return &GlobalRequest{} },
	TypeRequestSuccess:      func() Message { return &RequestSuccess{} },
	TypeRequestFailure:      func() Message { return &RequestFailure{} },
	TypeChannelOpen:         func() Message { return &ChannelOpen{} },
	TypeChannelOpenConfirm:  func() Message { return &ChannelOpenConfirm{} },
	TypeChannelOpenFailure:  func() Message { return &ChannelOpenFailure{} },
	TypeChannelWindowAdjust: func() Message { return &ChannelWindowAdjust{} },
	TypeChannelData:         func() Message { return &ChannelData{} },
	TypeChannelExtendedData: func() Message { return &ChannelExtendedData{} },
	TypeChannelEOF:          func() Message { return &ChannelEOF{} },
	TypeChannelClose:        func() Message { return &ChannelClose{} },
	TypeChannelRequest:      func() Message { return &ChannelRequest{} },
	TypeChannelSuccess:      func() Message { return &ChannelSuccess{} },
	TypeChannelFailure:      func() Message { return &ChannelFailure{} },
}

var (
	ErrEmpty       = errors.New("message: empty payload")
	ErrUnknownType = errors.New("message: unknown message type")
)

// UnknownTypeError wraps ErrUnknownType with the offending number.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("message: unknown message type %d", byte(e.Type))
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// Known reports whether t is in the catalog.
func Known(t Type) bool {
	_, ok := decoders[t]
	return ok
}

// Marshal encodes m including its message number.
func Marshal(m Message) []byte {
	w := wire.NewWriter(64)
	w.Byte(byte(m.Type()))
	m.marshal(w)
	return w.Bytes()
}

// Unmarshal decodes a payload. Byte slices in the result alias payload.
func Unmarshal(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	t := Type(payload[0])
	newMsg, ok := decoders[t]
	if !ok {
		return nil, &UnknownTypeError{Type: t}
	}
	m := newMsg()
	r := wire.NewReader(payload[1:])
	m.unmarshal(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: decode %s: %w", t, err)
	}
	return m, nil
}
