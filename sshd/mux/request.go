package mux

import (
	"errors"

	"github.com/jpillora/foxssh/sshd/message"
)

// Request is a channel or global request awaiting its reply.
type Request struct {
	Type      string
	WantReply bool
	Payload   []byte
	reply     func(ok bool, payload []byte) error
	replied   bool
}

// Reply answers the request. It is a no-op when no reply was asked for.
func (r *Request) Reply(ok bool, payload []byte) error {
	if r.replied {
		return errors.New("mux: request already replied to")
	}
	r.replied = true
	if !r.WantReply {
		return nil
	}
	return r.reply(ok, payload)
}

// Replied returns true if Reply has been called.
func (r *Request) Replied() bool {
	return r.replied
}

func channelRequest(ch *Channel, m *message.ChannelRequest) *Request {
	return &Request{
		Type:      m.Request,
		WantReply: m.WantReply,
		Payload:   m.Payload,
		reply: func(ok bool, _ []byte) error {
			if ok {
				return ch.send(&message.ChannelSuccess{Recipient: ch.peerID}, false)
			}
			return ch.send(&message.ChannelFailure{Recipient: ch.peerID}, false)
		},
	}
}

func globalRequest(s Sender, m *message.GlobalRequest) *Request {
	return &Request{
		Type:      m.Name,
		WantReply: m.WantReply,
		Payload:   m.Data,
		reply: func(ok bool, payload []byte) error {
			if ok {
				return s.Send(&message.RequestSuccess{Data: payload})
			}
			return s.Send(&message.RequestFailure{})
		},
	}
}
