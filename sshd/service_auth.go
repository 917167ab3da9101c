package sshd

import (
	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/transport"
	"golang.org/x/crypto/ssh"
)

// AuthMethods are the methods listed to clients after a failed attempt.
var AuthMethods = []string{message.MethodPassword, message.MethodPublicKey}

// AuthRequest is one authentication attempt.
type AuthRequest struct {
	Username string
	// Service is the service the client wants once authenticated.
	Service  string
	Method   string
	Password string
	// PublicKey is set for publickey attempts. Keys offered without a
	// signature are only queried; an accepted query is not a login.
	PublicKey          ssh.PublicKey
	PublicKeyAlgorithm string
	Signed             bool
	// Banner, when set by the handler, is sent to the client. Only the
	// first banner of a connection is shown.
	Banner string
	// IsSupportedMethod starts true for password and publickey, and for
	// none when authentication is disabled. Attempts left unsupported
	// fail whatever the handler returns.
	IsSupportedMethod bool
	Conn              *Conn
}

// AuthHandler decides an authentication attempt.
type AuthHandler func(req *AuthRequest) bool

type authService struct {
	conn       *Conn
	handler    AuthHandler
	bannerSent bool
	done       bool
}

func newAuthService(c *Conn) *authService {
	return &authService{conn: c, handler: c.server.auth}
}

func (a *authService) Name() string { return ServiceUserauth }

func (a *authService) Close() {}

func (a *authService) HandleMessage(m message.Message) (bool, error) {
	req, ok := m.(*message.UserauthRequest)
	if !ok {
		return false, nil
	}
	if a.done {
		// RFC 4252 section 5.1: later requests are ignored
		return true, nil
	}
	if !a.conn.knownService(req.Service) {
		return true, &transport.ProtocolError{Reason: message.ServiceNotAvailable, Msg: "unknown service " + req.Service}
	}
	ar := &AuthRequest{
		Username: req.User,
		Service:  req.Service,
		Method:   req.Method,
		Banner:   a.conn.server.config.Banner,
		Conn:     a.conn,
	}
	switch req.Method {
	case message.MethodNone:
		ar.IsSupportedMethod = a.conn.server.config.AuthType == "none"
	case message.MethodPassword:
		ar.Password = req.Password
		ar.IsSupportedMethod = true
	case message.MethodPublicKey:
		pub, err := ssh.ParsePublicKey(req.PublicKey)
		if err != nil {
			a.conn.debugf("Unparsable %s key from '%s' (%s)", req.Algorithm, req.User, err)
			return true, a.fail()
		}
		if req.HasSignature {
			if err := algo.VerifyPublicKey(req.PublicKey, req.SignedData(a.conn.session.SessionID()), req.Signature); err != nil {
				a.conn.debugf("Bad signature from '%s' (%s)", req.User, err)
				return true, a.fail()
			}
		}
		ar.PublicKey = pub
		ar.PublicKeyAlgorithm = req.Algorithm
		ar.Signed = req.HasSignature
		ar.IsSupportedMethod = true
	}
	accepted := a.handler(ar)
	if ar.Banner != "" && !a.bannerSent {
		a.bannerSent = true
		if err := a.conn.Send(&message.UserauthBanner{Message: ar.Banner}); err != nil {
			return true, err
		}
	}
	if !ar.IsSupportedMethod {
		a.conn.debugf("Authentication method %q not supported, offering %v", req.Method, AuthMethods)
		return true, a.fail()
	}
	if !accepted {
		a.conn.debugf("Authentication failed for '%s' (%s)", req.User, req.Method)
		return true, a.fail()
	}
	if req.Method == message.MethodPublicKey && !req.HasSignature {
		return true, a.conn.Send(&message.UserauthPKOK{Algorithm: req.Algorithm, PublicKey: req.PublicKey})
	}
	if err := a.conn.startService(req.Service); err != nil {
		return true, &transport.ProtocolError{Reason: message.ServiceNotAvailable, Msg: err.Error()}
	}
	a.done = true
	a.conn.setUser(req.User)
	a.conn.infof("User '%s' authenticated (%s)", req.User, req.Method)
	return true, a.conn.Send(&message.UserauthSuccess{})
}

func (a *authService) fail() error {
	return a.conn.Send(&message.UserauthFailure{Methods: AuthMethods})
}
