package irccore

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint identifies the server a session connects to.
type Endpoint struct {
	Host     string
	Port     int
	Password string
	Secure   bool
}

// Addr renders the dialable host:port, applying the conventional default
// port when none is configured.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		if e.Secure {
			port = 6697
		} else {
			port = 6667
		}
	}

	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// ServerParameters bundles the identity used during registration. It is
// mutable only while the session is disconnected; the stack reads a snapshot
// at connect time.
type ServerParameters struct {
	nick     string
	ident    string
	realName string
	endpoint Endpoint
}

// NewServerParameters validates the nickname and builds a parameter bundle.
// Validation failures are rejected here, before anything reaches the
// network layer.
func NewServerParameters(nick, ident, realName string) (*ServerParameters, error) {
	p := &ServerParameters{
		ident:    ident,
		realName: realName,
	}

	if err := p.SetNickname(nick); err != nil {
		return nil, err
	}

	return p, nil
}

func checkNick(nick string) error {
	if nick == "" {
		return fmt.Errorf("a nickname must be provided")
	}

	if strings.HasPrefix(nick, "#") {
		return fmt.Errorf("nickname %q must not start with '#', which is reserved for channels", nick)
	}

	return nil
}

// SetNickname replaces the primary nickname after validating it.
func (p *ServerParameters) SetNickname(nick string) error {
	if err := checkNick(nick); err != nil {
		return err
	}

	p.nick = nick

	return nil
}

func (p *ServerParameters) Nickname() string {
	return p.nick
}

// AlternateNicknames returns the fallback nicks derived from the primary,
// matching the underscore scheme the registration handshake falls back to
// when the primary is already taken.
func (p *ServerParameters) AlternateNicknames() []string {
	return []string{p.nick + "_"}
}

func (p *ServerParameters) Ident() string {
	return p.ident
}

func (p *ServerParameters) RealName() string {
	return p.realName
}

func (p *ServerParameters) Endpoint() Endpoint {
	return p.endpoint
}

func (p *ServerParameters) SetEndpoint(endpoint Endpoint) {
	p.endpoint = endpoint
}
