package irccore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	irc "gopkg.in/irc.v3"
)

// SessionState is the lifecycle state of the link to one server.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Stack is the connection- and channel-state core of an IRC session. It
// owns the session lifecycle and the joined-channel set, and it exposes a
// synchronous facade over the wire library's asynchronous event delivery:
// connect, join and the first channel listing block the caller until the
// correlated protocol reply arrives.
//
// The stack manages exactly one session at a time.
type Stack struct {
	params *ServerParameters
	rooms  RoomManager
	sink   RegistrationSink

	bus      *Bus
	registry *Registry
	isupport *ISupportTracker

	// dial is swappable so tests can supply an in-memory connection.
	dial func(endpoint Endpoint) (net.Conn, error)

	mu         sync.Mutex
	state      SessionState
	client     *irc.Client
	conn       net.Conn
	cancel     context.CancelFunc
	secure     bool
	connecting *await[struct{}]

	joinedMu sync.Mutex
	joined   map[string]*Channel

	// The listing cache has its own lock so an in-flight LIST exchange does
	// not contend with roster operations. listPending serializes concurrent
	// listing requests: only one exchange is ever in flight, later callers
	// wait on it and then read the cache.
	listMu      sync.Mutex
	listCache   []string
	listPending *listCollector
}

// NewStack builds a stack for one server session. The room manager supplies
// channel objects; sink may be nil if the host does not track registration
// state.
func NewStack(params *ServerParameters, rooms RoomManager, sink RegistrationSink) *Stack {
	return &Stack{
		params:   params,
		rooms:    rooms,
		sink:     sink,
		bus:      NewBus(32),
		registry: NewRegistry(),
		isupport: NewISupportTracker(),
		dial:     dialEndpoint,
		joined:   make(map[string]*Channel),
	}
}

func dialEndpoint(endpoint Endpoint) (net.Conn, error) {
	if endpoint.Secure {
		return tls.Dial("tcp", endpoint.Addr(), nil)
	}

	return net.Dial("tcp", endpoint.Addr())
}

// Events returns the bus carrying presence, role, rename and message events
// for the host application.
func (s *Stack) Events() *Bus {
	return s.bus
}

// Connected reports whether the session is established.
func (s *Stack) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == StateConnected
}

// SecureConnection reports whether the established session uses TLS.
func (s *Stack) SecureConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == StateConnected && s.secure
}

// Nick returns the acting nickname when connected, or the configured one.
func (s *Stack) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected && s.client != nil {
		return s.client.CurrentNick()
	}

	return s.params.Nickname()
}

// IsJoined reports whether the named channel is in the joined set.
func (s *Stack) IsJoined(name string) bool {
	s.joinedMu.Lock()
	defer s.joinedMu.Unlock()

	_, ok := s.joined[name]

	return ok
}

// JoinedChannels returns a snapshot of the joined set.
func (s *Stack) JoinedChannels() []*Channel {
	s.joinedMu.Lock()
	defer s.joinedMu.Unlock()

	ret := make([]*Channel, 0, len(s.joined))
	for _, room := range s.joined {
		ret = append(ret, room)
	}

	return ret
}

// Connect establishes the session and blocks until registration succeeds or
// fails. Connecting while already connected is a no-op. Cancellation of ctx
// during the wait leaves the stack disconnected and returns the context's
// error.
func (s *Stack) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		s.mu.Unlock()
		return errors.New("connection attempt already in progress")
	}
	s.state = StateConnecting
	endpoint := s.params.Endpoint()
	s.mu.Unlock()

	// Start from an empty joined set and an empty listing cache.
	s.joinedMu.Lock()
	s.joined = make(map[string]*Channel)
	s.joinedMu.Unlock()
	s.listMu.Lock()
	s.listCache = nil
	s.listMu.Unlock()

	conn, err := s.dial(endpoint)
	if err != nil {
		s.teardown()
		s.notifyRegistration(StateUnregistered)
		return fmt.Errorf("failed to connect to %s: %w", endpoint.Addr(), err)
	}

	pending := newAwait[struct{}]()
	runCtx, cancel := context.WithCancel(context.Background())

	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:    s.params.Nickname(),
		User:    s.params.Ident(),
		Name:    s.params.RealName(),
		Pass:    endpoint.Password,
		Handler: irc.HandlerFunc(s.handleMessage),
	})

	s.mu.Lock()
	s.conn = conn
	s.client = client
	s.cancel = cancel
	s.secure = endpoint.Secure
	s.connecting = pending
	s.mu.Unlock()

	go func() {
		err := client.RunContext(runCtx)
		if err == nil {
			err = errors.New("connection closed")
		}

		// If registration never completed this fails the connect attempt;
		// otherwise the session was dropped by the peer.
		pending.resolve(struct{}{}, err)
		s.connectionLost(err)
	}()

	logrus.WithField("addr", endpoint.Addr()).Info("waiting for connection to be established")

	if _, err := pending.wait(ctx); err != nil {
		s.teardown()
		s.notifyRegistration(StateUnregistered)
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.connecting = nil
	s.mu.Unlock()

	logrus.WithField("nick", client.CurrentNick()).Info("connected")
	s.notifyRegistration(StateRegistered)

	return nil
}

// Disconnect parts every joined channel best effort, tears the transport
// down and resets the session. Disconnecting while disconnected is a no-op.
func (s *Stack) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	client := s.client
	s.mu.Unlock()

	if client != nil {
		for _, room := range s.JoinedChannels() {
			if room.Private() {
				continue
			}

			err := client.WriteMessage(&irc.Message{Command: "PART", Params: []string{room.Name()}})
			if err != nil {
				logrus.WithError(err).WithField("channel", room.Name()).Warn("failed to part channel during disconnect")
			}
		}
	}

	s.teardown()
	s.notifyRegistration(StateUnregistered)
}

func (s *Stack) teardown() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.client = nil
	s.connecting = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.registry.RemoveAll()

	s.joinedMu.Lock()
	s.joined = make(map[string]*Channel)
	s.joinedMu.Unlock()

	s.listMu.Lock()
	s.listCache = nil
	pending := s.listPending
	s.listPending = nil
	s.listMu.Unlock()

	// Unblock anyone still waiting on an in-flight listing exchange.
	if pending != nil {
		pending.done.resolve(nil, ErrNotConnected)
	}
}

func (s *Stack) connectionLost(err error) {
	s.mu.Lock()
	established := s.state == StateConnected
	s.mu.Unlock()

	if !established {
		return
	}

	logrus.WithError(err).Warn("connection to server lost")
	s.teardown()
	s.notifyRegistration(StateUnregistered)
}

func (s *Stack) notifyRegistration(state RegistrationState) {
	if s.sink == nil {
		return
	}

	s.sink.RegistrationChanged(state)
}

// connectedClient returns the wire client, failing fast when the session is
// not established.
func (s *Stack) connectedClient() (*irc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.client == nil {
		return nil, ErrNotConnected
	}

	return s.client, nil
}

// handleMessage is the single handler the wire library invokes on its read
// goroutine for every parsed message.
func (s *Stack) handleMessage(client *irc.Client, msg *irc.Message) {
	logrus.WithField("irc_msg", msg.String()).Trace("got IRC message")

	s.isupport.Handle(msg)
	s.handleServerMessage(client, msg)
	s.registry.dispatch(client, msg)
}

// handleServerMessage consumes server-scoped events: registration replies,
// nick collisions during registration, connection errors and personal
// messages.
func (s *Stack) handleServerMessage(client *irc.Client, msg *irc.Message) {
	switch msg.Command {
	case "001":
		s.mu.Lock()
		pending := s.connecting
		s.mu.Unlock()

		if pending != nil {
			pending.resolve(struct{}{}, nil)
		}
	case "432":
		// An erroneous nickname fails registration outright. In-use
		// collisions (433) are retried by the wire library itself, which
		// appends an underscore and re-sends NICK during the handshake.
		s.mu.Lock()
		pending := s.connecting
		s.mu.Unlock()

		if pending != nil {
			pending.resolve(struct{}{}, fmt.Errorf("nickname rejected: %s", msg.Trailing()))
		}
	case "ERROR":
		s.mu.Lock()
		pending := s.connecting
		s.mu.Unlock()

		if pending != nil {
			pending.resolve(struct{}{}, errors.New(msg.Trailing()))
		}
	case "NOTICE":
		if msg.Prefix == nil || msg.Prefix.Name == "" || !strings.Contains(msg.Prefix.Name, ".") {
			return
		}

		logrus.WithField("notice", msg.Trailing()).Debug("server notice")
	case "PRIVMSG":
		s.handlePrivateMessage(client, msg)
	}
}

// handlePrivateMessage delivers a personal message to its private
// conversation, creating the conversation through the room manager when the
// remote side speaks first.
func (s *Stack) handlePrivateMessage(client *irc.Client, msg *irc.Message) {
	if len(msg.Params) != 2 || msg.Params[0] != client.CurrentNick() {
		return
	}

	sender := sourceNick(msg)
	if sender == "" {
		return
	}

	s.joinedMu.Lock()
	room := s.joined[sender]
	s.joinedMu.Unlock()

	if room == nil || !room.Private() {
		room = s.rooms.FindOrCreateRoom(sender, true)
		room.addMember(&Member{Nick: sender, Role: RoleMember})

		s.joinedMu.Lock()
		s.joined[room.Name()] = room
		s.joinedMu.Unlock()

		s.bus.Broadcast(PresenceEvent{
			Kind:    PresenceLocalJoined,
			Channel: room.Name(),
			Nick:    client.CurrentNick(),
			Reason:  "Private conversation initiated.",
		})
	}

	s.bus.Broadcast(newMessageEvent(MessageConversation, room.Name(), sender, msg.Trailing()))
}

// Join issues a join for the room and blocks until the server confirms or
// refuses it. Joining an already-joined or private room is a no-op. A
// refusal is a normal outcome: it is reported as a system message in the
// room, not as an error.
func (s *Stack) Join(ctx context.Context, room *Channel, password string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil {
		return errors.New("cannot join a nil channel")
	}

	if room.Private() || s.IsJoined(room.Name()) {
		return nil
	}

	jl := newJoinListener(room.Name())
	jl.handle = s.registry.Add(jl)

	params := []string{room.Name()}
	if password != "" {
		params = append(params, password)
	}

	if err := client.WriteMessage(&irc.Message{Command: "JOIN", Params: params}); err != nil {
		jl.handle.Remove()
		return err
	}

	result, err := jl.wait(ctx)
	if err != nil {
		// Interrupted while waiting: drop the subscription so the stack is
		// back in its pre-join state, then surface the cancellation.
		jl.handle.Remove()
		return err
	}

	if result.failure != "" {
		logrus.WithFields(logrus.Fields{
			"channel": room.Name(),
			"reason":  result.failure,
		}).Info("join refused")

		s.bus.Broadcast(newMessageEvent(MessageSystem, room.Name(), "server",
			fmt.Sprintf("Failed to join %s (message: %s)", room.Name(), result.failure)))
		return nil
	}

	room.setTopic(result.topic)
	s.populateRoster(client, room, result.names)

	cl := &channelListener{stack: s, channel: room}
	cl.handle = s.registry.Add(cl)

	s.joinedMu.Lock()
	s.joined[room.Name()] = room
	s.joinedMu.Unlock()

	s.bus.Broadcast(PresenceEvent{
		Kind:    PresenceLocalJoined,
		Channel: room.Name(),
		Nick:    client.CurrentNick(),
	})

	return nil
}

// populateRoster seeds a channel's members from the NAMES entries gathered
// during the join exchange. When a nick carries several status prefixes the
// last evaluated one determines the role; this matches the historical
// behavior and is deliberately not a highest-privilege fold.
func (s *Stack) populateRoster(client *irc.Client, room *Channel, names []string) {
	prefixes := s.isupport.PrefixMap()

	for _, raw := range names {
		role := RoleSilent
		i := 0
		for _, r := range raw {
			mode, ok := prefixes[r]
			if !ok {
				break
			}

			if mapped, ok := roleForMode(mode); ok {
				role = mapped
			}
			i += utf8.RuneLen(r)
		}

		nick := raw[i:]
		if nick == "" {
			continue
		}

		if nick == client.CurrentNick() {
			room.setLocalRole(role)
			continue
		}

		room.addMember(&Member{Nick: nick, Role: role})
	}
}

// dropChannel removes a channel from the joined set and deregisters its
// listener; called on local part and kick.
func (s *Stack) dropChannel(room *Channel, handle *ListenerHandle) {
	if handle != nil {
		handle.Remove()
	}

	s.joinedMu.Lock()
	delete(s.joined, room.Name())
	s.joinedMu.Unlock()
}

// ListChannels returns the channels advertised by the server. The first
// call performs the LIST exchange and blocks until it completes; the result
// is cached until disconnect. A concurrent second call blocks on the first
// exchange and then reads the cache.
func (s *Stack) ListChannels(ctx context.Context) ([]string, error) {
	client, err := s.connectedClient()
	if err != nil {
		return nil, err
	}

	s.listMu.Lock()

	if s.listCache != nil {
		ret := make([]string, len(s.listCache))
		copy(ret, s.listCache)
		s.listMu.Unlock()

		return ret, nil
	}

	collector := s.listPending
	owner := collector == nil
	if owner {
		collector = newListCollector()
		collector.setHandle(s.registry.Add(collector))
		s.listPending = collector
	}
	s.listMu.Unlock()

	if owner {
		if err := client.WriteMessage(&irc.Message{Command: "LIST"}); err != nil {
			collector.handle.Remove()

			s.listMu.Lock()
			s.listPending = nil
			s.listMu.Unlock()

			return nil, err
		}
	}

	result, err := collector.wait(ctx)
	if err != nil {
		if owner {
			collector.handle.Remove()

			s.listMu.Lock()
			s.listPending = nil
			s.listMu.Unlock()
		}

		return nil, err
	}

	if result == nil {
		result = []string{}
	}

	s.listMu.Lock()
	s.listCache = result
	s.listPending = nil
	ret := make([]string, len(result))
	copy(ret, result)
	s.listMu.Unlock()

	return ret, nil
}

// SetTopic changes the subject of a channel.
func (s *Stack) SetTopic(room *Channel, topic string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil {
		return errors.New("cannot set the topic of a nil channel")
	}

	return client.WriteMessage(&irc.Message{Command: "TOPIC", Params: []string{room.Name(), topic}})
}

// Leave parts a joined channel. Private conversations are never actually
// joined, so there is nothing to part. Removal from the joined set happens
// when the server echoes the PART back.
func (s *Stack) Leave(room *Channel) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil {
		return errors.New("cannot leave a nil channel")
	}

	if room.Private() {
		return nil
	}

	return client.WriteMessage(&irc.Message{Command: "PART", Params: []string{room.Name()}})
}

// KickParticipant removes a member from a channel with a reason.
func (s *Stack) KickParticipant(room *Channel, nick, reason string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil || nick == "" {
		return errors.New("kick requires a channel and a target")
	}

	return client.WriteMessage(&irc.Message{Command: "KICK", Params: []string{room.Name(), nick, reason}})
}

// Invite asks a user into a channel.
func (s *Stack) Invite(nick string, room *Channel) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil || nick == "" {
		return errors.New("invite requires a channel and a target")
	}

	return client.WriteMessage(&irc.Message{Command: "INVITE", Params: []string{nick, room.Name()}})
}

// SendMessage delivers a message to the channel or private conversation.
func (s *Stack) SendMessage(room *Channel, text string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil {
		return errors.New("cannot send to a nil channel")
	}

	return client.WriteMessage(&irc.Message{Command: "PRIVMSG", Params: []string{room.Name(), text}})
}

// SendCommand sends command text entered in a room. A leading
// "/msg <target> <rest>" is rewritten into a direct message to the target;
// a /msg without a message body is a validation failure.
func (s *Stack) SendCommand(room *Channel, command string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	if room == nil {
		return errors.New("cannot send to a nil channel")
	}

	target := room.Name()
	if strings.HasPrefix(strings.ToLower(command), "/msg ") {
		rest := command[len("/msg "):]
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return errors.New("invalid private message format: message was not sent")
		}

		target = rest[:idx]
		command = rest[idx+1:]
	}

	return client.WriteMessage(&irc.Message{Command: "PRIVMSG", Params: []string{target, command}})
}

// SetNickname changes the nickname: offline it updates the configured
// parameters, online it issues a NICK command.
func (s *Stack) SetNickname(nick string) error {
	s.mu.Lock()
	connected := s.state == StateConnected
	client := s.client
	s.mu.Unlock()

	if !connected || client == nil {
		return s.params.SetNickname(nick)
	}

	if err := checkNick(nick); err != nil {
		return err
	}

	return client.WriteMessage(&irc.Message{Command: "NICK", Params: []string{nick}})
}

// Raw sends a raw protocol line.
func (s *Stack) Raw(line string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	return client.Write(line)
}
