package irccore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RegistrationState reflects whether the session is registered with a
// server.
type RegistrationState int

const (
	StateUnregistered RegistrationState = iota
	StateRegistered
)

func (s RegistrationState) String() string {
	if s == StateRegistered {
		return "registered"
	}

	return "unregistered"
}

// RegistrationSink receives registration transitions from the stack.
type RegistrationSink interface {
	RegistrationChanged(state RegistrationState)
}

// PresenceKind discriminates presence events.
type PresenceKind int

const (
	PresenceLocalJoined PresenceKind = iota
	PresenceLocalLeft
	PresenceLocalKicked
	PresenceMemberJoined
	PresenceMemberLeft
	PresenceMemberQuit
	PresenceMemberKicked
)

// PresenceEvent reports a membership transition in a channel. Actor is the
// originating nick where one applies (the kicker).
type PresenceEvent struct {
	Kind    PresenceKind
	Channel string
	Nick    string
	Actor   string
	Reason  string
}

// RoleEvent reports a privilege change for a member, or for the local user
// when Local is set.
type RoleEvent struct {
	Channel string
	Nick    string
	Local   bool
	Old     Role
	New     Role
}

// RenameEvent reports a member nickname change.
type RenameEvent struct {
	Channel string
	OldNick string
	NewNick string
}

// MessageKind distinguishes conversation messages from synthetic system
// messages.
type MessageKind int

const (
	MessageConversation MessageKind = iota
	MessageSystem
)

// MessageEvent is a message record delivered to the host application.
type MessageEvent struct {
	ID      uuid.UUID
	Kind    MessageKind
	Channel string
	Sender  string
	Body    string
	Time    time.Time
}

func newMessageEvent(kind MessageKind, channel, sender, body string) MessageEvent {
	return MessageEvent{
		ID:      uuid.New(),
		Kind:    kind,
		Channel: channel,
		Sender:  sender,
		Body:    body,
		Time:    time.Now(),
	}
}

// Bus fans domain events out to host application subscribers. Delivery is
// buffered per subscription; a subscriber that stops draining loses events
// rather than stalling the dispatch goroutine.
type Bus struct {
	bufSize int

	mu   sync.Mutex
	subs map[string]*BusHandle
}

// NewBus creates an event bus with the given per-subscription buffer size.
func NewBus(bufSize int) *Bus {
	return &Bus{
		bufSize: bufSize,
		subs:    make(map[string]*BusHandle),
	}
}

// Subscribe returns a new subscription handle for the given key and an ok
// value if that key was available.
func (b *Bus) Subscribe(key string) (*BusHandle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[key] != nil {
		return nil, false
	}

	handle := &BusHandle{
		bus: b,
		key: key,
		c:   make(chan any, b.bufSize),
	}

	b.subs[key] = handle

	return handle, true
}

// Broadcast sends an event to every subscription.
func (b *Bus) Broadcast(event any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, handle := range b.subs {
		if !handle.send(event) {
			logrus.WithField("subscriber", handle.key).Warn("event bus subscriber dropped an event")
		}
	}
}

func (b *Bus) removeSubscription(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, key)
}

// BusHandle is one subscription on the bus.
type BusHandle struct {
	key string
	mu  sync.RWMutex
	bus *Bus
	c   chan any
}

func (h *BusHandle) send(event any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.c == nil {
		return false
	}

	select {
	case h.c <- event:
		return true
	default:
		return false
	}
}

// Recv receives the next event, along with an ok value for whether the
// subscription is still live.
func (h *BusHandle) Recv(ctx context.Context) (any, bool) {
	h.mu.RLock()
	incoming := h.c
	h.mu.RUnlock()

	// Reading from a nil chan would hang forever.
	if incoming == nil {
		return nil, false
	}

	select {
	case event, ok := <-incoming:
		return event, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Close shuts down the subscription and removes it from the bus. Safe to
// call more than once.
func (h *BusHandle) Close() {
	h.mu.Lock()
	if h.c != nil {
		close(h.c)
		h.c = nil
	}
	h.mu.Unlock()

	h.bus.removeSubscription(h.key)
}
