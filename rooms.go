package irccore

import "sync"

// Role is a member's privilege level within a single channel. The same nick
// may hold different roles in different channels.
type Role int

const (
	RoleSilent Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleSilent:
		return "silent"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "administrator"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Member is one tracked participant of a channel.
type Member struct {
	Nick string
	Role Role
}

// Channel holds the state of one conversation: a joined channel or a
// private one-to-one exchange. Roster mutations happen on the wire
// library's dispatch goroutine; the lock exists so callers on other
// goroutines can read a consistent snapshot.
type Channel struct {
	mu sync.RWMutex

	name      string
	private   bool
	topic     string
	localRole Role
	members   map[string]*Member
}

func NewChannel(name string, private bool) *Channel {
	return &Channel{
		name:    name,
		private: private,
		members: make(map[string]*Member),
	}
}

func (c *Channel) Name() string {
	return c.name
}

// Private reports whether this channel represents a one-to-one
// conversation. Private channels are never sent JOIN or PART commands.
func (c *Channel) Private() bool {
	return c.private
}

func (c *Channel) Topic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.topic
}

func (c *Channel) setTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topic = topic
}

func (c *Channel) LocalRole() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.localRole
}

func (c *Channel) setLocalRole(role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localRole = role
}

// Member returns the tracked member for nick, or nil.
func (c *Channel) Member(nick string) *Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.members[nick]
}

// Members returns a snapshot of the roster.
func (c *Channel) Members() []*Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ret := make([]*Member, 0, len(c.members))
	for _, m := range c.members {
		ret = append(ret, m)
	}

	return ret
}

func (c *Channel) addMember(m *Member) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.members[m.Nick] = m
}

// removeMember deletes nick from the roster and returns the removed entry,
// or nil if it was not tracked. Absence is tolerated, not fatal.
func (c *Channel) removeMember(nick string) *Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.members[nick]
	delete(c.members, nick)

	return m
}

func (c *Channel) setMemberRole(nick string, role Role) *Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.members[nick]
	if m != nil {
		m.Role = role
	}

	return m
}

// renameMember moves a roster entry to a new key, keeping its role.
func (c *Channel) renameMember(oldNick, newNick string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[oldNick]
	if !ok {
		return false
	}

	delete(c.members, oldNick)
	m.Nick = newNick
	c.members[newNick] = m

	return true
}

// RoomManager is the host application's room model. The stack obtains
// channels through it so the host keeps ownership of room lifecycle, most
// importantly for private conversations initiated by the remote side.
type RoomManager interface {
	FindOrCreateRoom(name string, private bool) *Channel
}

// MemoryRoomManager is a minimal RoomManager for hosts without a room model
// of their own.
type MemoryRoomManager struct {
	mu    sync.Mutex
	rooms map[string]*Channel
}

func NewMemoryRoomManager() *MemoryRoomManager {
	return &MemoryRoomManager{rooms: make(map[string]*Channel)}
}

func (m *MemoryRoomManager) FindOrCreateRoom(name string, private bool) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[name]; ok {
		return room
	}

	room := NewChannel(name, private)
	m.rooms[name] = room

	return room
}
