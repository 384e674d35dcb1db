package irccore

import (
	"strconv"

	"github.com/sirupsen/logrus"
	irc "gopkg.in/irc.v3"
)

// channelListener keeps one joined channel's roster and role state
// consistent with the protocol event stream and translates protocol events
// into domain notifications. One instance is registered per joined channel;
// all mutations run on the wire library's dispatch goroutine, so roster
// updates for a channel never race each other.
type channelListener struct {
	stack   *Stack
	channel *Channel
	handle  *ListenerHandle
}

func (cl *channelListener) Handle(client *irc.Client, msg *irc.Message) {
	switch msg.Command {
	case "TOPIC":
		cl.handleTopic(msg)
	case "332":
		cl.handleRplTopic(msg)
	case "MODE":
		cl.handleMode(client, msg)
	case "JOIN":
		cl.handleJoin(client, msg)
	case "PART":
		cl.handlePart(client, msg)
	case "KICK":
		cl.handleKick(client, msg)
	case "QUIT":
		cl.handleQuit(msg)
	case "NICK":
		cl.handleNick(msg)
	case "PRIVMSG":
		cl.handleMessage(msg)
	}
}

func (cl *channelListener) isThisChannel(name string) bool {
	return name == cl.channel.Name()
}

func (cl *channelListener) isMe(client *irc.Client, nick string) bool {
	return nick == client.CurrentNick()
}

func sourceNick(msg *irc.Message) string {
	if msg.Prefix == nil {
		return ""
	}

	return msg.Prefix.Name
}

func (cl *channelListener) handleTopic(msg *irc.Message) {
	if len(msg.Params) != 2 || !cl.isThisChannel(msg.Params[0]) {
		return
	}

	cl.channel.setTopic(msg.Trailing())
}

func (cl *channelListener) handleRplTopic(msg *irc.Message) {
	if len(msg.Params) != 3 || !cl.isThisChannel(msg.Params[1]) {
		return
	}

	cl.channel.setTopic(msg.Trailing())
}

func (cl *channelListener) handleJoin(client *irc.Client, msg *irc.Message) {
	if len(msg.Params) < 1 || !cl.isThisChannel(msg.Trailing()) {
		return
	}

	nick := sourceNick(msg)
	if cl.isMe(client, nick) {
		// Our own join is handled by the blocking join flow.
		return
	}

	cl.channel.addMember(&Member{Nick: nick, Role: RoleSilent})

	logrus.WithFields(logrus.Fields{
		"nick":    nick,
		"channel": cl.channel.Name(),
	}).Debug("user joined channel")

	cl.stack.bus.Broadcast(PresenceEvent{
		Kind:    PresenceMemberJoined,
		Channel: cl.channel.Name(),
		Nick:    nick,
	})
}

func (cl *channelListener) handlePart(client *irc.Client, msg *irc.Message) {
	if len(msg.Params) < 1 || !cl.isThisChannel(msg.Params[0]) {
		return
	}

	nick := sourceNick(msg)
	reason := ""
	if len(msg.Params) > 1 {
		reason = msg.Trailing()
	}

	if cl.isMe(client, nick) {
		cl.stack.dropChannel(cl.channel, cl.handle)
		cl.stack.bus.Broadcast(PresenceEvent{
			Kind:    PresenceLocalLeft,
			Channel: cl.channel.Name(),
			Nick:    nick,
			Reason:  reason,
		})
		return
	}

	if cl.channel.removeMember(nick) == nil {
		logrus.WithFields(logrus.Fields{
			"nick":    nick,
			"channel": cl.channel.Name(),
		}).Debug("PART for untracked member")
		return
	}

	cl.stack.bus.Broadcast(PresenceEvent{
		Kind:    PresenceMemberLeft,
		Channel: cl.channel.Name(),
		Nick:    nick,
		Reason:  reason,
	})
}

func (cl *channelListener) handleKick(client *irc.Client, msg *irc.Message) {
	if len(msg.Params) < 2 || !cl.isThisChannel(msg.Params[0]) {
		return
	}

	kicked := msg.Params[1]
	actor := sourceNick(msg)
	reason := ""
	if len(msg.Params) > 2 {
		reason = msg.Trailing()
	}

	if cl.isMe(client, kicked) {
		cl.stack.dropChannel(cl.channel, cl.handle)
		cl.stack.bus.Broadcast(PresenceEvent{
			Kind:    PresenceLocalKicked,
			Channel: cl.channel.Name(),
			Nick:    kicked,
			Actor:   actor,
			Reason:  reason,
		})
		return
	}

	if cl.channel.removeMember(kicked) == nil {
		return
	}

	cl.stack.bus.Broadcast(PresenceEvent{
		Kind:    PresenceMemberKicked,
		Channel: cl.channel.Name(),
		Nick:    kicked,
		Actor:   actor,
		Reason:  reason,
	})
}

func (cl *channelListener) handleQuit(msg *irc.Message) {
	nick := sourceNick(msg)

	if cl.channel.removeMember(nick) == nil {
		return
	}

	cl.stack.bus.Broadcast(PresenceEvent{
		Kind:    PresenceMemberQuit,
		Channel: cl.channel.Name(),
		Nick:    nick,
		Reason:  msg.Trailing(),
	})
}

func (cl *channelListener) handleNick(msg *irc.Message) {
	if len(msg.Params) != 1 {
		return
	}

	oldNick := sourceNick(msg)
	newNick := msg.Params[0]

	if !cl.channel.renameMember(oldNick, newNick) {
		return
	}

	cl.stack.bus.Broadcast(RenameEvent{
		Channel: cl.channel.Name(),
		OldNick: oldNick,
		NewNick: newNick,
	})
}

func (cl *channelListener) handleMessage(msg *irc.Message) {
	if len(msg.Params) != 2 || !cl.isThisChannel(msg.Params[0]) {
		return
	}

	nick := sourceNick(msg)

	// A sender missed during roster population is synthesized as a plain
	// member rather than dropped.
	if cl.channel.Member(nick) == nil {
		cl.channel.addMember(&Member{Nick: nick, Role: RoleMember})
	}

	cl.stack.bus.Broadcast(newMessageEvent(MessageConversation, cl.channel.Name(), nick, msg.Trailing()))
}

func (cl *channelListener) handleMode(client *irc.Client, msg *irc.Message) {
	if len(msg.Params) < 2 || !cl.isThisChannel(msg.Params[0]) {
		return
	}

	// A source that is not a tracked member is reported as the server.
	source := "server"
	if nick := sourceNick(msg); nick != "" && cl.channel.Member(nick) != nil {
		source = nick
	}

	for _, change := range ParseModeChanges(msg.Params[1], msg.Params[2:]) {
		switch change.Kind {
		case ModeOwner:
			cl.applyRoleChange(client, change, RoleOwner)
		case ModeOperator:
			cl.applyRoleChange(client, change, RoleAdmin)
		case ModeVoice:
			cl.applyRoleChange(client, change, RoleMember)
		case ModeLimit:
			cl.reportLimitChange(change, source)
		default:
			logrus.WithFields(logrus.Fields{
				"channel": cl.channel.Name(),
				"mode":    change.Params,
				"added":   change.Added,
			}).Debug("ignoring unknown channel mode")
		}
	}
}

// applyRoleChange maps one membership mode entry to a role transition:
// granted modes assign the mapped role, revoked modes demote to silent
// member.
func (cl *channelListener) applyRoleChange(client *irc.Client, change ModeChange, role Role) {
	if len(change.Params) == 0 {
		return
	}

	subject := change.Params[0]

	oldRole, newRole := role, RoleSilent
	if change.Added {
		oldRole, newRole = RoleSilent, role
	}

	if cl.isMe(client, subject) {
		cl.channel.setLocalRole(newRole)
		cl.stack.bus.Broadcast(RoleEvent{
			Channel: cl.channel.Name(),
			Nick:    subject,
			Local:   true,
			Old:     oldRole,
			New:     newRole,
		})
		return
	}

	if cl.channel.setMemberRole(subject, newRole) == nil {
		logrus.WithFields(logrus.Fields{
			"nick":    subject,
			"channel": cl.channel.Name(),
		}).Debug("mode change for untracked member")
		return
	}

	cl.stack.bus.Broadcast(RoleEvent{
		Channel: cl.channel.Name(),
		Nick:    subject,
		Old:     oldRole,
		New:     newRole,
	})
}

// reportLimitChange turns a user-limit mode entry into an informational
// system message; limits never change roles.
func (cl *channelListener) reportLimitChange(change ModeChange, source string) {
	var body string

	if change.Added {
		if len(change.Params) == 0 {
			return
		}

		limit, err := strconv.Atoi(change.Params[0])
		if err != nil {
			logrus.WithError(err).WithField("param", change.Params[0]).Debug("unparseable channel limit")
			return
		}

		body = "channel limit set to " + strconv.Itoa(limit) + " by " + source
	} else {
		body = "channel limit removed by " + source
	}

	cl.stack.bus.Broadcast(newMessageEvent(MessageSystem, cl.channel.Name(), source, body))
}
