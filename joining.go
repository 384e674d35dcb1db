package irccore

import (
	"context"
	"strings"
	"sync"

	irc "gopkg.in/irc.v3"
)

// joinResult is the correlated outcome of one JOIN exchange. On success the
// topic and raw NAMES entries accumulated during the wait seed the
// channel's initial state; on failure the server's reply text explains why.
type joinResult struct {
	topic   string
	names   []string
	failure string
}

// joinFailureNumerics are the replies that terminate a JOIN attempt with a
// failure: no such channel, cannot send, forward, full, invite-only,
// banned, bad key, bad mask, banned from forward target, throttled.
var joinFailureNumerics = map[string]bool{
	"403": true,
	"405": true,
	"470": true,
	"471": true,
	"473": true,
	"474": true,
	"475": true,
	"476": true,
	"479": true,
	"480": true,
}

// joinListener is the transient listener registered for the lifetime of one
// JOIN exchange. It collects the topic (332) and roster snapshot (353)
// delivered between the JOIN echo and the end-of-names reply (366).
type joinListener struct {
	channel string

	mu    sync.Mutex
	topic string
	names []string

	handle *ListenerHandle
	done   *await[joinResult]
}

func newJoinListener(channel string) *joinListener {
	return &joinListener{
		channel: channel,
		done:    newAwait[joinResult](),
	}
}

func (j *joinListener) Handle(client *irc.Client, msg *irc.Message) {
	switch msg.Command {
	case "332":
		if len(msg.Params) < 3 || msg.Params[1] != j.channel {
			return
		}

		j.mu.Lock()
		j.topic = msg.Trailing()
		j.mu.Unlock()
	case "353":
		if len(msg.Params) < 4 || msg.Params[2] != j.channel {
			return
		}

		j.mu.Lock()
		j.names = append(j.names, strings.Fields(msg.Trailing())...)
		j.mu.Unlock()
	case "366":
		if len(msg.Params) < 2 || msg.Params[1] != j.channel {
			return
		}

		j.mu.Lock()
		result := joinResult{topic: j.topic, names: j.names}
		j.mu.Unlock()

		j.handle.Remove()
		j.done.resolve(result, nil)
	default:
		if !joinFailureNumerics[msg.Command] {
			return
		}

		if len(msg.Params) < 2 || msg.Params[1] != j.channel {
			return
		}

		reason := msg.Trailing()
		if reason == "" {
			reason = "join refused (" + msg.Command + ")"
		}

		j.handle.Remove()
		j.done.resolve(joinResult{failure: reason}, nil)
	}
}

func (j *joinListener) wait(ctx context.Context) (joinResult, error) {
	return j.done.wait(ctx)
}
