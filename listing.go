package irccore

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	irc "gopkg.in/irc.v3"
)

// listCollector aggregates one paginated LIST exchange (321 list-start,
// 322 list-entry, 323 list-end) and releases the blocked caller exactly
// once. The stack serializes LIST exchanges, so at most one collector is
// registered at a time.
type listCollector struct {
	mu       sync.Mutex
	buf      []string
	detached bool
	handle   *ListenerHandle

	done *await[[]string]
}

func newListCollector() *listCollector {
	return &listCollector{
		done: newAwait[[]string](),
	}
}

func (l *listCollector) Handle(client *irc.Client, msg *irc.Message) {
	switch msg.Command {
	case "321":
		l.mu.Lock()
		if !l.detached {
			l.buf = nil
		}
		l.mu.Unlock()
	case "322":
		// Params: target, channel, visible count, topic. Entries without a
		// channel token are skipped, not fatal.
		if len(msg.Params) < 2 || msg.Params[1] == "" {
			logrus.WithField("params", msg.Params).Debug("skipping malformed LIST entry")
			return
		}

		l.mu.Lock()
		if !l.detached {
			l.buf = append(l.buf, msg.Params[1])
		}
		l.mu.Unlock()
	case "323":
		l.mu.Lock()
		result := l.buf
		// Detach the buffer so a later, unrelated LIST exchange cannot
		// corrupt the completed result.
		l.buf = nil
		l.detached = true
		handle := l.handle
		l.mu.Unlock()

		if handle != nil {
			handle.Remove()
		}

		l.done.resolve(result, nil)
	}
}

func (l *listCollector) setHandle(handle *ListenerHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handle = handle
}

func (l *listCollector) wait(ctx context.Context) ([]string, error) {
	return l.done.wait(ctx)
}
