package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/fsnotify.v1"

	irccore "github.com/kestrel-im/irc-core"
)

type logSink struct{}

func (logSink) RegistrationChanged(state irccore.RegistrationState) {
	logrus.WithField("state", state.String()).Info("registration state changed")
}

func main() {
	// Attempt to load from .env if it exists.
	_ = godotenv.Load()

	level, err := logrus.ParseLevel(EnvDefault("IRC_LOG_LEVEL", "info"))
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)

	nick := Env("IRC_NICK")
	params, err := irccore.NewServerParameters(
		nick,
		EnvDefault("IRC_IDENT", nick),
		EnvDefault("IRC_REALNAME", nick),
	)
	if err != nil {
		logrus.WithError(err).Fatal("invalid server parameters")
	}

	port, err := strconv.Atoi(EnvDefault("IRC_PORT", "0"))
	if err != nil {
		logrus.WithError(err).Fatal("invalid IRC_PORT")
	}

	params.SetEndpoint(irccore.Endpoint{
		Host:     Env("IRC_HOST"),
		Port:     port,
		Password: EnvDefault("IRC_PASS", ""),
		Secure:   EnvDefault("IRC_TLS", "false") == "true",
	})

	channelsPath, err := filepath.Abs(Env("IRC_CHANNELS_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to get absolute path of channels file")
	}

	rooms := irccore.NewMemoryRoomManager()
	stack := irccore.NewStack(params, rooms, logSink{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = stack.Connect(connectCtx)
	cancel()
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect")
	}

	if err := syncChannels(ctx, stack, rooms, channelsPath); err != nil {
		logrus.WithError(err).Fatal("failed to join configured channels")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return pumpEvents(ctx, stack) })
	group.Go(func() error { return watchChannels(ctx, stack, rooms, channelsPath) })

	if err := group.Wait(); err != nil && err != context.Canceled {
		logrus.WithError(err).Error("run loop exited")
	}

	stack.Disconnect()
}

// syncChannels reconciles the joined set with the channels file: newly
// listed channels are joined, channels no longer listed are parted.
func syncChannels(ctx context.Context, stack *irccore.Stack, rooms *irccore.MemoryRoomManager, path string) error {
	configured, err := ReadChannelsFile(path)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool)
	for _, cc := range configured {
		wanted[cc.Name] = true

		if stack.IsJoined(cc.Name) {
			continue
		}

		joinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := stack.Join(joinCtx, rooms.FindOrCreateRoom(cc.Name, false), cc.Key)
		cancel()
		if err != nil {
			return err
		}
	}

	for _, room := range stack.JoinedChannels() {
		if room.Private() || wanted[room.Name()] {
			continue
		}

		if err := stack.Leave(room); err != nil {
			logrus.WithError(err).WithField("channel", room.Name()).Warn("failed to leave channel")
		}
	}

	return nil
}

func pumpEvents(ctx context.Context, stack *irccore.Stack) error {
	handle, ok := stack.Events().Subscribe("main")
	if !ok {
		logrus.Fatal("event bus subscription key already taken")
	}
	defer handle.Close()

	for {
		event, ok := handle.Recv(ctx)
		if !ok {
			return ctx.Err()
		}

		switch e := event.(type) {
		case irccore.MessageEvent:
			logrus.WithFields(logrus.Fields{
				"channel": e.Channel,
				"sender":  e.Sender,
				"id":      e.ID,
			}).Info(e.Body)
		case irccore.PresenceEvent:
			logrus.WithFields(logrus.Fields{
				"channel": e.Channel,
				"nick":    e.Nick,
				"kind":    e.Kind,
			}).Info("presence change")
		case irccore.RoleEvent:
			logrus.WithFields(logrus.Fields{
				"channel": e.Channel,
				"nick":    e.Nick,
				"old":     e.Old.String(),
				"new":     e.New.String(),
			}).Info("role change")
		case irccore.RenameEvent:
			logrus.WithFields(logrus.Fields{
				"channel": e.Channel,
				"old":     e.OldNick,
				"new":     e.NewNick,
			}).Info("nick change")
		}
	}
}

// watchChannels re-syncs the joined set whenever the channels file is
// rewritten.
func watchChannels(ctx context.Context, stack *irccore.Stack, rooms *irccore.MemoryRoomManager, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	filename := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}

			logrus.WithField("file", event.Name).Info("channels file modified")

			if err := syncChannels(ctx, stack, rooms, path); err != nil {
				logrus.WithError(err).Warn("failed to re-sync channels")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logrus.WithError(err).Error("channels file watcher error")
		}
	}
}
