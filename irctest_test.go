package irccore

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is a scripted in-memory IRC server. Every line the client
// sends is recorded and handed to the script, whose returned lines are sent
// back; Send pushes unsolicited lines.
type fakeServer struct {
	conn   net.Conn
	script func(line string) []string
	out    chan string

	mu   sync.Mutex
	recv []string
}

func newFakeServer(t *testing.T, script func(line string) []string) (*fakeServer, net.Conn) {
	t.Helper()

	serverSide, clientSide := net.Pipe()

	f := &fakeServer{conn: serverSide, script: script, out: make(chan string, 256)}
	go f.run()
	go f.writeLoop()

	t.Cleanup(func() { _ = serverSide.Close() })

	return f, clientSide
}

// writeLoop drains queued responses on its own goroutine so the read loop
// never blocks on the synchronous pipe while the client is still writing.
func (f *fakeServer) writeLoop() {
	for line := range f.out {
		if _, err := f.conn.Write([]byte(line + "\r\n")); err != nil {
			return
		}
	}
}

func (f *fakeServer) run() {
	scanner := bufio.NewScanner(f.conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		f.mu.Lock()
		f.recv = append(f.recv, line)
		f.mu.Unlock()

		if f.script == nil {
			continue
		}

		for _, resp := range f.script(line) {
			f.Send(resp)
		}
	}
}

// Send pushes a line from the server to the client.
func (f *fakeServer) Send(line string) {
	f.out <- line
}

// Received returns a snapshot of the lines the client has sent.
func (f *fakeServer) Received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ret := make([]string, len(f.recv))
	copy(ret, f.recv)

	return ret
}

func (f *fakeServer) countReceived(prefix string) int {
	n := 0
	for _, line := range f.Received() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}

	return n
}

// recordingSink records registration transitions for assertions.
type recordingSink struct {
	mu     sync.Mutex
	states []RegistrationState
}

func (r *recordingSink) RegistrationChanged(state RegistrationState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, state)
}

func (r *recordingSink) States() []RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]RegistrationState, len(r.states))
	copy(ret, r.states)

	return ret
}

// newTestStack wires a stack to a scripted server through an in-memory
// pipe.
func newTestStack(t *testing.T, script func(line string) []string) (*Stack, *fakeServer, *recordingSink) {
	t.Helper()

	params, err := NewServerParameters("dan", "dan", "Dan")
	require.NoError(t, err)
	params.SetEndpoint(Endpoint{Host: "irc.test"})

	server, clientSide := newFakeServer(t, script)

	sink := &recordingSink{}
	stack := NewStack(params, NewMemoryRoomManager(), sink)
	stack.dial = func(Endpoint) (net.Conn, error) { return clientSide, nil }

	return stack, server, sink
}

// registrationScript welcomes the client once registration completes and
// delegates everything else to extra.
func registrationScript(extra func(line string) []string) func(line string) []string {
	return func(line string) []string {
		if strings.HasPrefix(line, "USER ") {
			return []string{":irc.test 001 dan :Welcome to the Test IRC Network dan"}
		}

		if extra != nil {
			return extra(line)
		}

		return nil
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// nextEvent reads one event from a bus subscription, failing the test on
// timeout.
func nextEvent(t *testing.T, handle *BusHandle) any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event, ok := handle.Recv(ctx)
	require.True(t, ok, "timed out waiting for event")

	return event
}

// joinScript responds to a JOIN for channel with an echo, topic and the
// given NAMES entries.
func joinScript(channel, topic string, names []string) func(line string) []string {
	return func(line string) []string {
		if !strings.HasPrefix(line, "JOIN "+channel) {
			return nil
		}

		return []string{
			":dan!dan@localhost JOIN " + channel,
			":irc.test 332 dan " + channel + " :" + topic,
			":irc.test 353 dan = " + channel + " :" + strings.Join(names, " "),
			":irc.test 366 dan " + channel + " :End of /NAMES list",
		}
	}
}
