package irccore

import (
	"strings"
	"sync"

	irc "gopkg.in/irc.v3"
)

// defaultPrefix is the conventional PREFIX advertisement, used when the
// server never sent one or sent something we could not parse.
const defaultPrefix = "(qaohv)~&@%+"

// ISupportTracker records the RPL_ISUPPORT (005) parameters advertised by
// the server. The stack mainly needs the PREFIX mapping to interpret nick
// prefixes in NAMES replies.
type ISupportTracker struct {
	mu sync.RWMutex

	settings map[string]string
}

func NewISupportTracker() *ISupportTracker {
	return &ISupportTracker{
		settings: make(map[string]string),
	}
}

func (t *ISupportTracker) Handle(msg *irc.Message) {
	if msg.Command != "005" || len(msg.Params) < 2 {
		return
	}

	// Check for really old servers which based 005 off of rfc2812.
	if !strings.HasSuffix(msg.Trailing(), "server") {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, param := range msg.Params[1 : len(msg.Params)-1] {
		data := strings.SplitN(param, "=", 2)
		if len(data) < 2 {
			t.settings[data[0]] = ""
			continue
		}

		t.settings[data[0]] = data[1]
	}
}

// Raw returns the raw value for an advertised parameter.
func (t *ISupportTracker) Raw(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ret, ok := t.settings[key]

	return ret, ok
}

// PrefixMap returns the mapping from nick prefix symbol to membership mode
// letter, e.g. '@' -> 'o'. It always returns a usable map.
func (t *ISupportTracker) PrefixMap() map[rune]rune {
	prefix, ok := t.Raw("PREFIX")
	if !ok || prefix == "" {
		prefix = defaultPrefix
	}

	prefixes, ok := parsePrefix(prefix)
	if !ok {
		prefixes, _ = parsePrefix(defaultPrefix)
	}

	return prefixes
}

func parsePrefix(prefix string) (map[rune]rune, bool) {
	// Sample: (qaohv)~&@%+
	i := strings.IndexByte(prefix, ')')
	if len(prefix) == 0 || prefix[0] != '(' || i < 0 {
		return nil, false
	}

	var symbols []rune // ~&@%+
	for _, r := range prefix[i+1:] {
		symbols = append(symbols, r)
	}

	var modes []rune // qaohv
	for _, r := range prefix[1:i] {
		modes = append(modes, r)
	}

	if len(modes) != len(symbols) {
		return nil, false
	}

	prefixes := make(map[rune]rune)
	for k := range symbols {
		prefixes[symbols[k]] = modes[k]
	}

	return prefixes, true
}
