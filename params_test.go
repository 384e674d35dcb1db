package irccore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerParameters(t *testing.T) {
	params, err := NewServerParameters("dan", "dan", "Dan")
	require.NoError(t, err)

	assert.Equal(t, "dan", params.Nickname())
	assert.Equal(t, "dan", params.Ident())
	assert.Equal(t, "Dan", params.RealName())
}

func TestNewServerParametersRejectsEmptyNick(t *testing.T) {
	_, err := NewServerParameters("", "dan", "Dan")
	assert.Error(t, err)
}

func TestNewServerParametersRejectsChannelPrefix(t *testing.T) {
	_, err := NewServerParameters("#dan", "dan", "Dan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved for channels")
}

func TestSetNicknameValidates(t *testing.T) {
	params, err := NewServerParameters("dan", "dan", "Dan")
	require.NoError(t, err)

	assert.Error(t, params.SetNickname(""))
	assert.Error(t, params.SetNickname("#chan"))
	assert.Equal(t, "dan", params.Nickname())

	require.NoError(t, params.SetNickname("dana"))
	assert.Equal(t, "dana", params.Nickname())
}

func TestAlternateNicknames(t *testing.T) {
	params, err := NewServerParameters("dan", "dan", "Dan")
	require.NoError(t, err)

	assert.Equal(t, []string{"dan_"}, params.AlternateNicknames())
}

func TestEndpointAddr(t *testing.T) {
	assert.Equal(t, "irc.test:6667", Endpoint{Host: "irc.test"}.Addr())
	assert.Equal(t, "irc.test:6697", Endpoint{Host: "irc.test", Secure: true}.Addr())
	assert.Equal(t, "irc.test:7000", Endpoint{Host: "irc.test", Port: 7000}.Addr())
	assert.Equal(t, "[::1]:6667", Endpoint{Host: "::1"}.Addr())
}
