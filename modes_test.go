package irccore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModeChangesGrant(t *testing.T) {
	changes := ParseModeChanges("+o", []string{"alice"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOperator, Added: true, Params: []string{"alice"}},
	}, changes)
}

func TestParseModeChangesRevoke(t *testing.T) {
	changes := ParseModeChanges("-o", []string{"alice"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOperator, Added: false, Params: []string{"alice"}},
	}, changes)
}

func TestParseModeChangesGrouped(t *testing.T) {
	changes := ParseModeChanges("+ov", []string{"alice", "bob"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOperator, Added: true, Params: []string{"alice"}},
		{Kind: ModeVoice, Added: true, Params: []string{"bob"}},
	}, changes)
}

func TestParseModeChangesMixedSigns(t *testing.T) {
	changes := ParseModeChanges("+o-v", []string{"alice", "bob"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOperator, Added: true, Params: []string{"alice"}},
		{Kind: ModeVoice, Added: false, Params: []string{"bob"}},
	}, changes)
}

func TestParseModeChangesOwner(t *testing.T) {
	changes := ParseModeChanges("+q", []string{"alice"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOwner, Added: true, Params: []string{"alice"}},
	}, changes)
}

func TestParseModeChangesLimit(t *testing.T) {
	set := ParseModeChanges("+l", []string{"50"})
	assert.Equal(t, []ModeChange{
		{Kind: ModeLimit, Added: true, Params: []string{"50"}},
	}, set)

	// Removing the limit carries no parameter.
	unset := ParseModeChanges("-l", nil)
	assert.Equal(t, []ModeChange{
		{Kind: ModeLimit, Added: false},
	}, unset)
}

func TestParseModeChangesUnknownLetter(t *testing.T) {
	changes := ParseModeChanges("+n", nil)

	assert.Equal(t, []ModeChange{
		{Kind: ModeUnknown, Added: true, Params: []string{"n"}},
	}, changes)
}

func TestParseModeChangesUnknownConsumesNoParams(t *testing.T) {
	// The parameter belongs to the +o that follows the unknown +n.
	changes := ParseModeChanges("+no", []string{"alice"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeUnknown, Added: true, Params: []string{"n"}},
		{Kind: ModeOperator, Added: true, Params: []string{"alice"}},
	}, changes)
}

func TestParseModeChangesMissingParamSkipped(t *testing.T) {
	changes := ParseModeChanges("+ov", []string{"alice"})

	assert.Equal(t, []ModeChange{
		{Kind: ModeOperator, Added: true, Params: []string{"alice"}},
	}, changes)
}

func TestParseModeChangesEmpty(t *testing.T) {
	assert.Empty(t, ParseModeChanges("", nil))
	assert.Empty(t, ParseModeChanges("+", nil))
}

func TestRoleForMode(t *testing.T) {
	role, ok := roleForMode('q')
	assert.True(t, ok)
	assert.Equal(t, RoleOwner, role)

	role, ok = roleForMode('o')
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	role, ok = roleForMode('v')
	assert.True(t, ok)
	assert.Equal(t, RoleMember, role)

	_, ok = roleForMode('x')
	assert.False(t, ok)
}
