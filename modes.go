package irccore

// ModeKind identifies the interpreted meaning of a channel mode letter.
type ModeKind int

const (
	ModeUnknown ModeKind = iota
	ModeOwner
	ModeOperator
	ModeVoice
	ModeLimit
)

func (k ModeKind) String() string {
	switch k {
	case ModeOwner:
		return "owner"
	case ModeOperator:
		return "operator"
	case ModeVoice:
		return "voice"
	case ModeLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// ModeChange is one discrete entry interpreted from a channel mode string.
// Unrecognized letters are preserved as ModeUnknown entries carrying the
// raw letter, so nothing is silently dropped from the protocol stream.
type ModeChange struct {
	Kind   ModeKind
	Added  bool
	Params []string
}

// ParseModeChanges interprets a raw mode string such as "+ov-l" together
// with its parameter list into an ordered sequence of changes. A '+' or '-'
// applies to every letter until the next sign. Parsing is best effort: a
// membership mode missing its parameter is skipped, and unknown letters
// consume no parameters since their arity cannot be known.
func ParseModeChanges(modeStr string, params []string) []ModeChange {
	var changes []ModeChange

	added := true
	next := 0
	take := func() (string, bool) {
		if next >= len(params) {
			return "", false
		}

		p := params[next]
		next++

		return p, true
	}

	for _, r := range modeStr {
		switch r {
		case '+':
			added = true
		case '-':
			added = false
		case 'q', 'o', 'v':
			arg, ok := take()
			if !ok {
				continue
			}

			kind := ModeOwner
			switch r {
			case 'o':
				kind = ModeOperator
			case 'v':
				kind = ModeVoice
			}

			changes = append(changes, ModeChange{Kind: kind, Added: added, Params: []string{arg}})
		case 'l':
			// The limit value is only present when the limit is being set.
			if added {
				arg, ok := take()
				if !ok {
					continue
				}

				changes = append(changes, ModeChange{Kind: ModeLimit, Added: true, Params: []string{arg}})
			} else {
				changes = append(changes, ModeChange{Kind: ModeLimit, Added: false})
			}
		default:
			changes = append(changes, ModeChange{Kind: ModeUnknown, Added: added, Params: []string{string(r)}})
		}
	}

	return changes
}

// roleForMode maps a membership mode letter to the channel role it grants.
func roleForMode(letter rune) (Role, bool) {
	switch letter {
	case 'q':
		return RoleOwner, true
	case 'o':
		return RoleAdmin, true
	case 'v':
		return RoleMember, true
	}

	return RoleSilent, false
}
