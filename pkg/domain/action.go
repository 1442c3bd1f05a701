package domain

// Action is the configured response to a failed verification.
// The set is closed: action dispatch in the verification engine switches over
// these values, never over raw stored strings.
type Action string

const (
	// ActionKick removes the user without a persistent ban (ban then unban).
	ActionKick Action = "kick"
	// ActionMute restricts the user's send permissions in place.
	ActionMute Action = "mute"
	// ActionBan removes the user and keeps the ban.
	ActionBan Action = "ban"
)

// DefaultAction applies when a group has no action configured, or when the
// stored value does not parse.
const DefaultAction = ActionKick

var validActions = map[Action]bool{
	ActionKick: true,
	ActionMute: true,
	ActionBan:  true,
}

// ParseAction validates an action string. Unrecognized values fall back to
// DefaultAction with ok=false.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	if !validActions[a] {
		return DefaultAction, false
	}
	return a, true
}

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}
