package domain

// User is the platform identity of a chat member as seen in an event.
type User struct {
	ID        UserID
	FirstName string
	LastName  string
}

// DisplayName is the user's first name, plus the last name when present.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ChatMember is the result of a live membership query.
type ChatMember struct {
	Status             string
	CanRestrictMembers bool
}

// StatusCreator marks the group owner in a membership query result.
const StatusCreator = "creator"

// Message is a platform-neutral inbound group event: a regular message, a
// join event (NewMembers non-empty), or an admin command. ReplyTo is
// populated one level deep when the message replies to another.
type Message struct {
	ID         MessageID
	Group      GroupID
	From       *User
	Date       int64 // unix seconds
	Text       string
	Sticker    bool
	NewMembers []User
	ReplyTo    *Message
}

// IsJoin reports whether the message announces new members.
func (m *Message) IsJoin() bool {
	return len(m.NewMembers) > 0
}
