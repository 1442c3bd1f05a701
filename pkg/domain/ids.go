package domain

import "strconv"

// GroupID identifies a single chat group under moderation.
type GroupID int64

// String returns the decimal representation of the group id.
func (g GroupID) String() string {
	return strconv.FormatInt(int64(g), 10)
}

// UserID identifies a chat platform user.
type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// MessageID identifies a message within a group. The zero value means
// "no message" and is used for replies without an anchor.
type MessageID int64

// IsNil returns true when the id does not reference a message.
func (m MessageID) IsNil() bool {
	return m == 0
}
