// Package ports defines the collaborator interfaces consumed across the
// verification core. Interfaces live here when more than one component needs
// them; implementations live with their backends.
package ports

import (
	"context"

	"doorman/pkg/domain"
)

// ChatClient is the chat-platform boundary. All calls are per group; message
// and member handles are platform ids.
type ChatClient interface {
	// SendMessage posts an HTML message, optionally as a reply, and
	// returns the handle of the sent message.
	SendMessage(ctx context.Context, group domain.GroupID, html string, replyTo domain.MessageID) (domain.MessageID, error)

	// DeleteMessage removes a message. Deleting an already-removed
	// message is tolerated and must not be treated as fatal by callers.
	DeleteMessage(ctx context.Context, group domain.GroupID, msg domain.MessageID) error

	// RestrictMember revokes a member's send permissions.
	RestrictMember(ctx context.Context, group domain.GroupID, user domain.UserID) error

	// BanMember bans a member.
	BanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error

	// UnbanMember lifts a ban.
	UnbanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error

	// GetChatMember returns the live membership record, or nil when the
	// user is not known to the group.
	GetChatMember(ctx context.Context, group domain.GroupID, user domain.UserID) (*domain.ChatMember, error)

	// EscapeHTML escapes text for the platform's HTML message markup.
	EscapeHTML(text string) string

	// ParseCommand extracts a command token and optional single argument
	// from a message. ok is false when the message is not a command.
	ParseCommand(m *domain.Message) (cmd, arg string, ok bool)
}

// Localizer resolves locale-keyed message patterns.
type Localizer interface {
	Format(lang, key string, args ...any) string
	Languages() []string
}
