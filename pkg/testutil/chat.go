// Package testutil provides in-memory collaborator implementations shared
// across test packages.
package testutil

import (
	"context"
	"strings"
	"sync"

	"doorman/pkg/domain"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	ID      domain.MessageID
	Group   domain.GroupID
	HTML    string
	ReplyTo domain.MessageID
}

// FakeChat is an in-memory chat platform. It hands out sequential message
// ids and records every call; all accessors are safe for concurrent use.
type FakeChat struct {
	mu         sync.Mutex
	nextMsgID  domain.MessageID
	sent       []SentMessage
	deleted    []domain.MessageID
	restricted []domain.UserID
	banned     []domain.UserID
	unbanned   []domain.UserID

	// Members configures GetChatMember responses; absent users resolve
	// to nil (not a member).
	Members map[domain.UserID]*domain.ChatMember

	// SendErr, when set, fails every SendMessage call.
	SendErr error
}

func NewFakeChat() *FakeChat {
	return &FakeChat{
		nextMsgID: 1000,
		Members:   make(map[domain.UserID]*domain.ChatMember),
	}
}

func (c *FakeChat) SendMessage(ctx context.Context, group domain.GroupID, html string, replyTo domain.MessageID) (domain.MessageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return 0, c.SendErr
	}
	c.nextMsgID++
	m := SentMessage{ID: c.nextMsgID, Group: group, HTML: html, ReplyTo: replyTo}
	c.sent = append(c.sent, m)
	return m.ID, nil
}

func (c *FakeChat) DeleteMessage(ctx context.Context, group domain.GroupID, msg domain.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, msg)
	return nil
}

func (c *FakeChat) RestrictMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restricted = append(c.restricted, user)
	return nil
}

func (c *FakeChat) BanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banned = append(c.banned, user)
	return nil
}

func (c *FakeChat) UnbanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbanned = append(c.unbanned, user)
	return nil
}

func (c *FakeChat) GetChatMember(ctx context.Context, group domain.GroupID, user domain.UserID) (*domain.ChatMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Members[user], nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (c *FakeChat) EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

// ParseCommand treats "/cmd arg rest" as a command with a single argument
// spanning the remainder of the line.
func (c *FakeChat) ParseCommand(m *domain.Message) (string, string, bool) {
	if m == nil || !strings.HasPrefix(m.Text, "/") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(m.Text, "/"), " ", 2)
	cmd := parts[0]
	if cmd == "" {
		return "", "", false
	}
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg, true
}

// Sent returns a copy of all sent messages.
func (c *FakeChat) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// LastSent returns the most recent sent message, or nil.
func (c *FakeChat) LastSent() *SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	m := c.sent[len(c.sent)-1]
	return &m
}

// Deleted returns a copy of all deleted message ids, in call order.
func (c *FakeChat) Deleted() []domain.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.MessageID, len(c.deleted))
	copy(out, c.deleted)
	return out
}

// HasDeleted reports whether msg was deleted at least once.
func (c *FakeChat) HasDeleted(msg domain.MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.deleted {
		if d == msg {
			return true
		}
	}
	return false
}

// Banned returns all banned user ids.
func (c *FakeChat) Banned() []domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.UserID, len(c.banned))
	copy(out, c.banned)
	return out
}

// Unbanned returns all unbanned user ids.
func (c *FakeChat) Unbanned() []domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.UserID, len(c.unbanned))
	copy(out, c.unbanned)
	return out
}

// Restricted returns all restricted user ids.
func (c *FakeChat) Restricted() []domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.UserID, len(c.restricted))
	copy(out, c.restricted)
	return out
}
