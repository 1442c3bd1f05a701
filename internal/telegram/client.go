// Package telegram adapts the Telegram Bot API to the chat-platform boundary
// the verification core is written against.
package telegram

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	dErrors "doorman/pkg/domain-errors"

	"doorman/pkg/domain"
)

// Handler consumes messages for one group.
type Handler interface {
	HandleMessage(ctx context.Context, m *domain.Message) error
}

// Client wraps a bot connection. It implements ports.ChatClient and runs the
// long-poll update loop.
type Client struct {
	api      *tgbotapi.BotAPI
	username string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New authenticates the bot token and returns a connected client.
func New(token string, opts ...Option) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: authenticate bot")
	}

	c := &Client{
		api:      api,
		username: api.Self.UserName,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("telegram bot authenticated", "username", c.username)
	return c, nil
}

func (c *Client) SendMessage(ctx context.Context, group domain.GroupID, html string, replyTo domain.MessageID) (domain.MessageID, error) {
	msg := tgbotapi.NewMessage(int64(group), html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if !replyTo.IsNil() {
		msg.ReplyToMessageID = int(replyTo)
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: send message")
	}
	return domain.MessageID(sent.MessageID), nil
}

func (c *Client) DeleteMessage(ctx context.Context, group domain.GroupID, msg domain.MessageID) error {
	_, err := c.api.Request(tgbotapi.NewDeleteMessage(int64(group), int(msg)))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: delete message")
	}
	return nil
}

func (c *Client) RestrictMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	_, err := c.api.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: c.member(group, user),
		// all-false permissions: the member stays in the group but cannot post
		Permissions: &tgbotapi.ChatPermissions{},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: restrict member")
	}
	return nil
}

func (c *Client) BanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	_, err := c.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: c.member(group, user),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: ban member")
	}
	return nil
}

func (c *Client) UnbanMember(ctx context.Context, group domain.GroupID, user domain.UserID) error {
	_, err := c.api.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: c.member(group, user),
		OnlyIfBanned:     true,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: unban member")
	}
	return nil
}

func (c *Client) GetChatMember(ctx context.Context, group domain.GroupID, user domain.UserID) (*domain.ChatMember, error) {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: int64(group),
			UserID: int64(user),
		},
	})
	if err != nil {
		// the API reports unknown users as a request error
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "telegram: get chat member")
	}
	if member.Status == "left" || member.Status == "kicked" {
		return nil, nil
	}
	return &domain.ChatMember{
		Status:             member.Status,
		CanRestrictMembers: member.CanRestrictMembers,
	}, nil
}

func (c *Client) EscapeHTML(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, text)
}

// ParseCommand recognizes "/cmd", "/cmd@botname" and a trailing free-form
// argument. Commands addressed to a different bot are not commands here.
func (c *Client) ParseCommand(m *domain.Message) (string, string, bool) {
	return parseCommand(m, c.username)
}

func parseCommand(m *domain.Message, username string) (string, string, bool) {
	if m == nil || !strings.HasPrefix(m.Text, "/") {
		return "", "", false
	}
	head, arg, _ := strings.Cut(strings.TrimPrefix(m.Text, "/"), " ")
	cmd, target, addressed := strings.Cut(head, "@")
	if cmd == "" {
		return "", "", false
	}
	if addressed && !strings.EqualFold(target, username) {
		return "", "", false
	}
	return cmd, strings.TrimSpace(arg), true
}

func (c *Client) member(group domain.GroupID, user domain.UserID) tgbotapi.ChatMemberConfig {
	return tgbotapi.ChatMemberConfig{
		ChatID: int64(group),
		UserID: int64(user),
	}
}

// Run long-polls for updates until ctx is cancelled, converting each group
// message and handing it to the handler that route returns. Every message is
// handled on its own goroutine so a verification in progress never stalls
// the loop.
func (c *Client) Run(ctx context.Context, route func(domain.GroupID) Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := c.api.GetUpdatesChan(cfg)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if !update.Message.Chat.IsGroup() && !update.Message.Chat.IsSuperGroup() {
				continue
			}
			m := toDomain(update.Message)
			handler := route(m.Group)
			go func() {
				if err := handler.HandleMessage(ctx, m); err != nil {
					c.logger.Error("message handling failed",
						"group", m.Group,
						"message", m.ID,
						"error", err,
					)
				}
			}()
		}
	}
}

func toDomain(m *tgbotapi.Message) *domain.Message {
	out := &domain.Message{
		ID:      domain.MessageID(m.MessageID),
		Group:   domain.GroupID(m.Chat.ID),
		Date:    int64(m.Date),
		Text:    m.Text,
		Sticker: m.Sticker != nil,
	}
	if m.From != nil {
		u := toUser(m.From)
		out.From = &u
	}
	for _, joined := range m.NewChatMembers {
		member := joined
		out.NewMembers = append(out.NewMembers, toUser(&member))
	}
	if m.ReplyToMessage != nil {
		out.ReplyTo = toDomain(m.ReplyToMessage)
	}
	return out
}

func toUser(u *tgbotapi.User) domain.User {
	return domain.User{
		ID:        domain.UserID(u.ID),
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
