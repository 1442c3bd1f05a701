// Package group routes chat messages for a single group: join events start
// verification, messages from unverified members are gated, everything else
// goes to the command dispatcher.
package group

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"doorman/internal/ports"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/pkg/domain"
)

// Verifier drives verification for the group's members.
type Verifier interface {
	Begin(ctx context.Context, join *domain.Message, user domain.User) error
	Pass(ctx context.Context, user domain.UserID, anchor domain.MessageID) error
}

// Commander runs in-chat admin commands.
type Commander interface {
	Dispatch(ctx context.Context, m *domain.Message) (bool, error)
}

// Group is the controller for one chat.
type Group struct {
	id       domain.GroupID
	chat     ports.ChatClient
	settings *settings.Store
	roles    *roles.Resolver
	engine   Verifier
	commands Commander
	logger   *slog.Logger
}

// Option configures a Group.
type Option func(*Group)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Group) {
		g.logger = logger
	}
}

// New builds the controller for one group.
func New(id domain.GroupID, chat ports.ChatClient, store *settings.Store, resolver *roles.Resolver, engine Verifier, commands Commander, opts ...Option) *Group {
	g := &Group{
		id:       id,
		chat:     chat,
		settings: store,
		roles:    resolver,
		engine:   engine,
		commands: commands,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HandleMessage routes one incoming message. Join events block until every
// new member's verification resolves, so callers should handle updates on
// separate goroutines.
func (g *Group) HandleMessage(ctx context.Context, m *domain.Message) error {
	if m.IsJoin() {
		return g.handleJoin(ctx, m)
	}

	if m.From != nil {
		pending, err := g.settings.Pending(ctx, m.From.ID)
		if err != nil {
			return err
		}
		if pending {
			return g.gatePending(ctx, m)
		}
	}

	_, err := g.commands.Dispatch(ctx, m)
	return err
}

// handleJoin drops any stale cached role for the joiners, then challenges
// each of them concurrently when verification is enabled.
func (g *Group) handleJoin(ctx context.Context, m *domain.Message) error {
	for _, u := range m.NewMembers {
		if err := g.roles.Invalidate(ctx, u.ID); err != nil {
			return err
		}
	}

	enabled, err := g.settings.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, u := range m.NewMembers {
		user := u
		eg.Go(func() error {
			return g.engine.Begin(ctx, m, user)
		})
	}
	return eg.Wait()
}

// gatePending handles a message from a member with an outstanding challenge:
// a sticker passes verification, anything else is removed from the chat.
func (g *Group) gatePending(ctx context.Context, m *domain.Message) error {
	if m.Sticker {
		return g.engine.Pass(ctx, m.From.ID, m.ID)
	}
	g.logger.Debug("removed message from unverified member",
		"group", g.id,
		"user", m.From.ID,
		"message", m.ID,
	)
	return g.chat.DeleteMessage(ctx, g.id, m.ID)
}
