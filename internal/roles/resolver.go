// Package roles resolves a member's privilege level within a group.
package roles

import (
	"context"
	"log/slog"

	"doorman/internal/platform/metrics"
	"doorman/internal/ports"
	"doorman/internal/settings"
	"doorman/pkg/domain"
	dErrors "doorman/pkg/domain-errors"
)

// Resolver classifies members as none/member/admin, serving results from a
// short-lived cache and falling back to a live membership query.
type Resolver struct {
	group    domain.GroupID
	settings *settings.Store
	chat     ports.ChatClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New builds a resolver for one group.
func New(group domain.GroupID, store *settings.Store, chat ports.ChatClient, opts ...Option) *Resolver {
	r := &Resolver{
		group:    group,
		settings: store,
		chat:     chat,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user's role. Cached entries are trusted for their TTL;
// on a miss the live membership record is classified in order: not a member
// → none; creator or restrict-members privilege → admin; otherwise member.
// The result is re-cached regardless of outcome.
func (r *Resolver) Resolve(ctx context.Context, user domain.UserID) (domain.Role, error) {
	cached, ok, err := r.settings.Role(ctx, user)
	if err != nil {
		return domain.RoleNone, err
	}
	if ok {
		if r.metrics != nil {
			r.metrics.RoleCacheHits.Inc()
		}
		return cached, nil
	}
	if r.metrics != nil {
		r.metrics.RoleCacheMisses.Inc()
	}

	member, err := r.chat.GetChatMember(ctx, r.group, user)
	if err != nil {
		return domain.RoleNone, dErrors.Wrap(err, dErrors.CodeUnavailable, "membership query")
	}

	var role domain.Role
	switch {
	case member == nil:
		role = domain.RoleNone
	case member.Status == domain.StatusCreator || member.CanRestrictMembers:
		role = domain.RoleAdmin
	default:
		role = domain.RoleMember
	}

	if err := r.settings.SetRole(ctx, user, role); err != nil {
		return domain.RoleNone, err
	}
	r.logger.Debug("role resolved",
		"group", r.group,
		"user", user,
		"role", role,
	)
	return role, nil
}

// Invalidate drops the cached role. Called when the user (re)joins and when
// a ban is applied.
func (r *Resolver) Invalidate(ctx context.Context, user domain.UserID) error {
	return r.settings.DeleteRole(ctx, user)
}
