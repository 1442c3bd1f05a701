// Package settings is the typed accessor layer over the key-value backend
// for one group's configuration. It is the sole source of truth: nothing
// above it caches configuration beyond a single operation, with the role
// cache (which has its own TTL) as the one intentional exception.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"doorman/internal/kv"
	"doorman/internal/ports"
	"doorman/pkg/domain"
	dErrors "doorman/pkg/domain-errors"
)

// Stage names a verification message template slot.
type Stage string

const (
	StageJoin Stage = "onjoin"
	StagePass Stage = "onpass"
	StageFail Stage = "onfail"
)

const (
	// DefaultTimeout applies when no timeout is configured.
	DefaultTimeout = 60
	// MaxTimeout is the largest accepted timeout (31-bit positive int).
	MaxTimeout = 2147483647
	// DefaultLang applies when no language is configured.
	DefaultLang = "en_US"
	// RoleTTL is the freshness window of cached member roles.
	RoleTTL = 120 * time.Second
)

// Store exposes one group's configuration. All reads substitute defaults for
// absent or unparseable values; no read ever fails on absence.
type Store struct {
	kv      kv.Store
	group   domain.GroupID
	locales ports.Localizer
}

// New builds the settings store for a group over a shared backend.
func New(store kv.Store, group domain.GroupID, locales ports.Localizer) *Store {
	return &Store{kv: store, group: group, locales: locales}
}

func (s *Store) key(field string) string {
	return fmt.Sprintf("group:%d:%s", s.group, field)
}

func (s *Store) userKey(user domain.UserID, field string) string {
	return fmt.Sprintf("group:%d:user:%d:%s", s.group, user, field)
}

// Enabled reports whether join verification is on for this group.
func (s *Store) Enabled(ctx context.Context) (bool, error) {
	return s.kv.Exists(ctx, s.key("enabled"))
}

// SetEnabled flips the enabled flag. Disabling deletes the key so absence
// keeps meaning "default off".
func (s *Store) SetEnabled(ctx context.Context, on bool) error {
	if on {
		return s.kv.Set(ctx, s.key("enabled"), "true", kv.NoTTL)
	}
	return s.kv.Delete(ctx, s.key("enabled"))
}

// Verbose reports the verbose display flag.
func (s *Store) Verbose(ctx context.Context) (bool, error) {
	return s.kv.Exists(ctx, s.key("verbose"))
}

// Quiet reports the quiet display flag.
func (s *Store) Quiet(ctx context.Context) (bool, error) {
	return s.kv.Exists(ctx, s.key("quiet"))
}

// SetVerbose sets or clears verbose. Turning it on clears quiet: the two
// flags are mutually exclusive.
func (s *Store) SetVerbose(ctx context.Context, on bool) error {
	if !on {
		return s.kv.Delete(ctx, s.key("verbose"))
	}
	if err := s.kv.Set(ctx, s.key("verbose"), "true", kv.NoTTL); err != nil {
		return err
	}
	return s.kv.Delete(ctx, s.key("quiet"))
}

// SetQuiet sets or clears quiet, clearing verbose when turning on.
func (s *Store) SetQuiet(ctx context.Context, on bool) error {
	if !on {
		return s.kv.Delete(ctx, s.key("quiet"))
	}
	if err := s.kv.Set(ctx, s.key("quiet"), "true", kv.NoTTL); err != nil {
		return err
	}
	return s.kv.Delete(ctx, s.key("verbose"))
}

// ParseTimeout validates a timeout argument. Accepted domain is
// 1..MaxTimeout; anything else (non-numeric, zero, negative, >= 2^31) is a
// bad parameter.
func ParseTimeout(arg string) (int, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n <= 0 || n > MaxTimeout {
		return 0, dErrors.New(dErrors.CodeBadRequest, "timeout out of range")
	}
	return int(n), nil
}

// Timeout returns the verification window in seconds. Unparseable stored
// values fall back to the default rather than being trusted.
func (s *Store) Timeout(ctx context.Context) (int, error) {
	v, ok, err := s.kv.Get(ctx, s.key("timeout"))
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultTimeout, nil
	}
	n, err := ParseTimeout(v)
	if err != nil {
		return DefaultTimeout, nil
	}
	return n, nil
}

// SetTimeout persists the verification window after range-checking it.
func (s *Store) SetTimeout(ctx context.Context, seconds int) error {
	if seconds <= 0 || seconds > MaxTimeout {
		return dErrors.New(dErrors.CodeBadRequest, "timeout out of range")
	}
	return s.kv.Set(ctx, s.key("timeout"), strconv.Itoa(seconds), kv.NoTTL)
}

// Action returns the configured moderation action, defaulting on absence or
// an unrecognized stored value.
func (s *Store) Action(ctx context.Context) (domain.Action, error) {
	v, ok, err := s.kv.Get(ctx, s.key("action"))
	if err != nil {
		return domain.DefaultAction, err
	}
	if !ok {
		return domain.DefaultAction, nil
	}
	a, _ := domain.ParseAction(v)
	return a, nil
}

// SetAction persists the moderation action.
func (s *Store) SetAction(ctx context.Context, a domain.Action) error {
	if _, ok := domain.ParseAction(a.String()); !ok {
		return dErrors.New(dErrors.CodeBadRequest, "unknown action")
	}
	return s.kv.Set(ctx, s.key("action"), a.String(), kv.NoTTL)
}

// Lang returns the group's language tag.
func (s *Store) Lang(ctx context.Context) (string, error) {
	v, ok, err := s.kv.Get(ctx, s.key("lang"))
	if err != nil || !ok {
		return DefaultLang, err
	}
	return v, nil
}

// SetLang persists the language tag. No validation against the supported
// list: unknown locales degrade through the localizer's fallback chain.
func (s *Store) SetLang(ctx context.Context, lang string) error {
	return s.kv.Set(ctx, s.key("lang"), lang, kv.NoTTL)
}

// Template returns the stored template for a stage, or the localized
// built-in default when none is set.
func (s *Store) Template(ctx context.Context, stage Stage) (string, error) {
	v, ok, err := s.kv.Get(ctx, s.key(string(stage)+":template"))
	if err != nil {
		return "", err
	}
	if ok {
		return v, nil
	}
	lang, err := s.Lang(ctx)
	if err != nil {
		return "", err
	}
	return s.locales.Format(lang, string(stage)+".default"), nil
}

// SetTemplate persists a stage template.
func (s *Store) SetTemplate(ctx context.Context, stage Stage, tmpl string) error {
	return s.kv.Set(ctx, s.key(string(stage)+":template"), tmpl, kv.NoTTL)
}

// Pending reports whether a user has an unresolved join challenge.
func (s *Store) Pending(ctx context.Context, user domain.UserID) (bool, error) {
	return s.kv.Exists(ctx, s.userKey(user, "pending"))
}

// SetPending marks a user as challenged. No TTL: the flag must be cleared
// explicitly on resolution.
func (s *Store) SetPending(ctx context.Context, user domain.UserID) error {
	return s.kv.Set(ctx, s.userKey(user, "pending"), "true", kv.NoTTL)
}

// ClearPending removes the pending flag.
func (s *Store) ClearPending(ctx context.Context, user domain.UserID) error {
	return s.kv.Delete(ctx, s.userKey(user, "pending"))
}

// Role returns the cached role for a user. ok is false on absence, expiry,
// or an unrecognized stored value.
func (s *Store) Role(ctx context.Context, user domain.UserID) (domain.Role, bool, error) {
	v, ok, err := s.kv.Get(ctx, s.userKey(user, "role"))
	if err != nil || !ok {
		return domain.RoleNone, false, err
	}
	r, valid := domain.ParseRole(v)
	return r, valid, nil
}

// SetRole caches a user's role for RoleTTL.
func (s *Store) SetRole(ctx context.Context, user domain.UserID, role domain.Role) error {
	return s.kv.Set(ctx, s.userKey(user, "role"), role.String(), RoleTTL)
}

// DeleteRole drops the cached role, forcing the next resolution to query
// live membership.
func (s *Store) DeleteRole(ctx context.Context, user domain.UserID) error {
	return s.kv.Delete(ctx, s.userKey(user, "role"))
}
