// Package verify owns the join verification state machine: per (group,
// user), a challenge races the user's response against a timer, and the
// losing branch's effect is discarded.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"doorman/internal/audit"
	"doorman/internal/platform/metrics"
	"doorman/internal/ports"
	"doorman/internal/render"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/pkg/domain"
)

// Engine runs verifications for one group. The waiter map is the only
// in-process shared state; it is mutated exclusively here.
type Engine struct {
	group    domain.GroupID
	chat     ports.ChatClient
	settings *settings.Store
	roles    *roles.Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    audit.Publisher
	tracer   trace.Tracer
	after    func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	waiters map[domain.UserID]*waiter
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAudit(p audit.Publisher) Option {
	return func(e *Engine) {
		e.audit = p
	}
}

// WithAfter overrides the timer source. Tests use it to drive the race
// deterministically.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(e *Engine) {
		e.after = after
	}
}

// New builds the engine for one group.
func New(group domain.GroupID, chat ports.ChatClient, store *settings.Store, resolver *roles.Resolver, opts ...Option) *Engine {
	e := &Engine{
		group:    group,
		chat:     chat,
		settings: store,
		roles:    resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer("doorman/internal/verify"),
		after:    time.After,
		waiters:  make(map[domain.UserID]*waiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin challenges a joining user and blocks until the verification
// resolves, including any delayed message cleanup. Callers run it in its own
// goroutine; one invocation per new member.
//
// A Begin for a user who already has a live challenge replaces it: the old
// waiter resolves as superseded (no moderation, no messaging beyond deleting
// its challenge) and a fresh challenge is issued.
func (e *Engine) Begin(ctx context.Context, join *domain.Message, user domain.User) error {
	ctx, span := e.tracer.Start(ctx, "verify.Begin", trace.WithAttributes(
		attribute.Int64("group.id", int64(e.group)),
		attribute.Int64("user.id", int64(user.ID)),
	))
	defer span.End()

	e.mu.Lock()
	if old, ok := e.waiters[user.ID]; ok {
		old.resolve(resolution{kind: resolutionSupersede})
	}
	e.mu.Unlock()

	if err := e.settings.SetPending(ctx, user.ID); err != nil {
		return err
	}
	timeout, err := e.settings.Timeout(ctx)
	if err != nil {
		return err
	}
	tmpl, err := e.settings.Template(ctx, settings.StageJoin)
	if err != nil {
		return err
	}
	challenge, err := e.chat.SendMessage(ctx, e.group, render.Render(e.chat.EscapeHTML, tmpl, user, timeout), join.ID)
	if err != nil {
		return err
	}

	w := newWaiter()
	e.mu.Lock()
	e.waiters[user.ID] = w
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.VerificationsStarted.Inc()
	}
	e.logger.Info("challenge issued",
		"group", e.group,
		"user", user.ID,
		"timeout_seconds", timeout,
	)
	start := time.Now()

	var res resolution
	select {
	case res = <-w.ch:
	case <-e.after(time.Duration(timeout) * time.Second):
		if w.claim() {
			res = resolution{kind: resolutionFail}
		} else {
			// a resolver won the race just before the timer; act on
			// its outcome, not ours
			res = <-w.ch
		}
	case <-ctx.Done():
		e.removeWaiter(user.ID, w)
		return ctx.Err()
	}

	e.removeWaiter(user.ID, w)

	// The challenge message is deleted whatever the outcome.
	e.deleteMessage(ctx, challenge)

	switch res.kind {
	case resolutionSupersede:
		if e.metrics != nil {
			e.metrics.VerificationsSuperseded.Inc()
		}
		e.logger.Info("challenge superseded", "group", e.group, "user", user.ID)
		return nil
	case resolutionPass:
		e.observeDuration(start)
		if e.metrics != nil {
			e.metrics.VerificationsPassed.Inc()
		}
		return e.finishPass(ctx, user, challenge, res.msg)
	default:
		e.observeDuration(start)
		if e.metrics != nil {
			e.metrics.VerificationsTimedOut.Inc()
		}
		return e.finishFail(ctx, join, user)
	}
}

// finishPass sends the acknowledgement and schedules cleanup per the group's
// display mode.
func (e *Engine) finishPass(ctx context.Context, user domain.User, challenge, anchor domain.MessageID) error {
	e.logger.Info("verification passed", "group", e.group, "user", user.ID)
	e.emit(ctx, audit.NewEvent(e.group, 0, user.ID, audit.ActionVerificationPassed, ""))

	quiet, err := e.settings.Quiet(ctx)
	if err != nil {
		return err
	}
	if quiet {
		if !anchor.IsNil() {
			e.deleteMessage(ctx, anchor)
		}
		return nil
	}

	timeout, err := e.settings.Timeout(ctx)
	if err != nil {
		return err
	}
	tmpl, err := e.settings.Template(ctx, settings.StagePass)
	if err != nil {
		return err
	}
	ack, err := e.chat.SendMessage(ctx, e.group, render.Render(e.chat.EscapeHTML, tmpl, user, timeout), anchor)
	if err != nil {
		return err
	}

	verbose, err := e.settings.Verbose(ctx)
	if err != nil {
		return err
	}
	if verbose {
		return nil
	}

	if err := e.sleepTimeout(ctx); err != nil {
		return err
	}
	// challenge was already removed; the duplicate delete is a no-op
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.deleteMessage(ctx, challenge)
		return nil
	})
	g.Go(func() error {
		e.deleteMessage(ctx, ack)
		return nil
	})
	return g.Wait()
}

// finishFail applies the moderation action and messaging for a timed-out or
// force-failed verification.
func (e *Engine) finishFail(ctx context.Context, join *domain.Message, user domain.User) error {
	e.logger.Info("verification failed", "group", e.group, "user", user.ID)

	if err := e.settings.ClearPending(ctx, user.ID); err != nil {
		return err
	}

	verbose, err := e.settings.Verbose(ctx)
	if err != nil {
		return err
	}
	if !verbose {
		e.deleteMessage(ctx, join.ID)
	}

	if err := e.applyAction(ctx, user.ID); err != nil {
		return err
	}

	quiet, err := e.settings.Quiet(ctx)
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}

	timeout, err := e.settings.Timeout(ctx)
	if err != nil {
		return err
	}
	tmpl, err := e.settings.Template(ctx, settings.StageFail)
	if err != nil {
		return err
	}
	notice, err := e.chat.SendMessage(ctx, e.group, render.Render(e.chat.EscapeHTML, tmpl, user, timeout), 0)
	if err != nil {
		return err
	}

	if verbose {
		return nil
	}
	if err := e.sleepTimeout(ctx); err != nil {
		return err
	}
	e.deleteMessage(ctx, notice)
	return nil
}

// applyAction runs the configured moderation action.
func (e *Engine) applyAction(ctx context.Context, user domain.UserID) error {
	action, err := e.settings.Action(ctx)
	if err != nil {
		return err
	}

	switch action {
	case domain.ActionKick:
		if err := e.chat.BanMember(ctx, e.group, user); err != nil {
			return err
		}
		if err := e.roles.Invalidate(ctx, user); err != nil {
			return err
		}
		if err := e.chat.UnbanMember(ctx, e.group, user); err != nil {
			return err
		}
		e.emit(ctx, audit.NewEvent(e.group, 0, user, audit.ActionMemberKicked, "verification timeout"))
	case domain.ActionMute:
		if err := e.chat.RestrictMember(ctx, e.group, user); err != nil {
			return err
		}
		e.emit(ctx, audit.NewEvent(e.group, 0, user, audit.ActionMemberMuted, "verification timeout"))
	case domain.ActionBan:
		if err := e.chat.BanMember(ctx, e.group, user); err != nil {
			return err
		}
		if err := e.roles.Invalidate(ctx, user); err != nil {
			return err
		}
		e.emit(ctx, audit.NewEvent(e.group, 0, user, audit.ActionMemberBanned, "verification timeout"))
	}

	if e.metrics != nil {
		e.metrics.ModerationActions.WithLabelValues(action.String()).Inc()
	}
	e.emit(ctx, audit.NewEvent(e.group, 0, user, audit.ActionVerificationTimedOut, action.String()))
	return nil
}

// Pass resolves a pending verification as passed, anchored to the message
// that qualified (zero anchor for an admin-forced pass with no message).
// No-op when nothing is pending.
func (e *Engine) Pass(ctx context.Context, user domain.UserID, anchor domain.MessageID) error {
	if err := e.settings.ClearPending(ctx, user); err != nil {
		return err
	}
	e.mu.Lock()
	w := e.waiters[user]
	e.mu.Unlock()
	if w != nil {
		w.resolve(resolution{kind: resolutionPass, msg: anchor})
	}
	return nil
}

// Fail resolves a pending verification as failed without waiting for the
// timer. Downstream handling is identical to a natural timeout. No-op when
// nothing is pending.
func (e *Engine) Fail(ctx context.Context, user domain.UserID) {
	e.mu.Lock()
	w := e.waiters[user]
	e.mu.Unlock()
	if w != nil {
		w.resolve(resolution{kind: resolutionFail})
	}
}

// sleepTimeout waits one full timeout period, re-reading the setting so
// admin changes apply to already-scheduled cleanups.
func (e *Engine) sleepTimeout(ctx context.Context) error {
	timeout, err := e.settings.Timeout(ctx)
	if err != nil {
		return err
	}
	select {
	case <-e.after(time.Duration(timeout) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) removeWaiter(user domain.UserID, w *waiter) {
	e.mu.Lock()
	if e.waiters[user] == w {
		delete(e.waiters, user)
	}
	e.mu.Unlock()
}

// deleteMessage tolerates failures: duplicate deletes and already-gone
// messages are expected during cleanup.
func (e *Engine) deleteMessage(ctx context.Context, msg domain.MessageID) {
	if msg.IsNil() {
		return
	}
	if err := e.chat.DeleteMessage(ctx, e.group, msg); err != nil {
		e.logger.Debug("delete message", "group", e.group, "msg", msg, "error", err)
	}
}

func (e *Engine) observeDuration(start time.Time) {
	if e.metrics != nil {
		e.metrics.VerificationDuration.Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Emit(ctx, event); err != nil {
		e.logger.Warn("audit emit failed", "error", err)
	}
}
