// Package command parses and executes in-chat admin commands for one group.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"doorman/internal/audit"
	"doorman/internal/platform/metrics"
	"doorman/internal/ports"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/pkg/domain"
)

// Verifier is the slice of the verification engine the dispatcher drives.
type Verifier interface {
	Begin(ctx context.Context, join *domain.Message, user domain.User) error
	Pass(ctx context.Context, user domain.UserID, anchor domain.MessageID) error
	Fail(ctx context.Context, user domain.UserID)
}

// Dispatcher routes admin commands. Every mutating or status-revealing
// command except ping is admin-gated.
type Dispatcher struct {
	group    domain.GroupID
	chat     ports.ChatClient
	settings *settings.Store
	roles    *roles.Resolver
	engine   Verifier
	locales  ports.Localizer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    audit.Publisher
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithAudit(p audit.Publisher) Option {
	return func(d *Dispatcher) {
		d.audit = p
	}
}

// WithNow overrides the clock used for ping latency.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New builds the dispatcher for one group.
func New(group domain.GroupID, chat ports.ChatClient, store *settings.Store, resolver *roles.Resolver, engine Verifier, locales ports.Localizer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		group:    group,
		chat:     chat,
		settings: store,
		roles:    resolver,
		engine:   engine,
		locales:  locales,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch parses and runs a command. Returns handled=false for messages
// that carry no command this dispatcher knows, so callers can route further.
func (d *Dispatcher) Dispatch(ctx context.Context, m *domain.Message) (bool, error) {
	cmd, arg, ok := d.chat.ParseCommand(m)
	if !ok {
		return false, nil
	}

	handled, err := d.run(ctx, m, cmd, arg)
	if handled && d.metrics != nil {
		d.metrics.Commands.WithLabelValues(cmd).Inc()
	}
	return handled, err
}

func (d *Dispatcher) run(ctx context.Context, m *domain.Message, cmd, arg string) (bool, error) {
	switch cmd {
	case "ping":
		return true, d.ping(ctx, m)
	case "help":
		// reserved; accepted without output
		return true, nil
	case "status":
		return true, d.status(ctx, m)
	case "enable", "disable":
		return true, d.setEnabled(ctx, m, cmd == "enable")
	case "action":
		return true, d.action(ctx, m, arg)
	case "timeout":
		return true, d.timeout(ctx, m, arg)
	case "lang":
		return true, d.lang(ctx, m, arg)
	case "verbose", "quiet":
		return true, d.displayMode(ctx, m, cmd, arg)
	case "onjoin", "onpass", "onfail":
		return true, d.template(ctx, m, settings.Stage(cmd), arg)
	case "refresh":
		return true, d.refresh(ctx, m)
	case "reverify":
		return true, d.reverify(ctx, m)
	case "pass":
		return true, d.forcePass(ctx, m)
	case "fail":
		return true, d.forceFail(ctx, m)
	default:
		return false, nil
	}
}

func (d *Dispatcher) ping(ctx context.Context, m *domain.Message) error {
	latency := d.now().Unix() - m.Date
	if latency < 0 {
		latency = 0
	}
	return d.reply(ctx, m, "ping.pong", strconv.FormatInt(latency, 10)+"s")
}

func (d *Dispatcher) status(ctx context.Context, m *domain.Message) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	enabled, err := d.settings.Enabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return d.reply(ctx, m, "status.enable")
	}
	return d.reply(ctx, m, "status.disable")
}

func (d *Dispatcher) setEnabled(ctx context.Context, m *domain.Message, on bool) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	if err := d.settings.SetEnabled(ctx, on); err != nil {
		return err
	}
	d.emitSetting(ctx, m, fmt.Sprintf("enabled=%t", on))
	if on {
		return d.reply(ctx, m, "status.enable")
	}
	return d.reply(ctx, m, "status.disable")
}

func (d *Dispatcher) action(ctx context.Context, m *domain.Message, arg string) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	if arg != "" {
		a, valid := domain.ParseAction(arg)
		if !valid {
			return d.badParam(ctx, m, "action.help.full")
		}
		if err := d.settings.SetAction(ctx, a); err != nil {
			return err
		}
		d.emitSetting(ctx, m, "action="+arg)
	}
	current, err := d.settings.Action(ctx)
	if err != nil {
		return err
	}
	lang, err := d.settings.Lang(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, m, "action.query", d.locales.Format(lang, "action."+current.String()))
}

func (d *Dispatcher) timeout(ctx context.Context, m *domain.Message, arg string) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	if arg != "" {
		n, err := settings.ParseTimeout(arg)
		if err != nil {
			return d.badParam(ctx, m, "timeout.help.full")
		}
		if err := d.settings.SetTimeout(ctx, n); err != nil {
			return err
		}
		d.emitSetting(ctx, m, "timeout="+arg)
	}
	current, err := d.settings.Timeout(ctx)
	if err != nil {
		return err
	}
	lang, err := d.settings.Lang(ctx)
	if err != nil {
		return err
	}
	text := d.locales.Format(lang, "timeout.query", current)
	if current < 10 {
		text += "\n\n" + d.locales.Format(lang, "timeout.notice")
	}
	_, err = d.chat.SendMessage(ctx, d.group, text, m.ID)
	return err
}

func (d *Dispatcher) lang(ctx context.Context, m *domain.Message, arg string) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	if arg != "" {
		if err := d.settings.SetLang(ctx, arg); err != nil {
			return err
		}
		d.emitSetting(ctx, m, "lang="+arg)
	}
	current, err := d.settings.Lang(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, m, "lang.query", current, strings.Join(d.locales.Languages(), ", "))
}

func (d *Dispatcher) displayMode(ctx context.Context, m *domain.Message, mode, arg string) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}

	set := d.settings.SetVerbose
	get := d.settings.Verbose
	if mode == "quiet" {
		set = d.settings.SetQuiet
		get = d.settings.Quiet
	}

	switch arg {
	case "on", "off":
		if err := set(ctx, arg == "on"); err != nil {
			return err
		}
		d.emitSetting(ctx, m, mode+"="+arg)
		return d.reply(ctx, m, mode+"."+arg)
	case "":
		on, err := get(ctx)
		if err != nil {
			return err
		}
		if on {
			return d.reply(ctx, m, mode+".on")
		}
		return d.reply(ctx, m, mode+".off")
	default:
		return d.badParam(ctx, m, mode+".help.full")
	}
}

func (d *Dispatcher) template(ctx context.Context, m *domain.Message, stage settings.Stage, arg string) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	if arg != "" {
		if err := d.settings.SetTemplate(ctx, stage, arg); err != nil {
			return err
		}
		d.emitSetting(ctx, m, string(stage)+" template updated")
	}
	current, err := d.settings.Template(ctx, stage)
	if err != nil {
		return err
	}
	return d.reply(ctx, m, string(stage)+".query", current)
}

// refresh clears the cached role for the sender, or for the replied-to user
// when issued as a reply, then removes the command message itself.
func (d *Dispatcher) refresh(ctx context.Context, m *domain.Message) error {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return err
	}
	target := m.From.ID
	if m.ReplyTo != nil && m.ReplyTo.From != nil {
		target = m.ReplyTo.From.ID
	}
	if err := d.roles.Invalidate(ctx, target); err != nil {
		return err
	}
	return d.chat.DeleteMessage(ctx, d.group, m.ID)
}

func (d *Dispatcher) reverify(ctx context.Context, m *domain.Message) error {
	rep, err := d.requireAdminReply(ctx, m)
	if rep == nil {
		return err
	}
	for _, u := range subjects(rep) {
		user := u
		// verification outlives this command's event handling
		bg := context.WithoutCancel(ctx)
		go func() {
			if err := d.engine.Begin(bg, rep, user); err != nil {
				d.logger.Error("reverify failed",
					"group", d.group,
					"user", user.ID,
					"error", err,
				)
			}
		}()
	}
	return nil
}

func (d *Dispatcher) forcePass(ctx context.Context, m *domain.Message) error {
	rep, err := d.requireAdminReply(ctx, m)
	if rep == nil {
		return err
	}
	for _, u := range subjects(rep) {
		if err := d.engine.Pass(ctx, u.ID, rep.ID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) forceFail(ctx context.Context, m *domain.Message) error {
	rep, err := d.requireAdminReply(ctx, m)
	if rep == nil {
		return err
	}
	for _, u := range subjects(rep) {
		d.engine.Fail(ctx, u.ID)
	}
	return nil
}

// subjects lists the users a reply-targeted command applies to: every new
// member of a join event, or the sender of an ordinary message.
func subjects(rep *domain.Message) []domain.User {
	if rep.IsJoin() {
		return rep.NewMembers
	}
	if rep.From == nil {
		return nil
	}
	return []domain.User{*rep.From}
}

// requireAdmin resolves the sender's role, replying with a localized notice
// on failure. ok=false means the caller must stop; err is only set for
// collaborator failures.
func (d *Dispatcher) requireAdmin(ctx context.Context, m *domain.Message) (bool, error) {
	if m.From == nil {
		return false, nil
	}
	role, err := d.roles.Resolve(ctx, m.From.ID)
	if err != nil {
		return false, err
	}
	if role == domain.RoleAdmin {
		return true, nil
	}
	d.logger.Info("command denied", "group", d.group, "user", m.From.ID)
	return false, d.reply(ctx, m, "cmd.not_admin")
}

func (d *Dispatcher) requireAdminReply(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if ok, err := d.requireAdmin(ctx, m); !ok {
		return nil, err
	}
	if m.ReplyTo == nil {
		return nil, d.reply(ctx, m, "cmd.need_reply")
	}
	return m.ReplyTo, nil
}

func (d *Dispatcher) reply(ctx context.Context, m *domain.Message, key string, args ...any) error {
	lang, err := d.settings.Lang(ctx)
	if err != nil {
		return err
	}
	_, err = d.chat.SendMessage(ctx, d.group, d.locales.Format(lang, key, args...), m.ID)
	return err
}

// badParam sends the generic bad-parameter notice joined with the command's
// full help text.
func (d *Dispatcher) badParam(ctx context.Context, m *domain.Message, helpKey string) error {
	lang, err := d.settings.Lang(ctx)
	if err != nil {
		return err
	}
	text := d.locales.Format(lang, "cmd.bad_param") + "\n\n" + d.locales.Format(lang, helpKey)
	_, err = d.chat.SendMessage(ctx, d.group, text, m.ID)
	return err
}

func (d *Dispatcher) emitSetting(ctx context.Context, m *domain.Message, detail string) {
	if d.audit == nil {
		return
	}
	event := audit.NewEvent(d.group, m.From.ID, 0, audit.ActionSettingChanged, detail)
	if err := d.audit.Emit(ctx, event); err != nil {
		d.logger.Warn("audit emit failed", "error", err)
	}
}
