package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"doorman/internal/audit"
	"doorman/internal/i18n"
	"doorman/internal/kv"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/pkg/domain"
	"doorman/pkg/testutil"
)

const groupID = domain.GroupID(42)

var (
	admin    = domain.User{ID: 1, FirstName: "Root"}
	civilian = domain.User{ID: 2, FirstName: "Eve"}
)

type passCall struct {
	user   domain.UserID
	anchor domain.MessageID
}

type fakeVerifier struct {
	mu     sync.Mutex
	begins []domain.UserID
	passes []passCall
	fails  []domain.UserID
}

func (f *fakeVerifier) Begin(ctx context.Context, join *domain.Message, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins = append(f.begins, user.ID)
	return nil
}

func (f *fakeVerifier) Pass(ctx context.Context, user domain.UserID, anchor domain.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes = append(f.passes, passCall{user, anchor})
	return nil
}

func (f *fakeVerifier) Fail(ctx context.Context, user domain.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = append(f.fails, user)
}

func (f *fakeVerifier) beginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.begins)
}

type DispatcherSuite struct {
	suite.Suite
	backend    *kv.MemoryStore
	chat       *testutil.FakeChat
	settings   *settings.Store
	verifier   *fakeVerifier
	trail      *audit.MemoryStore
	dispatcher *Dispatcher
	nextID     domain.MessageID
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	bundle, err := i18n.Load()
	s.Require().NoError(err)

	s.backend = kv.NewMemoryStore()
	s.chat = testutil.NewFakeChat()
	s.chat.Members[admin.ID] = &domain.ChatMember{Status: domain.StatusCreator}
	s.chat.Members[civilian.ID] = &domain.ChatMember{Status: "member"}
	s.settings = settings.New(s.backend, groupID, bundle)
	s.verifier = &fakeVerifier{}
	s.trail = audit.NewMemoryStore()
	resolver := roles.New(groupID, s.settings, s.chat)
	s.dispatcher = New(groupID, s.chat, s.settings, resolver, s.verifier, bundle,
		WithAudit(syncPublisher{s.trail}),
	)
	s.nextID = 100
}

type syncPublisher struct {
	store *audit.MemoryStore
}

func (p syncPublisher) Emit(ctx context.Context, e audit.Event) error {
	return p.store.Append(ctx, e)
}

func (s *DispatcherSuite) message(from domain.User, text string) *domain.Message {
	s.nextID++
	return &domain.Message{
		ID:    s.nextID,
		Group: groupID,
		From:  &from,
		Date:  time.Now().Unix(),
		Text:  text,
	}
}

func (s *DispatcherSuite) dispatch(from domain.User, text string) bool {
	handled, err := s.dispatcher.Dispatch(context.Background(), s.message(from, text))
	s.Require().NoError(err)
	return handled
}

func (s *DispatcherSuite) TestNonCommandNotHandled() {
	s.False(s.dispatch(civilian, "just chatting"))
	s.Empty(s.chat.Sent())
}

func (s *DispatcherSuite) TestUnknownCommandNotHandled() {
	s.False(s.dispatch(admin, "/frobnicate"))
	s.Empty(s.chat.Sent())
}

func (s *DispatcherSuite) TestPingNeedsNoAdmin() {
	s.True(s.dispatch(civilian, "/ping"))
	reply := s.chat.LastSent()
	s.Require().NotNil(reply)
	s.Contains(reply.HTML, "pong")
}

func (s *DispatcherSuite) TestHelpIsSilent() {
	s.True(s.dispatch(civilian, "/help"))
	s.Empty(s.chat.Sent())
}

func (s *DispatcherSuite) TestNonAdminDenied() {
	ctx := context.Background()

	s.True(s.dispatch(civilian, "/enable"))

	reply := s.chat.LastSent()
	s.Contains(reply.HTML, "admin")

	enabled, err := s.settings.Enabled(ctx)
	s.NoError(err)
	s.False(enabled, "denied command must not mutate state")
}

func (s *DispatcherSuite) TestEnableDisable() {
	ctx := context.Background()

	s.True(s.dispatch(admin, "/enable"))
	enabled, err := s.settings.Enabled(ctx)
	s.NoError(err)
	s.True(enabled)
	s.Contains(s.chat.LastSent().HTML, "enabled")

	s.True(s.dispatch(admin, "/disable"))
	enabled, err = s.settings.Enabled(ctx)
	s.NoError(err)
	s.False(enabled)
	s.Contains(s.chat.LastSent().HTML, "disabled")
}

func (s *DispatcherSuite) TestStatus() {
	s.True(s.dispatch(admin, "/status"))
	s.Contains(s.chat.LastSent().HTML, "disabled")

	s.Require().NoError(s.settings.SetEnabled(context.Background(), true))
	s.True(s.dispatch(admin, "/status"))
	s.Contains(s.chat.LastSent().HTML, "enabled")
}

func (s *DispatcherSuite) TestActionReportsDefault() {
	s.True(s.dispatch(admin, "/action"))
	s.Contains(s.chat.LastSent().HTML, "kick")
}

func (s *DispatcherSuite) TestActionSet() {
	s.True(s.dispatch(admin, "/action ban"))
	a, err := s.settings.Action(context.Background())
	s.NoError(err)
	s.Equal(domain.ActionBan, a)
	s.Contains(s.chat.LastSent().HTML, "ban")
}

func (s *DispatcherSuite) TestActionBadParameter() {
	s.True(s.dispatch(admin, "/action explode"))

	reply := s.chat.LastSent()
	s.Contains(reply.HTML, "Bad parameter")
	s.Contains(reply.HTML, "/action")

	a, err := s.settings.Action(context.Background())
	s.NoError(err)
	s.Equal(domain.DefaultAction, a)
}

func (s *DispatcherSuite) TestTimeoutSetAndReport() {
	s.True(s.dispatch(admin, "/timeout 90"))
	n, err := s.settings.Timeout(context.Background())
	s.NoError(err)
	s.Equal(90, n)
	s.Contains(s.chat.LastSent().HTML, "90")
}

func (s *DispatcherSuite) TestTimeoutRejectsInvalid() {
	for _, bad := range []string{"abc", "0", "-4", "2147483648"} {
		s.True(s.dispatch(admin, "/timeout "+bad))
		s.Contains(s.chat.LastSent().HTML, "Bad parameter", bad)
	}
	n, err := s.settings.Timeout(context.Background())
	s.NoError(err)
	s.Equal(settings.DefaultTimeout, n)
}

func (s *DispatcherSuite) TestTimeoutLowValueWarns() {
	s.True(s.dispatch(admin, "/timeout 5"))
	s.Contains(s.chat.LastSent().HTML, "Warning")
}

func (s *DispatcherSuite) TestLang() {
	s.True(s.dispatch(admin, "/lang zh_TW"))
	lang, err := s.settings.Lang(context.Background())
	s.NoError(err)
	s.Equal("zh_TW", lang)

	// report includes the supported-language list
	s.Contains(s.chat.LastSent().HTML, "en_US")
}

func (s *DispatcherSuite) TestVerboseQuietToggle() {
	ctx := context.Background()

	s.True(s.dispatch(admin, "/quiet on"))
	quiet, err := s.settings.Quiet(ctx)
	s.NoError(err)
	s.True(quiet)

	s.True(s.dispatch(admin, "/verbose on"))
	verbose, err := s.settings.Verbose(ctx)
	s.NoError(err)
	s.True(verbose)
	quiet, err = s.settings.Quiet(ctx)
	s.NoError(err)
	s.False(quiet, "verbose on clears quiet")

	s.True(s.dispatch(admin, "/verbose off"))
	verbose, err = s.settings.Verbose(ctx)
	s.NoError(err)
	s.False(verbose)
}

func (s *DispatcherSuite) TestVerboseReportsCurrent() {
	s.True(s.dispatch(admin, "/verbose"))
	s.Contains(s.chat.LastSent().HTML, "off")

	s.Require().NoError(s.settings.SetVerbose(context.Background(), true))
	s.True(s.dispatch(admin, "/verbose"))
	s.Contains(s.chat.LastSent().HTML, "on")
}

func (s *DispatcherSuite) TestVerboseBadParameter() {
	s.True(s.dispatch(admin, "/verbose maybe"))
	s.Contains(s.chat.LastSent().HTML, "Bad parameter")
}

func (s *DispatcherSuite) TestTemplateSetAndReport() {
	s.True(s.dispatch(admin, "/onjoin hello $u, you have $t seconds"))
	tmpl, err := s.settings.Template(context.Background(), settings.StageJoin)
	s.NoError(err)
	s.Equal("hello $u, you have $t seconds", tmpl)
	s.Contains(s.chat.LastSent().HTML, "hello $u")
}

func (s *DispatcherSuite) TestRefreshClearsSenderRole() {
	ctx := context.Background()

	// prime the cache
	s.Require().NoError(s.settings.SetRole(ctx, admin.ID, domain.RoleAdmin))

	m := s.message(admin, "/refresh")
	handled, err := s.dispatcher.Dispatch(ctx, m)
	s.Require().NoError(err)
	s.True(handled)

	_, ok, err := s.settings.Role(ctx, admin.ID)
	s.NoError(err)
	s.False(ok)
	s.True(s.chat.HasDeleted(m.ID), "refresh removes its own command message")
}

func (s *DispatcherSuite) TestRefreshClearsRepliedUserRole() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetRole(ctx, civilian.ID, domain.RoleMember))

	m := s.message(admin, "/refresh")
	m.ReplyTo = s.message(civilian, "hello")
	handled, err := s.dispatcher.Dispatch(ctx, m)
	s.Require().NoError(err)
	s.True(handled)

	_, ok, err := s.settings.Role(ctx, civilian.ID)
	s.NoError(err)
	s.False(ok)
}

func (s *DispatcherSuite) TestReverifyRequiresReply() {
	s.True(s.dispatch(admin, "/reverify"))
	s.Contains(s.chat.LastSent().HTML, "reply")
	s.Zero(s.verifier.beginCount())
}

func (s *DispatcherSuite) TestReverifyJoinEvent() {
	m := s.message(admin, "/reverify")
	m.ReplyTo = &domain.Message{
		ID:         50,
		Group:      groupID,
		NewMembers: []domain.User{{ID: 7}, {ID: 8}},
	}
	handled, err := s.dispatcher.Dispatch(context.Background(), m)
	s.Require().NoError(err)
	s.True(handled)

	s.Eventually(func() bool { return s.verifier.beginCount() == 2 }, time.Second, time.Millisecond)
}

func (s *DispatcherSuite) TestReverifyPlainReplyTargetsSender() {
	m := s.message(admin, "/reverify")
	m.ReplyTo = s.message(civilian, "suspicious message")
	handled, err := s.dispatcher.Dispatch(context.Background(), m)
	s.Require().NoError(err)
	s.True(handled)

	s.Eventually(func() bool { return s.verifier.beginCount() == 1 }, time.Second, time.Millisecond)
	s.Equal(civilian.ID, s.verifier.begins[0])
}

func (s *DispatcherSuite) TestForcePass() {
	m := s.message(admin, "/pass")
	rep := s.message(civilian, "let me in")
	m.ReplyTo = rep
	handled, err := s.dispatcher.Dispatch(context.Background(), m)
	s.Require().NoError(err)
	s.True(handled)

	s.Require().Len(s.verifier.passes, 1)
	s.Equal(passCall{civilian.ID, rep.ID}, s.verifier.passes[0])
}

func (s *DispatcherSuite) TestForceFailJoinEvent() {
	m := s.message(admin, "/fail")
	m.ReplyTo = &domain.Message{
		ID:         51,
		Group:      groupID,
		NewMembers: []domain.User{{ID: 7}, {ID: 8}},
	}
	handled, err := s.dispatcher.Dispatch(context.Background(), m)
	s.Require().NoError(err)
	s.True(handled)

	s.Equal([]domain.UserID{7, 8}, s.verifier.fails)
}

func (s *DispatcherSuite) TestSettingChangesAreAudited() {
	s.True(s.dispatch(admin, "/enable"))
	s.True(s.dispatch(admin, "/action mute"))

	events := s.trail.Events()
	s.Require().Len(events, 2)
	s.Equal(audit.ActionSettingChanged, events[0].Action)
	s.Equal(admin.ID, events[0].Actor)
	s.Equal("action=mute", events[1].Detail)
}
