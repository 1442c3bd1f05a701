package group

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"doorman/internal/i18n"
	"doorman/internal/kv"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/pkg/domain"
	"doorman/pkg/testutil"
)

const groupID = domain.GroupID(42)

type passCall struct {
	user   domain.UserID
	anchor domain.MessageID
}

type fakeVerifier struct {
	mu     sync.Mutex
	begins []domain.UserID
	passes []passCall
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

type fakeCommander struct {
	dispatched []*domain.Message
}

func (f *fakeCommander) Dispatch(ctx context.Context, m *domain.Message) (bool, error) {
	f.dispatched = append(f.dispatched, m)
	return false, nil
}

type GroupSuite struct {
	suite.Suite
	backend  *kv.MemoryStore
	chat     *testutil.FakeChat
	settings *settings.Store
	verifier *fakeVerifier
	commands *fakeCommander
	group    *Group
}

func TestGroupSuite(t *testing.T) {
	suite.Run(t, new(GroupSuite))
}

func (s *GroupSuite) SetupTest() {
	bundle, err := i18n.Load()
	s.Require().NoError(err)

	s.backend = kv.NewMemoryStore()
	s.chat = testutil.NewFakeChat()
	s.settings = settings.New(s.backend, groupID, bundle)
	s.verifier = &fakeVerifier{}
	s.commands = &fakeCommander{}
	resolver := roles.New(groupID, s.settings, s.chat)
	s.group = New(groupID, s.chat, s.settings, resolver, s.verifier, s.commands)
}

func (s *GroupSuite) join(members ...domain.User) *domain.Message {
	return &domain.Message{
		ID:         10,
		Group:      groupID,
		From:       &members[0],
		Date:       time.Now().Unix(),
		NewMembers: members,
	}
}

func (s *GroupSuite) TestJoinStartsVerificationWhenEnabled() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetEnabled(ctx, true))

	m := s.join(domain.User{ID: 7}, domain.User{ID: 8})
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.ElementsMatch([]domain.UserID{7, 8}, s.verifier.begins)
	s.Empty(s.commands.dispatched)
}

func (s *GroupSuite) TestJoinIgnoredWhenDisabled() {
	ctx := context.Background()

	m := s.join(domain.User{ID: 7})
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.Empty(s.verifier.begins)
}

func (s *GroupSuite) TestJoinClearsCachedRoles() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetRole(ctx, 7, domain.RoleAdmin))

	s.Require().NoError(s.group.HandleMessage(ctx, s.join(domain.User{ID: 7})))

	_, ok, err := s.settings.Role(ctx, 7)
	s.NoError(err)
	s.False(ok, "a rejoining member must not inherit a stale role")
}

func (s *GroupSuite) TestPendingStickerPasses() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetPending(ctx, 7))

	m := &domain.Message{
		ID:      20,
		Group:   groupID,
		From:    &domain.User{ID: 7},
		Sticker: true,
	}
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.Equal([]passCall{{7, 20}}, s.verifier.passes)
	s.Empty(s.chat.Deleted())
}

func (s *GroupSuite) TestPendingChatterDeleted() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetPending(ctx, 7))

	m := &domain.Message{
		ID:    21,
		Group: groupID,
		From:  &domain.User{ID: 7},
		Text:  "hello I am definitely human",
	}
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.True(s.chat.HasDeleted(21))
	s.Empty(s.verifier.passes)
	s.Empty(s.commands.dispatched, "gated messages never reach the dispatcher")
}

func (s *GroupSuite) TestPendingCommandDeleted() {
	ctx := context.Background()
	s.Require().NoError(s.settings.SetPending(ctx, 7))

	m := &domain.Message{
		ID:    22,
		Group: groupID,
		From:  &domain.User{ID: 7},
		Text:  "/enable",
	}
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.True(s.chat.HasDeleted(22))
	s.Empty(s.commands.dispatched)
}

func (s *GroupSuite) TestOrdinaryMessageRoutedToCommands() {
	ctx := context.Background()

	m := &domain.Message{
		ID:    23,
		Group: groupID,
		From:  &domain.User{ID: 2},
		Text:  "/status",
	}
	s.Require().NoError(s.group.HandleMessage(ctx, m))

	s.Require().Len(s.commands.dispatched, 1)
	s.Equal(m, s.commands.dispatched[0])
}

func TestRegistryReusesControllers(t *testing.T) {
	built := 0
	reg := NewRegistry(func(id domain.GroupID) *Group {
		built++
		return &Group{id: id}
	})

	a := reg.Get(1)
	require.Same(t, a, reg.Get(1))
	require.NotSame(t, a, reg.Get(2))
	require.Equal(t, 2, built)
	require.Equal(t, 2, reg.Len())
}
