package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doorman/pkg/domain"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(domain.GroupID(1), domain.UserID(2), domain.UserID(3), ActionMemberKicked, "timeout")

	assert.NotEmpty(t, e.ID)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, time.Minute)
	assert.Equal(t, ActionMemberKicked, e.Action)
	assert.Equal(t, domain.UserID(2), e.Actor)
	assert.Equal(t, domain.UserID(3), e.Subject)
}

func TestPublisherWorkerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	pub := NewChannelPublisher(16, nil)
	worker := NewWorker(store, pub.Inbox(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	e := NewEvent(domain.GroupID(1), 0, domain.UserID(3), ActionVerificationTimedOut, "")
	require.NoError(t, pub.Emit(ctx, e))

	assert.Eventually(t, func() bool {
		events := store.Events()
		return len(events) == 1 && events[0].ID == e.ID
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEmitDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	pub := NewChannelPublisher(1, nil)

	// No worker draining; the second emit must not block.
	require.NoError(t, pub.Emit(ctx, NewEvent(1, 0, 1, ActionSettingChanged, "a")))
	require.NoError(t, pub.Emit(ctx, NewEvent(1, 0, 1, ActionSettingChanged, "b")))

	assert.Len(t, pub.Inbox(), 1)
}
