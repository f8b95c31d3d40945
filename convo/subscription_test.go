package convo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher records frames in publish order.
type fakePublisher struct {
	frames []Inbound
	err    error
}

func (p *fakePublisher) publish(_ context.Context, in Inbound) error {
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, in)
	return nil
}

func frameKinds(frames []Inbound) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type+" "+f.Destination)
	}
	return out
}

func TestRegistryEnterOpensChannelsAndJoins(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 1))

	assert.Equal(t, []string{
		"subscribe /topic/room/1",
		"subscribe /topic/typing/1",
		"send /app/join/1",
	}, frameKinds(pub.frames))

	room, ok := r.current()
	assert.True(t, ok)
	assert.Equal(t, int64(1), room)
}

func TestRegistryLeaveBeforeJoinOrdering(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 1))
	pub.frames = nil

	require.NoError(t, r.enter(context.Background(), 2))

	// room 1's full teardown, leave notice included, strictly precedes any
	// frame for room 2
	assert.Equal(t, []string{
		"unsubscribe ",
		"unsubscribe ",
		"send /app/leave/1",
		"subscribe /topic/room/2",
		"subscribe /topic/typing/2",
		"send /app/join/2",
	}, frameKinds(pub.frames))
}

func TestRegistryReenterSameRoomRecreates(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 1))
	firstMsgID := r.active.messageID
	pub.frames = nil

	require.NoError(t, r.enter(context.Background(), 1))

	assert.Equal(t, []string{
		"unsubscribe ",
		"unsubscribe ",
		"send /app/leave/1",
		"subscribe /topic/room/1",
		"subscribe /topic/typing/1",
		"send /app/join/1",
	}, frameKinds(pub.frames))
	assert.NotEqual(t, firstMsgID, r.active.messageID)
}

func TestRegistryLeaveWithoutSubscriptionIsSilent(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.leave(context.Background(), 1))
	assert.Empty(t, pub.frames, "no spurious leave notice")

	require.NoError(t, r.enter(context.Background(), 1))
	pub.frames = nil

	// leaving a different room must not touch the active subscription
	require.NoError(t, r.leave(context.Background(), 2))
	assert.Empty(t, pub.frames)
	_, ok := r.current()
	assert.True(t, ok)
}

func TestRegistryLeaveAllEmitsLeaveNotice(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 3))
	pub.frames = nil

	require.NoError(t, r.leaveAll(context.Background()))
	assert.Equal(t, []string{
		"unsubscribe ",
		"unsubscribe ",
		"send /app/leave/3",
	}, frameKinds(pub.frames))

	// idempotent once empty
	require.NoError(t, r.leaveAll(context.Background()))
	assert.Len(t, pub.frames, 3)
}

func TestRegistryDropAllEmitsNothing(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 1))
	pub.frames = nil

	r.dropAll()
	assert.Empty(t, pub.frames)
	_, ok := r.current()
	assert.False(t, ok)
}

func TestRegistryUnsubscribeIDsMatchSubscriptions(t *testing.T) {
	pub := &fakePublisher{}
	r := newSubscriptionRegistry(pub, noopLogger{})

	require.NoError(t, r.enter(context.Background(), 1))
	msgID, typingID := pub.frames[0].ID, pub.frames[1].ID
	require.NotEmpty(t, msgID)
	require.NotEmpty(t, typingID)
	pub.frames = nil

	require.NoError(t, r.leave(context.Background(), 1))
	assert.Equal(t, msgID, pub.frames[0].ID)
	assert.Equal(t, typingID, pub.frames[1].ID)
}
