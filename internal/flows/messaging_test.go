package flows

import (
	"context"
	"errors"
	"testing"

	"tradebot/internal/dialog"
	"tradebot/internal/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorChat = int64(9000)

func (f *fixture) addActive(t *testing.T, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, f.dir.Register(ctx, directory.Participant{ID: id, Name: "P"}))
		_, err := f.dir.Approve(ctx, id)
		require.NoError(t, err)
	}
}

func TestDirectMessageFlow(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 101)
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogDirectMessage, nil)
	require.NoError(t, err)

	turn := f.text(t, operatorChat, operatorChat, "abc")
	assert.Contains(t, turn.Replies[0], "not a numeric")

	turn = f.text(t, operatorChat, operatorChat, "555")
	assert.Contains(t, turn.Replies[0], "No participant with ID 555")

	turn = f.text(t, operatorChat, operatorChat, "101")
	require.Len(t, turn.Replies, 2)
	assert.Contains(t, turn.Replies[1], "message text")

	turn = f.text(t, operatorChat, operatorChat, "hello there")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "delivered")
	assert.Equal(t, []int64{101}, f.courier.sent)
	assert.Equal(t, []string{"hello there"}, f.courier.texts)
}

func TestDirectMessageDeliveryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 101)
	f.courier.failFor[101] = errors.New("blocked")
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogDirectMessage, nil)
	require.NoError(t, err)
	f.text(t, operatorChat, operatorChat, "101")

	turn := f.text(t, operatorChat, operatorChat, "hello")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "Delivery to 101 failed")
	assert.Contains(t, turn.Replies[0], "blocked")
}

func TestBroadcastFlowToEveryone(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 1, 2, 3)
	ctx := context.Background()

	turn, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogBroadcast, nil)
	require.NoError(t, err)
	require.NotNil(t, turn.Markup)

	// Button press selects the full active snapshot.
	btn, handled, err := f.engine.Advance(ctx, dialog.Event{
		Kind:          dialog.EventButton,
		ChatID:        operatorChat,
		ParticipantID: operatorChat,
		Data:          "all",
	})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Contains(t, btn.Replies[0], "all active")

	turn = f.text(t, operatorChat, operatorChat, "market closes early today")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "3 delivered, 0 failed")
	assert.Equal(t, []int64{1, 2, 3}, f.courier.sent)
}

func TestBroadcastFlowNarrowsRecipients(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 1, 2, 3)
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogBroadcast, nil)
	require.NoError(t, err)

	turn := f.text(t, operatorChat, operatorChat, "1 3x")
	assert.Contains(t, turn.Replies[0], "not a numeric")

	turn = f.text(t, operatorChat, operatorChat, "1 3")
	assert.Contains(t, turn.Replies[0], "2 selected")

	turn = f.text(t, operatorChat, operatorChat, "hello selected")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "2 delivered, 0 failed")
	assert.Equal(t, []int64{1, 3}, f.courier.sent)
}

func TestBroadcastFlowCountsFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 1, 2, 3)
	f.courier.failFor[2] = errors.New("blocked")
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogBroadcast, nil)
	require.NoError(t, err)
	_, handled, err := f.engine.Advance(ctx, dialog.Event{Kind: dialog.EventButton, ChatID: operatorChat, ParticipantID: operatorChat, Data: "all"})
	require.NoError(t, err)
	require.True(t, handled)

	turn := f.text(t, operatorChat, operatorChat, "news")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "2 delivered, 1 failed")
	assert.Equal(t, []int64{1, 3}, f.courier.sent)
}

func TestBroadcastUnknownIDsBroadcastToNobody(t *testing.T) {
	f := newFixture(t, nil)
	f.addActive(t, 1)
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, operatorChat, operatorChat, DialogBroadcast, nil)
	require.NoError(t, err)
	f.text(t, operatorChat, operatorChat, "42")

	turn := f.text(t, operatorChat, operatorChat, "anyone there?")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "0 delivered, 0 failed")
	assert.Empty(t, f.courier.sent)
}
