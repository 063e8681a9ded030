package adminmsg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tradebot/internal/directory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCourier records deliveries and fails for configured recipients.
type fakeCourier struct {
	sent    []int64
	failFor map[int64]error
}

func (f *fakeCourier) SendText(_ context.Context, recipientID int64, _ string) error {
	if err, ok := f.failFor[recipientID]; ok {
		return err
	}
	f.sent = append(f.sent, recipientID)
	return nil
}

func newTestService(t *testing.T, courier Courier, activeIDs ...int64) *Service {
	t.Helper()
	dir := directory.New(directory.NewMemoryStore(), decimal.Zero)
	ctx := context.Background()
	for _, id := range activeIDs {
		require.NoError(t, dir.Register(ctx, directory.Participant{ID: id, Name: fmt.Sprintf("P%d", id)}))
		_, err := dir.Approve(ctx, id)
		require.NoError(t, err)
	}
	return New(dir, courier)
}

func TestSendDirect(t *testing.T) {
	courier := &fakeCourier{}
	svc := newTestService(t, courier, 101)

	require.NoError(t, svc.SendDirect(context.Background(), 101, "hello"))
	assert.Equal(t, []int64{101}, courier.sent)
}

func TestSendDirectFailureIsTyped(t *testing.T) {
	cause := errors.New("blocked by recipient")
	courier := &fakeCourier{failFor: map[int64]error{101: cause}}
	svc := newTestService(t, courier, 101)

	err := svc.SendDirect(context.Background(), 101, "hello")
	var dErr *DeliveryError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, int64(101), dErr.RecipientID)
	assert.ErrorIs(t, err, cause)
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	courier := &fakeCourier{failFor: map[int64]error{2: errors.New("boom")}}
	svc := newTestService(t, courier, 1, 2, 3)

	res, err := svc.Broadcast(context.Background(), "news", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	// The failure in the middle never stopped the rest of the batch.
	assert.Equal(t, []int64{1, 3}, courier.sent)
}

func TestBroadcastDefaultsToActiveSnapshot(t *testing.T) {
	courier := &fakeCourier{}
	svc := newTestService(t, courier, 1, 2)

	// A pending participant is not part of the default recipient set.
	require.NoError(t, svc.directory.Register(context.Background(), directory.Participant{ID: 99, Name: "Pending"}))

	res, err := svc.Broadcast(context.Background(), "news", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, []int64{1, 2}, courier.sent)
}

func TestBroadcastExplicitEmptySetIsNoop(t *testing.T) {
	courier := &fakeCourier{}
	svc := newTestService(t, courier, 1, 2)

	res, err := svc.Broadcast(context.Background(), "news", []directory.Participant{})
	require.NoError(t, err)
	assert.Equal(t, BroadcastResult{}, res)
	assert.Empty(t, courier.sent)
}
