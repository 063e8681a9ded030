package directory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	return New(NewMemoryStore(), decimal.NewFromInt(10000))
}

func TestRegisterSeedsPendingParticipant(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	err := dir.Register(ctx, Participant{ID: 101, Name: "Alice", Username: "alice", Email: "alice@gmail.com"})
	require.NoError(t, err)

	p, found, err := dir.Find(ctx, 101)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.Active())
	assert.False(t, p.Portfolio.TradingEnabled)
	assert.True(t, p.Portfolio.Balance.Equal(decimal.NewFromInt(10000)))
	assert.False(t, p.CreatedAt.IsZero())
	assert.True(t, p.ApprovedAt.IsZero())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, Participant{ID: 101, Name: "Alice"}))

	err := dir.Register(ctx, Participant{ID: 101, Name: "Alice again"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// Approval does not free the identifier for re-registration.
	_, err = dir.Approve(ctx, 101)
	require.NoError(t, err)
	err = dir.Register(ctx, Participant{ID: 101, Name: "Alice once more"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestApproveMovesToActive(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, Participant{ID: 101, Name: "Alice"}))

	p, err := dir.Approve(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	assert.True(t, p.Portfolio.TradingEnabled)
	assert.False(t, p.ApprovedAt.IsZero())

	pending, err := dir.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	active, err := dir.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(101), active[0].ID)

	pendingCount, activeCount, err := dir.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pendingCount)
	assert.Equal(t, 1, activeCount)
}

func TestApproveNotPending(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Approve(ctx, 999)
	assert.ErrorIs(t, err, ErrNotPending)

	require.NoError(t, dir.Register(ctx, Participant{ID: 101, Name: "Alice"}))
	_, err = dir.Approve(ctx, 101)
	require.NoError(t, err)

	_, err = dir.Approve(ctx, 101)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestListsKeepRegistrationOrder(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, dir.Register(ctx, Participant{ID: id, Name: "P"}))
	}

	pending, err := dir.ListPending(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, err = dir.Approve(ctx, 1)
	require.NoError(t, err)
	_, err = dir.Approve(ctx, 3)
	require.NoError(t, err)

	active, err := dir.ListActive(ctx)
	require.NoError(t, err)
	ids = ids[:0]
	for _, p := range active {
		ids = append(ids, p.ID)
	}
	// Registration order, not approval order.
	assert.Equal(t, []int64{3, 1}, ids)
}

func TestListReturnsSnapshot(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, Participant{ID: 101, Name: "Alice"}))

	pending, err := dir.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	pending[0].Name = "mutated"

	p, _, err := dir.Find(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, Participant{ID: 101, Name: "Alice"}))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = dir.Approve(ctx, 101)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrNotPending)
		}
	}
	assert.Equal(t, 1, wins)
}
