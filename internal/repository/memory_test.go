package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
)

func TestMemoryBidGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	id, err := store.Errands().Create(ctx, &models.Errand{
		PosterID: "p1",
		Status:   models.StatusPending,
	})
	require.NoError(t, err)

	bid := models.Bid{RunnerID: "r1", Amount: 700}
	require.NoError(t, store.Errands().AppendBid(ctx, id, bid))

	// Stale length loses the swap.
	err = store.Errands().ReplaceBids(ctx, id, 2, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	require.NoError(t, store.Errands().Activate(ctx, id, Assignment{
		RunnerID: "r1", Amount: 700, At: time.Now(),
	}))

	// Bids are sealed outside pending.
	err = store.Errands().AppendBid(ctx, id, bid)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	err = store.Errands().ReplaceBids(ctx, id, 1, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	err = store.Errands().AppendBid(ctx, "missing", bid)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryReservePayment(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	id, err := store.Errands().Create(ctx, &models.Errand{
		PosterID: "p1",
		Status:   models.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, store.Errands().ReservePayment(ctx, id, "pay-1"))

	// The slot holds until released.
	err = store.Errands().ReservePayment(ctx, id, "pay-2")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	require.NoError(t, store.Errands().ClearPendingPayment(ctx, id))
	require.NoError(t, store.Errands().ReservePayment(ctx, id, "pay-2"))

	err = store.Errands().ReservePayment(ctx, "missing", "pay-3")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryListByPosterNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	var ids []string
	for _, desc := range []string{"first", "second", "third"} {
		id, err := store.Errands().Create(ctx, &models.Errand{
			PosterID:    "p1",
			Description: desc,
			Status:      models.StatusPending,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := store.Errands().Create(ctx, &models.Errand{PosterID: "p2", Status: models.StatusPending})
	require.NoError(t, err)

	out, err := store.Errands().ListByPoster(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, ids[2], out[0].ID)
	assert.Equal(t, ids[1], out[1].ID)
	assert.Equal(t, ids[0], out[2].ID)
}

func TestMemoryDebitGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	id, err := store.Users().Create(ctx, &models.User{Name: "A", WalletBalance: 100})
	require.NoError(t, err)

	err = store.Users().Debit(ctx, id, 500)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	require.NoError(t, store.Users().Debit(ctx, id, 100))
	u, err := store.Users().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, u.WalletBalance)
}

func TestMemoryAtomicRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	id, err := store.Users().Create(ctx, &models.User{Name: "A", WalletBalance: 1000})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(ctx context.Context) error {
		if err := store.Users().Debit(ctx, id, 400); err != nil {
			return err
		}
		if err := store.Transactions().Append(ctx, &models.Transaction{UserID: id, Amount: 400}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := store.Users().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), u.WalletBalance)
	assert.Empty(t, store.AllTransactions())
}

func TestMemoryResolveIfPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.Payments().Create(ctx, &models.Payment{
		ErrandID:      "e1",
		PosterID:      "p1",
		Status:        models.PaymentPending,
		TransactionID: "txn-1",
	})
	require.NoError(t, err)

	changed, err := store.Payments().ResolveIfPending(ctx, "txn-1", models.PaymentCompleted)
	require.NoError(t, err)
	assert.True(t, changed)

	// Second delivery is a no-op.
	changed, err = store.Payments().ResolveIfPending(ctx, "txn-1", models.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, changed)

	p, err := store.Payments().GetByTransactionID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)
}
