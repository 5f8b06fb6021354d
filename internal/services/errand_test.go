package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/events"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
	"github.com/starksgalaxy/errands-gobackend/internal/repository"
)

type testEnv struct {
	store    *repository.Memory
	errands  *ErrandService
	payments *PaymentService
	disputes *DisputeService
	gateway  *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemory()
	gw := &fakeGateway{token: "tok"}
	return &testEnv{
		store:    store,
		errands:  NewErrandService(store, events.Nop{}),
		payments: NewPaymentService(store, gw, events.Nop{}, "https://api.example.com/api/payment/callback", time.Millisecond, 3),
		disputes: NewDisputeService(store, events.Nop{}),
		gateway:  gw,
	}
}

func (env *testEnv) addUser(t *testing.T, name string, balance float64) string {
	t.Helper()
	id, err := env.store.Users().Create(context.Background(), &models.User{
		Name:          name,
		Email:         name + "@example.com",
		WalletBalance: balance,
	})
	require.NoError(t, err)
	return id
}

func (env *testEnv) postErrand(t *testing.T, posterID string, budget float64) *models.Errand {
	t.Helper()
	errand, err := env.errands.CreateErrand(context.Background(), posterID, CreateErrandInput{
		ErrandType:  "shopping",
		Description: "Buy groceries",
		Town:        "Nairobi",
		Area:        "Westlands",
		Budget:      budget,
	})
	require.NoError(t, err)
	return errand
}

// acceptBid drives the capture saga to success for the bid at index,
// leaving the errand active with the bidder assigned.
func (env *testEnv) acceptBid(t *testing.T, posterID, errandID string, index int) {
	t.Helper()
	ctx := context.Background()
	res, err := env.payments.InitiateBidPayment(ctx, posterID, errandID, index, "0712345678")
	require.NoError(t, err)
	require.NoError(t, env.payments.HandleCallback(ctx, res.TransactionID, CallbackStatusSuccess))
}

func TestCreateErrandMovesBudgetIntoEscrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)

	errand := env.postErrand(t, poster, 1000)
	assert.Equal(t, models.StatusPending, errand.Status)
	assert.Equal(t, 0.20, errand.ServiceFeeRate)

	u, err := env.store.Users().GetByID(ctx, poster)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), u.WalletBalance)

	txns := env.store.AllTransactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TxnEscrowDeposit, txns[0].Type)
	assert.Equal(t, errand.ID, txns[0].ErrandID)
	assert.Equal(t, float64(1000), txns[0].Amount)
}

func TestCreateErrandInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 300)

	_, err := env.errands.CreateErrand(ctx, poster, CreateErrandInput{
		ErrandType:  "shopping",
		Description: "Buy groceries",
		Town:        "Nairobi",
		Area:        "Westlands",
		Budget:      600,
	})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	// Nothing applied.
	u, err := env.store.Users().GetByID(ctx, poster)
	require.NoError(t, err)
	assert.Equal(t, float64(300), u.WalletBalance)
	assert.Empty(t, env.store.AllTransactions())

	list, err := env.errands.ListMyErrands(ctx, poster)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateErrandBelowMinimumBudget(t *testing.T) {
	env := newTestEnv(t)
	poster := env.addUser(t, "alice", 2000)

	_, err := env.errands.CreateErrand(context.Background(), poster, CreateErrandInput{
		ErrandType:  "shopping",
		Description: "Buy groceries",
		Town:        "Nairobi",
		Area:        "Westlands",
		Budget:      499,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestListBidsSortedByAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	r1 := env.addUser(t, "bob", 0)
	r2 := env.addUser(t, "carol", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, r1, errand.ID, 900, "can do"))
	require.NoError(t, env.errands.SubmitBid(ctx, r2, errand.ID, 800, "cheaper"))

	bids, err := env.errands.ListBids(ctx, errand.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, float64(800), bids[0].Amount)
	assert.Equal(t, r2, bids[0].RunnerID)
	assert.Equal(t, float64(900), bids[1].Amount)
}

func TestSubmitBidOnOwnErrand(t *testing.T) {
	env := newTestEnv(t)
	poster := env.addUser(t, "alice", 2000)
	errand := env.postErrand(t, poster, 1000)

	err := env.errands.SubmitBid(context.Background(), poster, errand.ID, 800, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRejectBidRemovesExactlyOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	r1 := env.addUser(t, "bob", 0)
	r2 := env.addUser(t, "carol", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, r1, errand.ID, 900, ""))
	require.NoError(t, env.errands.SubmitBid(ctx, r2, errand.ID, 800, ""))

	require.NoError(t, env.errands.RejectBid(ctx, poster, errand.ID, 0))

	got, err := env.store.Errands().GetByID(ctx, errand.ID)
	require.NoError(t, err)
	require.Len(t, got.Bids, 1)
	assert.Equal(t, r2, got.Bids[0].RunnerID)

	// Only the owner may reject.
	err = env.errands.RejectBid(ctx, r1, errand.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	err = env.errands.RejectBid(ctx, poster, errand.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartWorkOnlyAssignedRunner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	runner := env.addUser(t, "bob", 0)
	other := env.addUser(t, "carol", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, runner, errand.ID, 800, ""))
	env.acceptBid(t, poster, errand.ID, 0)

	err := env.errands.StartWork(ctx, other, errand.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	require.NoError(t, env.errands.StartWork(ctx, runner, errand.ID))

	got, err := env.store.Errands().GetByID(ctx, errand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)

	// Already in progress.
	err = env.errands.StartWork(ctx, runner, errand.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestRequestCompletionOnlyAssignedRunner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	runner := env.addUser(t, "bob", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, runner, errand.ID, 800, ""))
	env.acceptBid(t, poster, errand.ID, 0)
	require.NoError(t, env.errands.StartWork(ctx, runner, errand.ID))

	err := env.errands.RequestCompletion(ctx, poster, errand.ID, "")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	require.NoError(t, env.errands.RequestCompletion(ctx, runner, errand.ID, "done and delivered"))

	got, err := env.store.Errands().GetByID(ctx, errand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
	assert.Equal(t, "done and delivered", got.CompletionNotes)
}

func TestApproveCompletionReleasesEscrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	runner := env.addUser(t, "bob", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, runner, errand.ID, 800, ""))
	env.acceptBid(t, poster, errand.ID, 0)
	require.NoError(t, env.errands.StartWork(ctx, runner, errand.ID))
	require.NoError(t, env.errands.RequestCompletion(ctx, runner, errand.ID, ""))

	// Approval is state-gated and owner-gated.
	err := env.errands.ApproveCompletion(ctx, runner, errand.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	require.NoError(t, env.errands.ApproveCompletion(ctx, poster, errand.ID))

	got, err := env.store.Errands().GetByID(ctx, errand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Runner got the 80% share of the accepted bid, not the budget.
	u, err := env.store.Users().GetByID(ctx, runner)
	require.NoError(t, err)
	assert.InDelta(t, 640, u.WalletBalance, 1e-9)

	stats, err := env.store.Runners().Get(ctx, runner)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 0, stats.PendingJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.InDelta(t, 640, stats.Earnings, 1e-9)

	p, err := env.store.Users().GetByID(ctx, poster)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalErrands)

	var release *models.Transaction
	for _, txn := range env.store.AllTransactions() {
		if txn.Type == models.TxnPaymentRelease {
			release = &txn
			break
		}
	}
	require.NotNil(t, release)
	assert.Equal(t, runner, release.UserID)
	assert.Equal(t, float64(800), release.Amount)
	assert.InDelta(t, 160, release.ServiceFee, 1e-9)
	assert.InDelta(t, 640, release.RunnerAmount, 1e-9)

	// Replay does not double-release.
	err = env.errands.ApproveCompletion(ctx, poster, errand.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAcceptedBidAmountFrozen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	runner := env.addUser(t, "bob", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, runner, errand.ID, 800, ""))
	env.acceptBid(t, poster, errand.ID, 0)

	assertFrozen := func() {
		t.Helper()
		got, err := env.store.Errands().GetByID(ctx, errand.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(800), got.AcceptedBidAmount)
		assert.InDelta(t, 160, got.ServiceFee, 1e-9)
		assert.InDelta(t, 640, got.RunnerAmount, 1e-9)
	}
	assertFrozen()

	require.NoError(t, env.errands.StartWork(ctx, runner, errand.ID))
	assertFrozen()
	require.NoError(t, env.errands.RequestCompletion(ctx, runner, errand.ID, ""))
	assertFrozen()
	require.NoError(t, env.errands.ApproveCompletion(ctx, poster, errand.ID))
	assertFrozen()
}

func TestApproveCompletionRequiresPendingApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.addUser(t, "alice", 2000)
	runner := env.addUser(t, "bob", 0)

	errand := env.postErrand(t, poster, 1000)
	require.NoError(t, env.errands.SubmitBid(ctx, runner, errand.ID, 800, ""))
	env.acceptBid(t, poster, errand.ID, 0)

	// Active, work not even started.
	err := env.errands.ApproveCompletion(ctx, poster, errand.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
