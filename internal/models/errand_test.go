package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransition(t *testing.T) {
	allowed := map[[2]string]bool{
		{StatusPending, StatusActive}:             true,
		{StatusActive, StatusInProgress}:          true,
		{StatusInProgress, StatusPendingApproval}: true,
		{StatusPendingApproval, StatusCompleted}:  true,
		{StatusPendingApproval, StatusDisputed}:   true,
	}

	statuses := []string{
		StatusPending, StatusActive, StatusInProgress,
		StatusPendingApproval, StatusCompleted, StatusDisputed,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			got := ValidTransition(from, to)
			assert.Equal(t, allowed[[2]string{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestValidTransitionNoSkipping(t *testing.T) {
	assert.False(t, ValidTransition(StatusPending, StatusInProgress))
	assert.False(t, ValidTransition(StatusPending, StatusCompleted))
	assert.False(t, ValidTransition(StatusActive, StatusCompleted))
	assert.False(t, ValidTransition(StatusActive, StatusDisputed))
}

func TestSplitFee(t *testing.T) {
	fee, runner := SplitFee(800)
	assert.InDelta(t, 160, fee, 1e-9)
	assert.InDelta(t, 640, runner, 1e-9)

	fee, runner = SplitFee(1000)
	assert.InDelta(t, 200, fee, 1e-9)
	assert.InDelta(t, 800, runner, 1e-9)
}

func TestSortedBids(t *testing.T) {
	bids := []Bid{
		{RunnerID: "r1", Amount: 900},
		{RunnerID: "r2", Amount: 800},
		{RunnerID: "r3", Amount: 800, Message: "second 800"},
		{RunnerID: "r4", Amount: 750},
	}

	sorted := SortedBids(bids)
	require.Len(t, sorted, 4)
	assert.Equal(t, "r4", sorted[0].RunnerID)
	// Equal amounts keep submission order.
	assert.Equal(t, "r2", sorted[1].RunnerID)
	assert.Equal(t, "r3", sorted[2].RunnerID)
	assert.Equal(t, "r1", sorted[3].RunnerID)

	// Input order untouched.
	assert.Equal(t, "r1", bids[0].RunnerID)
}

func TestRemoveBid(t *testing.T) {
	bids := []Bid{
		{RunnerID: "r1", Amount: 500},
		{RunnerID: "r2", Amount: 600},
		{RunnerID: "r3", Amount: 700},
	}

	out := RemoveBid(bids, 1)
	require.Len(t, out, 2)
	assert.Equal(t, "r1", out[0].RunnerID)
	assert.Equal(t, "r3", out[1].RunnerID)
	// Original untouched.
	require.Len(t, bids, 3)
}
