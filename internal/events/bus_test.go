package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusOrderingPerErrand(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(10)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, New(TypeBidAccepted, "e1", nil)))
	require.NoError(t, bus.Publish(ctx, New(TypePaymentCompleted, "e1", nil)))
	require.NoError(t, bus.Publish(ctx, New(TypeCompletionRequested, "e1", nil)))
	bus.Close()

	var got []string
	for ev := range sub {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []string{TypeBidAccepted, TypePaymentCompleted, TypeCompletionRequested}, got)
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)

	require.NoError(t, bus.Publish(context.Background(), New(TypeDisputeRaised, "e2", map[string]any{"reason": "late"})))
	bus.Close()

	evA, evB := <-a, <-b
	assert.Equal(t, TypeDisputeRaised, evA.Type)
	assert.Equal(t, evA.ID, evB.ID)
	assert.Equal(t, "e2", evA.ErrandID)
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()
	assert.NoError(t, bus.Publish(context.Background(), New(TypePaymentFailed, "e3", nil)))
}
