package events

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_DeliversToRequestSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "req-2")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, PhaseEvent{RequestID: "req-1", Phase: domain.RequestStatusHITL, At: time.Now()}))

	select {
	case e := <-ch:
		assert.Equal(t, domain.RequestStatusHITL, e.Phase)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-other:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestMemoryBus_ClosesOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, bus.Publish(context.Background(), PhaseEvent{RequestID: "req-1"}))
}

func TestPhaseEvent_RoundTrip(t *testing.T) {
	in := PhaseEvent{RequestID: "req-1", Phase: domain.RequestStatusCompleted, At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	raw, err := in.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalPhaseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = UnmarshalPhaseEvent([]byte("{"))
	assert.Error(t, err)
}
