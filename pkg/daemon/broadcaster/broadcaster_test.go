package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

func receive(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case event := <-sub.Events:
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
		return nil
	}
}

func assertNothing(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case event := <-sub.Events:
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(types.ReasonScheduled)
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, []types.OptimizationReason{types.ReasonScheduled}, sub.Reasons)
	assert.Equal(t, 1, b.Len())
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := New()
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()

	b.Notify(&Event{RunID: "r1", Counter: 1, Total: 2, Label: "Standby List (Low Priority)"})

	for _, sub := range []*Subscriber{first, second} {
		event := receive(t, sub)
		assert.Equal(t, "r1", event.RunID)
		assert.Equal(t, uint8(1), event.Counter)
		assert.Equal(t, "Standby List (Low Priority)", event.Label)
	}
}

func TestBroadcaster_FiltersByReason(t *testing.T) {
	b := New()
	defer b.Close()

	lowMemory := b.Subscribe(types.ReasonLowMemory)
	all := b.Subscribe()

	b.Notify(&Event{RunID: "manual", Reason: types.ReasonManual})
	assertNothing(t, lowMemory)
	assert.Equal(t, "manual", receive(t, all).RunID)

	b.Notify(&Event{RunID: "low", Reason: types.ReasonLowMemory})
	assert.Equal(t, "low", receive(t, lowMemory).RunID)
	assert.Equal(t, "low", receive(t, all).RunID)
}

func TestBroadcaster_PreservesOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	for i := uint8(1); i <= 5; i++ {
		b.Notify(&Event{Counter: i})
	}
	for i := uint8(1); i <= 5; i++ {
		assert.Equal(t, i, receive(t, sub).Counter)
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	for range 150 {
		b.Notify(&Event{})
	}
	assert.Len(t, sub.Events, cap(sub.Events))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed")
	assert.Zero(t, b.Len())

	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub.ID)
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed")
	assert.Nil(t, b.Subscribe())

	// Notify after close is a no-op.
	b.Notify(&Event{})
}
