package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func loaded(percent uint32) types.MemorySnapshot {
	return types.MemorySnapshot{
		TotalPhysical:     8 << 30,
		AvailablePhysical: 1 << 30,
		LoadPercent:       percent,
		CapturedAt:        epoch,
	}
}

func TestDecide(t *testing.T) {
	lowMemory := Policy{LowMemoryEnabled: true, ThresholdPercent: 90, Cooldown: 5 * time.Minute}
	scheduled := Policy{ScheduleEnabled: true, Interval: time.Hour}
	both := Policy{
		ScheduleEnabled: true, Interval: time.Hour,
		LowMemoryEnabled: true, ThresholdPercent: 90, Cooldown: 5 * time.Minute,
	}

	tests := []struct {
		name   string
		policy Policy
		snap   types.MemorySnapshot
		now    time.Time
		last   map[types.OptimizationReason]time.Time
		want   Decision
	}{
		{
			name:   "zero policy never fires",
			policy: Policy{},
			snap:   loaded(99),
			now:    epoch.Add(24 * time.Hour),
		},
		{
			name:   "below threshold",
			policy: lowMemory,
			snap:   loaded(89),
			now:    epoch,
		},
		{
			name:   "at threshold fires",
			policy: lowMemory,
			snap:   loaded(90),
			now:    epoch,
			want:   Decision{Fire: true, Reason: types.ReasonLowMemory},
		},
		{
			name:   "within cooldown",
			policy: lowMemory,
			snap:   loaded(95),
			now:    epoch.Add(4 * time.Minute),
			last:   map[types.OptimizationReason]time.Time{types.ReasonLowMemory: epoch},
		},
		{
			name:   "after cooldown",
			policy: lowMemory,
			snap:   loaded(95),
			now:    epoch.Add(5 * time.Minute),
			last:   map[types.OptimizationReason]time.Time{types.ReasonLowMemory: epoch},
			want:   Decision{Fire: true, Reason: types.ReasonLowMemory},
		},
		{
			name:   "empty snapshot ignored",
			policy: lowMemory,
			snap:   types.MemorySnapshot{},
			now:    epoch,
		},
		{
			name:   "schedule not yet due",
			policy: scheduled,
			snap:   loaded(10),
			now:    epoch.Add(59 * time.Minute),
		},
		{
			name:   "schedule due",
			policy: scheduled,
			snap:   loaded(10),
			now:    epoch.Add(time.Hour),
			want:   Decision{Fire: true, Reason: types.ReasonScheduled},
		},
		{
			name:   "schedule counts from last scheduled run",
			policy: scheduled,
			snap:   loaded(10),
			now:    epoch.Add(90 * time.Minute),
			last:   map[types.OptimizationReason]time.Time{types.ReasonScheduled: epoch.Add(time.Hour)},
		},
		{
			name:   "manual runs do not move the schedule",
			policy: scheduled,
			snap:   loaded(10),
			now:    epoch.Add(time.Hour),
			last:   map[types.OptimizationReason]time.Time{types.ReasonManual: epoch.Add(50 * time.Minute)},
			want:   Decision{Fire: true, Reason: types.ReasonScheduled},
		},
		{
			name:   "low memory wins over schedule",
			policy: both,
			snap:   loaded(97),
			now:    epoch.Add(2 * time.Hour),
			want:   Decision{Fire: true, Reason: types.ReasonLowMemory},
		},
		{
			name:   "schedule fires while low memory cools down",
			policy: both,
			snap:   loaded(97),
			now:    epoch.Add(2 * time.Hour),
			last:   map[types.OptimizationReason]time.Time{types.ReasonLowMemory: epoch.Add(2*time.Hour - time.Minute)},
			want:   Decision{Fire: true, Reason: types.ReasonScheduled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.policy, tt.snap, tt.now, epoch, tt.last)
			assert.Equal(t, tt.want.Fire, got.Fire)
			if tt.want.Fire {
				assert.Equal(t, tt.want.Reason, got.Reason)
				assert.NotEmpty(t, got.Detail)
			}
		})
	}
}

func TestTracker(t *testing.T) {
	now := epoch
	tracker := NewTracker(Policy{
		ScheduleEnabled:  true,
		Interval:         time.Hour,
		LowMemoryEnabled: true,
		ThresholdPercent: 80,
		Cooldown:         10 * time.Minute,
	}, WithClock(func() time.Time { return now }))

	assert.Equal(t, epoch.Add(time.Hour), tracker.NextScheduled())

	d := tracker.Evaluate(loaded(85))
	assert.True(t, d.Fire)
	assert.Equal(t, types.ReasonLowMemory, d.Reason)
	tracker.Record(types.ReasonLowMemory, now)

	now = now.Add(time.Minute)
	assert.False(t, tracker.Evaluate(loaded(85)).Fire)

	now = epoch.Add(time.Hour)
	d = tracker.Evaluate(loaded(20))
	assert.True(t, d.Fire)
	assert.Equal(t, types.ReasonScheduled, d.Reason)
	tracker.Record(types.ReasonScheduled, now)

	assert.Equal(t, epoch.Add(2*time.Hour), tracker.NextScheduled())
	assert.Equal(t, epoch, tracker.Last(types.ReasonLowMemory))

	tracker.Record(types.ReasonScheduled, epoch)
	assert.Equal(t, epoch.Add(time.Hour), tracker.Last(types.ReasonScheduled), "older records are ignored")
}

func TestTracker_SetPolicy(t *testing.T) {
	tracker := NewTracker(Policy{}, WithClock(func() time.Time { return epoch }))
	assert.True(t, tracker.NextScheduled().IsZero())
	assert.False(t, tracker.Evaluate(loaded(99)).Fire)

	tracker.SetPolicy(Policy{LowMemoryEnabled: true, ThresholdPercent: 50})
	assert.True(t, tracker.Evaluate(loaded(99)).Fire)
	assert.InDelta(t, 50, tracker.Policy().ThresholdPercent, 0)
}
