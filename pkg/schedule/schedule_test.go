package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)

func stateWithItems(pollTime time.Time, published ...time.Time) *State {
	state := NewState("feed-1", MinDelay)
	state.LastPollTime = pollTime
	for _, p := range published {
		state.Items = append(state.Items, Item{Published: p, New: true})
	}
	return state
}

func TestComputeStatistics_RegularGaps(t *testing.T) {
	// Given a window with items every 30 minutes
	state := stateWithItems(base.Add(10*time.Minute),
		base.Add(-60*time.Minute), base.Add(-30*time.Minute), base)

	// When statistics are computed
	stats := ComputeStatistics(state)

	// Then gaps, averages and delays reflect the window
	assert.True(t, stats.Valid)
	assert.InDelta(t, 30.0, stats.AverageGap, 1e-9)
	assert.Equal(t, []time.Duration{30 * time.Minute, 30 * time.Minute}, stats.Gaps)
	assert.Equal(t, 30*time.Minute, stats.MedianGap)
	assert.Equal(t, 30*time.Minute, stats.LongestGap)
	assert.Equal(t, time.Duration(0), stats.GapStdDev)
	assert.Equal(t, 10*time.Minute, stats.DelayToNewestPost)
	assert.Equal(t, base.Add(-60*time.Minute), stats.OldestPost)
	assert.Equal(t, base, stats.NewestPost)
}

func TestComputeStatistics_GapsNewestFirst(t *testing.T) {
	state := stateWithItems(base, base.Add(-90*time.Minute), base.Add(-80*time.Minute), base.Add(-20*time.Minute))

	stats := ComputeStatistics(state)

	require.Len(t, stats.Gaps, 2)
	assert.Equal(t, 60*time.Minute, stats.Gaps[0])
	assert.Equal(t, 10*time.Minute, stats.OldestGap())
	assert.Equal(t, 60*time.Minute, stats.LastGap)
}

func TestComputeStatistics_DegenerateWindows(t *testing.T) {
	testCases := []struct {
		name  string
		state *State
	}{
		{"empty window", stateWithItems(base)},
		{"single item", stateWithItems(base, base.Add(-time.Hour))},
		{"identical timestamps", stateWithItems(base, base, base, base)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stats := ComputeStatistics(tc.state)
			assert.False(t, stats.Valid)
		})
	}
}

func TestComputeStatistics_FutureTimestamp(t *testing.T) {
	state := stateWithItems(base, base.Add(-time.Hour), base.Add(15*time.Minute))

	stats := ComputeStatistics(state)

	assert.Less(t, stats.DelayToNewestPost, time.Duration(0))
}

func TestBounds_Allowed(t *testing.T) {
	testCases := []struct {
		name     string
		bounds   Bounds
		value    int
		expected int
	}{
		{"within bounds", NewBounds(5, 100), 50, 50},
		{"above highest", NewBounds(5, 100), 500, 100},
		{"below lowest", NewBounds(5, 100), 1, 5},
		{"highest disabled", NewBounds(5, Unbounded), 5000, 5000},
		{"lowest disabled", NewBounds(Unbounded, 100), -3, -3},
		{"both disabled", NewBounds(Unbounded, Unbounded), 77, 77},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.bounds.Allowed(tc.value))
		})
	}
}

func TestBounds_SpreadStaysBelowCeiling(t *testing.T) {
	// Given spreading bounds
	bounds := Bounds{Lowest: 10, Highest: 1440, Spread: true}

	// When many values above the ceiling are clamped
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		v := bounds.Allowed(5000)
		assert.GreaterOrEqual(t, v, 720)
		assert.LessOrEqual(t, v, 1440)
		seen[v] = true
	}

	// Then they do not all share the ceiling value
	assert.Greater(t, len(seen), 1)
}

func TestBounds_SpreadDeterministic(t *testing.T) {
	bounds := Bounds{Lowest: 700, Highest: 1000, Spread: true}

	assert.Equal(t, 700, bounds.allowed(2000, func(int) int { return 500 }))
	assert.Equal(t, 900, bounds.allowed(2000, func(int) int { return 100 }))
	assert.Equal(t, 800, bounds.allowed(800, func(int) int { return 100 }))
}

func TestBounds_Validate(t *testing.T) {
	assert.NoError(t, NewBounds(Unbounded, Unbounded).Validate())
	assert.NoError(t, NewBounds(1, 1).Validate())
	assert.Error(t, NewBounds(10, 5).Validate())
	assert.Error(t, NewBounds(-2, 5).Validate())
	assert.Error(t, NewBounds(1, -7).Validate())
}

func TestHourSlot(t *testing.T) {
	assert.Equal(t, 10, HourSlot(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, 0, HourSlot(time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 1, HourSlot(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestModels_CloneIsDeep(t *testing.T) {
	models := Models{
		HourlyRates: &HourlyRates{1: 2},
		Burst:       &BurstWindow{Timestamps: []time.Time{base}},
		DayOfWeek:   &DayOfWeekTable{},
	}

	clone := models.Clone()
	clone.HourlyRates[1] = 5
	clone.Burst.Timestamps[0] = base.Add(time.Hour)
	clone.DayOfWeek[0][0] = 3

	assert.Equal(t, 2.0, models.HourlyRates[1])
	assert.Equal(t, base, models.Burst.Timestamps[0])
	assert.Equal(t, int64(0), models.DayOfWeek[0][0])
}

func TestModels_JSONRoundTripKeepsHistogram(t *testing.T) {
	hist := &MinuteHistogram{FirstSeen: base}
	hist.Slots[MinuteOfDay(base)] = MinuteSlot{Posts: 2, Chances: 3}
	models := Models{Histogram: hist}

	data, err := json.Marshal(models)
	require.NoError(t, err)

	var decoded Models
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Histogram)
	assert.InDelta(t, 2.0/3.0, decoded.Histogram.Slots[720].Probability(), 1e-9)
	assert.Nil(t, decoded.HourlyRates)
}

func TestDayOfWeekTable_Probability(t *testing.T) {
	var table DayOfWeekTable
	assert.Equal(t, 0.0, table.Probability(AggregateRow))

	table[2][UpdatesColumn] = 1
	table[2][ObservedColumn] = 4
	assert.Equal(t, 0.25, table.Probability(2))
}

func TestClassifyActivity(t *testing.T) {
	testCases := []struct {
		name     string
		state    *State
		expected ActivityPattern
	}{
		{"empty", stateWithItems(base), ActivityEmpty},
		{"single entry", stateWithItems(base, base.Add(-time.Hour)), ActivitySingleEntry},
		{"chunked", stateWithItems(base, base.Add(-3*time.Hour), base.Add(-3*time.Hour), base.Add(-3*time.Hour)), ActivityChunked},
		{"on the fly", stateWithItems(base, base, base, base), ActivityOnTheFly},
		{"constant", constantState(), ActivityConstant},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stats := ComputeStatistics(tc.state)
			assert.Equal(t, tc.expected, ClassifyActivity(tc.state, stats))
		})
	}
}

func constantState() *State {
	var published []time.Time
	for i := 0; i < 48; i++ {
		published = append(published, base.Add(-time.Duration(i)*30*time.Minute))
	}
	return stateWithItems(base.Add(time.Minute), published...)
}

func TestState_NewItems(t *testing.T) {
	state := stateWithItems(base, base.Add(-time.Hour))
	state.Items = append(state.Items, Item{Published: base.Add(-2 * time.Hour)})

	assert.True(t, state.HasNewItems())
	assert.Len(t, state.NewItems(), 1)
	assert.Equal(t, []time.Time{base.Add(-2 * time.Hour), base.Add(-time.Hour)}, state.Timestamps())
}

func TestParseUpdateMode(t *testing.T) {
	mode, err := ParseUpdateMode("max_delay")
	require.NoError(t, err)
	assert.Equal(t, MaxDelay, mode)

	_, err = ParseUpdateMode("sideways")
	assert.Error(t, err)
}

func TestState_CloneIsolatesItemsAndModels(t *testing.T) {
	state := stateWithItems(base, base.Add(-time.Hour))
	state.Models.HourlyRates = &HourlyRates{}

	clone := state.Clone()
	clone.Items[0].New = false
	clone.Models.HourlyRates[3] = 1

	assert.True(t, state.Items[0].New)
	assert.Equal(t, 0.0, state.Models.HourlyRates[3])
}
