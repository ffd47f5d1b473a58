package strategy

import (
	"testing"

	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busyTable() *schedule.DayOfWeekTable {
	var table schedule.DayOfWeekTable
	for day := 0; day < 7; day++ {
		table[day] = [2]int64{4, 4}
	}
	table[schedule.AggregateRow] = [2]int64{28, 28}
	return &table
}

func TestLIHZ_EmptyModelScenario(t *testing.T) {
	// Given a brand new resource polled on a Monday
	lihz, err := NewLIHZ(standardBounds, 0.5)
	require.NoError(t, err)
	state := newState(t0)

	// When updated without any training data
	lihz.Update(state, nil, false)

	// Then the default interval is used and Sunday's poll counter is bumped once
	assert.Equal(t, DefaultCheckTime, state.UpdateInterval)
	table := state.Models.DayOfWeek
	require.NotNil(t, table)
	assert.Equal(t, int64(1), table[0][schedule.ObservedColumn])
	assert.Equal(t, int64(1), table[schedule.AggregateRow][schedule.ObservedColumn])
	for day := 1; day < 7; day++ {
		assert.Equal(t, [2]int64{0, 0}, table[day])
	}
}

func TestLIHZ_TrainingDayIgnoresBounds(t *testing.T) {
	lihz, err := NewLIHZ(schedule.NewBounds(1, 600), 0.5)
	require.NoError(t, err)
	state := newState(t0, at(-10))

	lihz.Update(state, nil, true)

	assert.Equal(t, schedule.MinutesPerDay, state.UpdateInterval)
	table := state.Models.DayOfWeek
	assert.Equal(t, [2]int64{1, 1}, table[1])
	assert.Equal(t, [2]int64{1, 1}, table[schedule.AggregateRow])
}

func TestLIHZ_WalksWholeDays(t *testing.T) {
	testCases := []struct {
		name     string
		bounds   schedule.Bounds
		theta    float64
		expected int
	}{
		{"one likely day", schedule.NewBounds(1, schedule.Unbounded), 0.5, 1440},
		{"three days for theta 2", schedule.NewBounds(1, schedule.Unbounded), 2, 3 * 1440},
		{"stops before passing the ceiling", schedule.NewBounds(1, 2000), 2, 1440},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Given a resource updating every day
			lihz, err := NewLIHZ(tc.bounds, tc.theta)
			require.NoError(t, err)
			state := newState(t0)
			state.Models.DayOfWeek = busyTable()

			// When updated without new items
			lihz.Update(state, nil, false)

			// Then whole days are scheduled
			assert.Equal(t, tc.expected, state.UpdateInterval)
		})
	}
}

func TestLIHZ_WalkPersistsSpeculativeCounters(t *testing.T) {
	lihz, err := NewLIHZ(schedule.NewBounds(1, schedule.Unbounded), 0.5)
	require.NoError(t, err)
	state := newState(t0)
	state.Models.DayOfWeek = busyTable()

	lihz.Update(state, nil, false)

	table := state.Models.DayOfWeek
	assert.Equal(t, int64(5), table[2][schedule.ObservedColumn])
	assert.Equal(t, int64(29), table[schedule.AggregateRow][schedule.ObservedColumn])
	assert.Equal(t, int64(4), table[1][schedule.ObservedColumn])
}

func TestLIHZ_NewItemsCountAsUpdates(t *testing.T) {
	lihz, err := NewLIHZ(standardBounds, 0.5)
	require.NoError(t, err)
	state := newState(t0, at(-5))
	state.Models.DayOfWeek = busyTable()

	lihz.Update(state, nil, false)

	table := state.Models.DayOfWeek
	assert.Equal(t, int64(5), table[1][schedule.UpdatesColumn])
	assert.Equal(t, int64(29), table[schedule.AggregateRow][schedule.UpdatesColumn])
	assert.Equal(t, 0, state.UpdateInterval%schedule.MinutesPerDay)
	assert.Equal(t, "lihz_0.5", lihz.Name())
}

func TestLIHZ_FirstPollWithItemsUsesDefault(t *testing.T) {
	// Given a brand new resource whose first poll returns new items
	lihz, err := NewLIHZ(schedule.NewBounds(1, schedule.Unbounded), 0.5)
	require.NoError(t, err)
	state := newState(t0, at(-90), at(-60), at(-30))

	// When updated with an empty model
	lihz.Update(state, nil, false)

	// Then the default applies and only yesterday's poll counter is corrected
	assert.Equal(t, DefaultCheckTime, state.UpdateInterval)
	table := state.Models.DayOfWeek
	require.NotNil(t, table)
	assert.Equal(t, [2]int64{0, 1}, table[0])
	assert.Equal(t, [2]int64{1, 0}, table[1])
	for day := 2; day < 7; day++ {
		assert.Equal(t, [2]int64{0, 0}, table[day])
	}
	assert.Equal(t, [2]int64{1, 1}, table[schedule.AggregateRow])
}
