package poller

import (
	"context"
	"testing"
	"time"

	"github.com/shaneisley/cadence/pkg/dataset"
	"github.com/shaneisley/cadence/pkg/modelstore"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// everyN returns count items spaced n minutes apart starting at t0
func everyN(n, count int) []time.Time {
	items := make([]time.Time, count)
	for i := range items {
		items[i] = at(i * n)
	}
	return items
}

func TestReplay_PollingInStepWithItems(t *testing.T) {
	// Given items every 30 minutes and a fixed 30 minute strategy
	ds := &dataset.Dataset{ID: "steady", WindowSize: -1, Items: everyN(30, 96)}

	// When the dataset is replayed
	report, err := Replay(context.Background(), New(fixed(t, 30)), ds, ReplayOptions{})
	require.NoError(t, err)

	// Then every poll finds exactly the item just published
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "steady", report.ResourceID)
	assert.Equal(t, "fixed_30", report.Strategy)
	assert.Equal(t, 96, report.Polls)
	assert.Equal(t, 1, report.InitialItems)
	assert.Equal(t, 95, report.NewItems)
	assert.Equal(t, 0, report.EmptyPolls)
	assert.Equal(t, 0, report.Misses)
	assert.Equal(t, 0, report.Unseen)
	assert.Equal(t, time.Duration(0), report.AverageDelay)
	assert.Equal(t, 30, report.MinInterval)
	assert.Equal(t, 30, report.MaxInterval)
	assert.Equal(t, 1.0, report.HitRate())
}

func TestReplay_CountsMissesAndDelay(t *testing.T) {
	// Given a two item window and items every 10 minutes
	ds := &dataset.Dataset{ID: "busy", WindowSize: 2, Items: everyN(10, 13)}

	// When polled hourly
	report, err := Replay(context.Background(), New(fixed(t, 60)), ds, ReplayOptions{})
	require.NoError(t, err)

	// Then items that scrolled out are misses
	assert.Equal(t, 3, report.Polls)
	assert.Equal(t, 4, report.NewItems)
	assert.Equal(t, 8, report.Misses)
	assert.Equal(t, 5*time.Minute, report.AverageDelay)
}

func TestReplay_UnseenAndEmptyPolls(t *testing.T) {
	// Given two items far apart and an end well after them
	ds := &dataset.Dataset{ID: "quiet", WindowSize: -1, Items: []time.Time{at(0), at(50)}}

	report, err := Replay(context.Background(), New(fixed(t, 30)), ds, ReplayOptions{End: at(100)})
	require.NoError(t, err)

	// Polls at 0, 30, 60, 90
	assert.Equal(t, 4, report.Polls)
	assert.Equal(t, 1, report.NewItems)
	assert.Equal(t, 2, report.EmptyPolls)
	assert.Equal(t, 10*time.Minute, report.AverageDelay)
	assert.Equal(t, 0, report.Unseen)
}

func TestReplay_StaysWithinBounds(t *testing.T) {
	// Given an irregular dataset
	gaps := []int{3, 240, 7, 7, 900, 1, 1, 60, 2000, 15, 30, 45, 600, 5}
	items := []time.Time{t0}
	for _, gap := range gaps {
		items = append(items, items[len(items)-1].Add(time.Duration(gap)*time.Minute))
	}
	ds := &dataset.Dataset{ID: "irregular", WindowSize: 5, Items: items}
	bounds := schedule.NewBounds(5, 600)

	for _, name := range strategy.Names() {
		t.Run(name, func(t *testing.T) {
			params := strategy.DefaultParams()
			params.Name = name
			params.Bounds = bounds
			s, err := strategy.Build(params, modelstore.NewMemoryStore())
			require.NoError(t, err)

			// When replayed without training
			report, err := Replay(context.Background(), New(s), ds, ReplayOptions{})
			require.NoError(t, err)

			// Then no poll was scheduled outside the bounds
			assert.GreaterOrEqual(t, report.MinInterval, 5)
			assert.LessOrEqual(t, report.MaxInterval, 600)
		})
	}
}

func TestReplay_TrainingPolls(t *testing.T) {
	// Given a strategy with a training mode
	indhist, err := strategy.NewIndHist(schedule.NewBounds(1, 1440), 0.5, modelstore.NewMemoryStore())
	require.NoError(t, err)
	ds := &dataset.Dataset{ID: "trained", WindowSize: -1, Items: everyN(60, 24*4)}

	// When the first two days are training
	report, err := Replay(context.Background(), New(indhist), ds, ReplayOptions{TrainFor: 48 * time.Hour})
	require.NoError(t, err)

	// Then training polls run daily and are not part of the interval range
	assert.Equal(t, 2, report.TrainingPolls)
	assert.Greater(t, report.Polls, 0)
	assert.LessOrEqual(t, report.MaxInterval, 1440)
}

func TestReplay_TrainsHourlyRates(t *testing.T) {
	testCases := []struct {
		name  string
		build func() (strategy.Strategy, error)
	}{
		{"indhist", func() (strategy.Strategy, error) {
			return strategy.NewIndHist(schedule.NewBounds(1, 1440), 0.5, nil)
		}},
		{"indhist ttl", func() (strategy.Strategy, error) {
			return strategy.NewIndHistTTL(schedule.NewBounds(1, 1440), 0.5, 0.2, 2, 24, nil)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Given two weeks of hourly items and an empty store
			s, err := tc.build()
			require.NoError(t, err)
			store := modelstore.NewMemoryStore()
			ds := &dataset.Dataset{ID: "hourly", WindowSize: -1, Items: everyN(60, 24*14)}

			// When the first week is training
			report, err := Replay(context.Background(), New(s, WithStore(store)), ds,
				ReplayOptions{TrainFor: 7 * 24 * time.Hour})
			require.NoError(t, err)

			// Then the second week polls twice an hour from the trained rates
			assert.Equal(t, 7, report.TrainingPolls)
			assert.Equal(t, 30, report.MinInterval)
			assert.Equal(t, 30, report.MaxInterval)

			rates, err := store.HourlyRates("hourly")
			require.NoError(t, err)
			for slot, rate := range rates {
				assert.InDelta(t, 1.0, rate, 1e-9, "slot %d", slot)
			}
		})
	}
}

func TestReplay_TrainingIgnoredWithoutTrainingMode(t *testing.T) {
	ds := &dataset.Dataset{ID: "steady", WindowSize: -1, Items: everyN(30, 10)}

	report, err := Replay(context.Background(), New(fixed(t, 30)), ds, ReplayOptions{TrainFor: 24 * time.Hour})
	require.NoError(t, err)

	assert.Equal(t, 0, report.TrainingPolls)
	assert.Equal(t, 10, report.Polls)
}

func TestReplay_Truncated(t *testing.T) {
	ds := &dataset.Dataset{ID: "steady", WindowSize: -1, Items: everyN(30, 10)}

	report, err := Replay(context.Background(), New(fixed(t, 30)), ds, ReplayOptions{MaxPolls: 3})
	require.NoError(t, err)

	assert.True(t, report.Truncated)
	assert.Equal(t, 3, report.Polls)
}

func TestReplay_Errors(t *testing.T) {
	p := New(fixed(t, 30))
	ds := &dataset.Dataset{ID: "steady", WindowSize: -1, Items: everyN(30, 10)}

	_, err := Replay(context.Background(), p, &dataset.Dataset{ID: "empty"}, ReplayOptions{})
	assert.Error(t, err)

	_, err = Replay(context.Background(), p, ds, ReplayOptions{Start: at(100), End: at(50)})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Replay(ctx, p, ds, ReplayOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayAll(t *testing.T) {
	datasets := []*dataset.Dataset{
		{ID: "a", WindowSize: -1, Items: everyN(30, 10)},
		{ID: "b", WindowSize: -1, Items: everyN(60, 5)},
	}

	reports, err := ReplayAll(context.Background(), New(fixed(t, 30)), datasets, ReplayOptions{}, 2)
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].ResourceID)
	assert.Equal(t, "b", reports[1].ResourceID)
	assert.NotEqual(t, reports[0].RunID, reports[1].RunID)
	assert.Equal(t, 9, reports[1].Polls)
}
