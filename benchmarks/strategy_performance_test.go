package benchmarks

import (
	"fmt"
	"testing"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
)

var start = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

// windowState returns a state holding n items published every gap
func windowState(n int, gap time.Duration) *schedule.State {
	state := schedule.NewState("bench", schedule.MinDelay)
	for i := 0; i < n; i++ {
		state.Items = append(state.Items, schedule.Item{Published: start.Add(time.Duration(i) * gap), New: true})
	}
	state.LastPollTime = start.Add(time.Duration(n) * gap)
	state.LastItemTime = start.Add(time.Duration(n-1) * gap)
	state.SecondLastItemTime = start.Add(time.Duration(n-2) * gap)
	state.OldestItemInWindow = start
	return state
}

func uniformRates() *schedule.HourlyRates {
	var rates schedule.HourlyRates
	for i := range rates {
		rates[i] = 0.25
	}
	return &rates
}

func BenchmarkStrategy_Update(b *testing.B) {
	for _, name := range strategy.Names() {
		b.Run(name, func(b *testing.B) {
			params := strategy.DefaultParams()
			params.Name = name
			s, err := strategy.Build(params, nil)
			if err != nil {
				b.Fatalf("Failed to build strategy: %v", err)
			}
			template := windowState(50, 17*time.Minute)
			template.Models.HourlyRates = uniformRates()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				state := template.Clone()
				s.Update(state, schedule.ComputeStatistics(state), false)
			}
		})
	}
}

func BenchmarkComputeStatistics(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		state := windowState(n, 7*time.Minute)
		b.Run(fmt.Sprintf("items-%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				schedule.ComputeStatistics(state)
			}
		})
	}
}

func BenchmarkStrategy_Creation(b *testing.B) {
	params := strategy.DefaultParams()
	params.Name = "indhist-ttl"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := strategy.Build(params, nil); err != nil {
			b.Fatalf("Failed to build strategy: %v", err)
		}
	}
}

func TestStrategy_StressTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	// Given every strategy and a large, sparse window
	bounds := schedule.NewBounds(1, 1440)
	for _, name := range strategy.Names() {
		params := strategy.DefaultParams()
		params.Name = name
		params.Bounds = bounds
		s, err := strategy.Build(params, nil)
		if err != nil {
			t.Fatalf("Failed to build %s: %v", name, err)
		}

		// When updated many times in a row
		state := windowState(500, 3*time.Hour)
		state.Models.HourlyRates = uniformRates()
		for i := 0; i < 1000; i++ {
			state.LastPollTime = state.LastPollTime.Add(time.Duration(state.UpdateInterval+1) * time.Minute)
			s.Update(state, schedule.ComputeStatistics(state), false)

			// Then the interval never leaves the bounds
			if !bounds.Contains(state.UpdateInterval) {
				t.Fatalf("%s produced %d outside %s", name, state.UpdateInterval, bounds)
			}
		}
	}
}
