package schedule

import (
	"math"
	"sort"
	"time"
)

// Statistics summarizes the item timestamps of one poll. It is derived fresh for
// every strategy call and never persisted.
type Statistics struct {
	// AverageGap is the mean inter-arrival time in minutes.
	AverageGap float64
	// Gaps holds the inter-arrival deltas, newest first.
	Gaps       []time.Duration
	MedianGap  time.Duration
	LongestGap time.Duration
	LastGap    time.Duration
	GapStdDev  time.Duration

	// DelayToNewestPost is poll time minus the newest publish time. Negative values
	// come from timestamps in the future and are unreliable.
	DelayToNewestPost time.Duration

	OldestPost     time.Time
	NewestPost     time.Time
	AvgItemsPerDay float64

	Valid bool
}

// ComputeStatistics derives the arrival statistics from the state's window
func ComputeStatistics(state *State) *Statistics {
	stats := &Statistics{AverageGap: -1}
	if state == nil {
		return stats
	}

	times := state.Timestamps()
	if len(times) == 0 {
		return stats
	}

	pollTime := state.LastPollTime
	if pollTime.IsZero() {
		pollTime = time.Now()
	}

	stats.OldestPost = times[0]
	stats.NewestPost = times[len(times)-1]
	stats.DelayToNewestPost = pollTime.Sub(stats.NewestPost)

	span := stats.NewestPost.Sub(stats.OldestPost)
	days := math.Max(1, math.Floor(span.Hours()/24))
	stats.AvgItemsPerDay = float64(len(times)) / days

	if len(times) < 2 {
		return stats
	}

	stats.Gaps = make([]time.Duration, 0, len(times)-1)
	for i := len(times) - 1; i > 0; i-- {
		stats.Gaps = append(stats.Gaps, times[i].Sub(times[i-1]))
	}
	stats.LastGap = stats.Gaps[0]
	stats.AverageGap = span.Minutes() / float64(len(times)-1)
	stats.MedianGap = medianDuration(stats.Gaps)
	stats.GapStdDev = stdDevDuration(stats.Gaps)
	for _, gap := range stats.Gaps {
		if gap > stats.LongestGap {
			stats.LongestGap = gap
		}
	}

	stats.Valid = span > 0
	return stats
}

// OldestGap returns the oldest inter-arrival delta, or 0 without gaps
func (s *Statistics) OldestGap() time.Duration {
	if len(s.Gaps) == 0 {
		return 0
	}
	return s.Gaps[len(s.Gaps)-1]
}

func medianDuration(values []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func stdDevDuration(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return time.Duration(math.Sqrt(variance))
}
